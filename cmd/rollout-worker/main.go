package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gaitlab/dmpo"
	"github.com/gaitlab/dmpo/actor"
	"github.com/gaitlab/dmpo/environment/crawler"
	"github.com/gaitlab/dmpo/network"
	"github.com/gaitlab/dmpo/replay"
	"github.com/gaitlab/dmpo/tracker"
	"github.com/gaitlab/dmpo/varsync"
)

const (
	defaultReplayURL  = "http://localhost:9001"
	defaultLearnerURL = "http://localhost:9002"
)

func main() {
	mode := getenv("MODE", "actor")
	replayURL := getenv("REPLAY_URL", defaultReplayURL)
	learnerURL := getenv("LEARNER_URL", defaultLearnerURL)
	snapshotDir := getenv("SNAPSHOT_DIR", "./snapshots")
	renderDir := getenv("RENDER_DIR", "")
	maxEpisodeSteps := getenvInt("MAX_EPISODE_STEPS", 1000)
	episodes := getenvInt("EPISODES", 0) // 0 runs forever
	seed := getenvInt64("SEED", time.Now().UnixNano())

	config := dmpo.DefaultConfig()
	builder := network.NewBuilder(
		getenvInt("EMBED_DIM", 256),
		config.Learner.Atoms,
	)

	env, err := crawler.New(maxEpisodeSteps, uint64(seed))
	if err != nil {
		log.Fatal(err)
	}

	var driver *actor.Driver
	switch mode {
	case "actor":
		inserter := replay.NewClient(replayURL)
		source := varsync.NewHTTPSource(learnerURL)
		driver, err = dmpo.NewActor(config, builder, env, inserter, source,
			uint64(seed))
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("actor feeding %s with parameters from %s", replayURL,
			learnerURL)
	case "evaluator":
		driver, err = dmpo.NewEvaluator(config, builder, env, snapshotDir,
			renderDir, uint64(seed))
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("evaluator following snapshots under %s", snapshotDir)
	default:
		log.Fatalf("unknown MODE %q: want actor or evaluator", mode)
	}

	logger := tracker.NewConsole(mode, 10*time.Second)
	if err := driver.Run(episodes, logger); err != nil {
		log.Fatal(err)
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
