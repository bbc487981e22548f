package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gaitlab/dmpo"
	"github.com/gaitlab/dmpo/checkpointer"
	"github.com/gaitlab/dmpo/environment/crawler"
	"github.com/gaitlab/dmpo/network"
	"github.com/gaitlab/dmpo/replay"
	"github.com/gaitlab/dmpo/tracker"
	"github.com/gaitlab/dmpo/varsync"
)

const (
	defaultReplayURL = "http://localhost:9001"
	defaultPort      = "9002"
)

func main() {
	replayURL := getenv("REPLAY_URL", defaultReplayURL)
	port := getenv("PORT", defaultPort)
	checkpointDir := getenv("CHECKPOINT_DIR", "./checkpoints")
	snapshotDir := getenv("SNAPSHOT_DIR", "./snapshots")
	obsDim := getenvInt("OBS_DIM", crawler.StateObservations)
	actionDims := getenvInt("ACTION_DIMS", crawler.ActionDims)
	seed := getenvInt64("SEED", time.Now().UnixNano())

	config := dmpo.DefaultConfig()
	config.Learner.BatchSize = getenvInt("BATCH_SIZE",
		config.Learner.BatchSize)
	config.Learner.NumSamples = getenvInt("NUM_SAMPLES",
		config.Learner.NumSamples)
	config.LearnerBurst = getenvInt("LEARNER_BURST", config.LearnerBurst)

	builder := network.NewBuilder(
		getenvInt("EMBED_DIM", 256),
		config.Learner.Atoms,
	)

	sampler := replay.NewClient(replayURL)
	l, err := dmpo.NewLearner(config, builder, obsDim, actionDims, sampler,
		uint64(seed))
	if err != nil {
		log.Fatal(err)
	}

	dmpo.RestoreLatest(checkpointDir, l)

	ckpt, err := checkpointer.New(checkpointDir, config.CheckpointInterval,
		config.CheckpointRetain)
	if err != nil {
		log.Fatal(err)
	}
	snap, err := checkpointer.NewSnapshotter(snapshotDir,
		config.SnapshotInterval)
	if err != nil {
		log.Fatal(err)
	}

	// Actors pull fresh parameters while training runs.
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           varsync.Server(l),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("variable server listening on :%s", port)
		if err := server.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	logger := tracker.NewConsole("learner", 10*time.Second)
	log.Printf("learner training from %s (batch=%d burst=%d)", replayURL,
		config.Learner.BatchSize, config.LearnerBurst)
	if err := dmpo.TrainLoop(config, l, logger, ckpt, snap); err != nil {
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
