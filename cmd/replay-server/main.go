package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gaitlab/dmpo"
	"github.com/gaitlab/dmpo/replay"
)

const defaultPort = "9001"

func main() {
	config := dmpo.DefaultConfig()
	config.MaxReplaySize = getenvInt("REPLAY_CAPACITY", config.MaxReplaySize)
	config.MinReplaySize = getenvInt("REPLAY_MIN_SIZE", config.MinReplaySize)
	config.SamplesPerInsert = getenvFloat("SAMPLES_PER_INSERT",
		config.SamplesPerInsert)
	port := getenv("PORT", defaultPort)
	seed := getenvInt64("SEED", time.Now().UnixNano())

	table, err := config.NewReplayTable(uint64(seed))
	if err != nil {
		log.Fatal(err)
	}
	defer table.Close()

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           replay.Server(table),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("replay server listening on :%s (capacity=%d min=%d spi=%v)",
		port, config.MaxReplaySize, config.MinReplaySize,
		config.SamplesPerInsert)
	if err := server.ListenAndServe(); err != nil &&
		err != http.ErrServerClosed {
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

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
