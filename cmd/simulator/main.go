package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"bayou-chat/simulator"

	"github.com/lmittmann/tint"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "base URL of a running server")
	pairs := flag.Int("pairs", 5, "number of conversation pairs")
	duration := flag.Duration("duration", 2*time.Minute, "how long to run")
	frequency := flag.Float64("frequency", 30.0, "actions per participant per minute")
	flag.Parse()

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))

	config := simulator.SimConfig{
		ServerURL:      *serverURL,
		NumPairs:       *pairs,
		SimulationTime: *duration,
		SendFrequency:  *frequency,
		EditRate:       0.15,
		DeleteRate:     0.05,
		ReadRate:       0.25,
	}

	log.Info("starting simulation",
		"server", config.ServerURL,
		"pairs", config.NumPairs,
		"duration", config.SimulationTime,
		"frequency", config.SendFrequency)

	sim := simulator.New(config, log)
	ctx, cancel := context.WithTimeout(context.Background(), config.SimulationTime)
	defer cancel()

	if err := sim.Run(ctx); err != nil {
		log.Error("simulation failed", "error", err)
		os.Exit(1)
	}

	stats := sim.Stats()
	log.Info("simulation completed",
		"requests", stats.TotalRequests,
		"failed", stats.FailedRequests,
		"sent", stats.Sent,
		"replied", stats.Replied,
		"edited", stats.Edited,
		"deleted", stats.Deleted,
		"read", stats.Read,
		"pushes_applied", stats.PushedApplied,
		"push_errors", stats.PushErrors)
}
