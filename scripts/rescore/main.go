// Command rescore runs one global fixed-point pass over every claim in
// the database and reports the result. Run it after bulk imports or
// after changing engine tunables, when the cached scores are known to
// be stale across the board.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./scripts/rescore
//
// Safe to run while the server is up. The pass reads the live graph,
// reports convergence, and broadcasts an invalidation per claim so
// running instances refresh their caches on the next fetch.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/openargument/reasonrank/internal/config"
	"github.com/openargument/reasonrank/internal/engine"
	"github.com/openargument/reasonrank/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := storage.New(ctx, dbURL, dbURL, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close(ctx)

	eng, err := engine.New(engine.Params{
		Store:  db,
		Config: config.DefaultEngine(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	start := time.Now()
	scores, stats, err := eng.Propagate(ctx)
	if err != nil {
		return fmt.Errorf("propagate: %w", err)
	}
	for id, score := range scores {
		eng.Cache().Put(id, score)
		if err := db.BroadcastInvalidation(ctx, id); err != nil {
			logger.Warn("broadcast failed", "claim_id", id, "error", err)
		}
	}

	fmt.Printf("rescored %d claims in %d iterations (max delta %.6f, converged %v) in %s\n",
		stats.Claims, stats.Iterations, stats.MaxDelta, stats.Converged, time.Since(start).Round(time.Millisecond))
	return nil
}
