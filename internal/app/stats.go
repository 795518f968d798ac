package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/KevinLaRosa/yorimichi-workers/internal/cli"
	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/db"
	"github.com/KevinLaRosa/yorimichi-workers/internal/ledger"
	"github.com/KevinLaRosa/yorimichi-workers/internal/logging"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	asJSON := fs.Bool("json", false, "Print stats as JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	counts, err := ledger.New(pool).Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query outcome counts: %v\n", err)
		return 1
	}
	drafts, err := store.New(pool).CountDrafts(ctx, cfg.SourceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count draft locations: %v\n", err)
		return 1
	}

	if *asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(map[string]int64{
			"processed_total":   counts.Total,
			"succeeded":         counts.Success,
			"failed":            counts.Failed,
			"skipped_not_a_poi": counts.SkippedNotPOI,
			"skipped_duplicate": counts.SkippedDuplicate,
			"draft_locations":   drafts,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("processed_total     %d\n", counts.Total)
	fmt.Printf("succeeded           %d\n", counts.Success)
	fmt.Printf("failed              %d\n", counts.Failed)
	fmt.Printf("skipped_not_a_poi   %d\n", counts.SkippedNotPOI)
	fmt.Printf("skipped_duplicate   %d\n", counts.SkippedDuplicate)
	fmt.Printf("draft_locations     %d\n", drafts)
	return 0
}
