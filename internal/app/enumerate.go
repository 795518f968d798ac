package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KevinLaRosa/yorimichi-workers/internal/cli"
	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/logging"
	"github.com/KevinLaRosa/yorimichi-workers/internal/sitemap"
)

// runEnumerate lists candidate URLs without touching the database or any
// paid API. Useful for checking source patterns before a crawl.
func runEnumerate(args []string) int {
	fs := flag.NewFlagSet("enumerate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	target := fs.String("target", "all", fmt.Sprintf("Sitemap target: all or one of %s", strings.Join(sitemap.KnownTargets(), ", ")))
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	quiet := fs.Bool("quiet", false, "Print only the URL count")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	sources, err := sitemap.SourcesForTarget(*target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid target: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	enumerator := sitemap.NewEnumerator(logger, sitemap.Options{})
	result, err := enumerator.Enumerate(ctx, sources)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enumeration failed: %v\n", err)
		return 1
	}

	if !*quiet {
		for _, url := range result.URLs {
			fmt.Println(url)
		}
	}
	fmt.Fprintf(os.Stderr, "%d candidate urls from %d sources (%d sitemaps readable)\n",
		len(result.URLs), len(sources), result.ReadableCount)
	return 0
}
