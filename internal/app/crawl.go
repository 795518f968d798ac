package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KevinLaRosa/yorimichi-workers/internal/ai/openai"
	"github.com/KevinLaRosa/yorimichi-workers/internal/cli"
	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/db"
	"github.com/KevinLaRosa/yorimichi-workers/internal/dedup"
	"github.com/KevinLaRosa/yorimichi-workers/internal/fetch"
	"github.com/KevinLaRosa/yorimichi-workers/internal/ledger"
	"github.com/KevinLaRosa/yorimichi-workers/internal/logging"
	"github.com/KevinLaRosa/yorimichi-workers/internal/pipeline"
	"github.com/KevinLaRosa/yorimichi-workers/internal/sitemap"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

func runCrawl(args []string) int {
	fs := flag.NewFlagSet("crawl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	target := fs.String("target", "all", fmt.Sprintf("Sitemap target: all or one of %s", strings.Join(sitemap.KnownTargets(), ", ")))
	limit := fs.Int("limit", 0, "Process at most this many new URLs (0 = no limit)")
	enumerateTimeout := fs.Duration("enumerate-timeout", 2*time.Minute, "Sitemap enumeration timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 0")
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
	if err := cfg.ValidateCrawl(); err != nil {
		fmt.Fprintf(os.Stderr, "Missing crawl credentials: %v\n", err)
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		logger.Warn().Msg("interrupt received, finishing current url")
		cancel()
	}()

	dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	enumCtx, enumCancel := context.WithTimeout(ctx, *enumerateTimeout)
	defer enumCancel()

	enumerator := sitemap.NewEnumerator(logger, sitemap.Options{})
	enumerated, err := enumerator.Enumerate(enumCtx, sources)
	if err != nil {
		logger.Error().Err(err).Msg("sitemap enumeration failed")
		fmt.Fprintf(os.Stderr, "Enumeration failed: %v\n", err)
		return 1
	}

	progressLedger := ledger.New(pool)
	known, err := progressLedger.Warm(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("ledger warm-up failed")
		fmt.Fprintf(os.Stderr, "Failed to load processed urls: %v\n", err)
		return 1
	}

	draftStore := store.New(pool)
	embeddings, err := draftStore.LoadEmbeddings(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("embedding load failed")
		fmt.Fprintf(os.Stderr, "Failed to load stored embeddings: %v\n", err)
		return 1
	}

	logger.Info().
		Int("candidates", len(enumerated.URLs)).
		Int("known_urls", known).
		Int("stored_embeddings", len(embeddings)).
		Str("target", *target).
		Msg("crawl prepared")

	candidates := enumerated.URLs
	if *limit > 0 {
		candidates = limitNewURLs(candidates, progressLedger, *limit)
	}

	fetcher := fetch.NewClient(logger, fetch.Options{
		APIKey:       cfg.ScrapingBeeAPIKey,
		Endpoint:     cfg.ScrapingBeeEndpoint,
		RenderJS:     cfg.FetchRenderJS,
		PremiumProxy: cfg.FetchPremiumProxy,
		Interval:     cfg.FetchInterval,
		Timeout:      cfg.FetchTimeout,
		MaxRetries:   cfg.FetchMaxRetries,
	})

	aiClient := openai.NewClient(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	})

	service, err := pipeline.NewService(logger, pipeline.Options{
		Ledger:     progressLedger,
		Fetcher:    fetcher,
		Classifier: openai.NewClassifier(aiClient, cfg.ClassifierModel),
		Extractor:  openai.NewExtractor(aiClient, cfg.RewriterModel),
		Embedder:   openai.NewEmbedder(aiClient, cfg.EmbeddingModel, cfg.EmbeddingDims),
		Index:      dedup.NewIndex(cfg.DedupThreshold, embeddings),
		Store:      draftStore,
		SourceName: cfg.SourceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	summary, err := service.Run(ctx, candidates)
	printSummary(summary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crawl failed: %v\n", err)
		return 1
	}
	return 0
}

// limitNewURLs keeps every already-processed URL (they cost nothing and
// keep counters honest) and at most limit unprocessed ones.
func limitNewURLs(candidates []string, progressLedger *ledger.Ledger, limit int) []string {
	kept := make([]string, 0, len(candidates))
	fresh := 0
	for _, url := range candidates {
		if progressLedger.HasOutcome(url) {
			kept = append(kept, url)
			continue
		}
		if fresh >= limit {
			continue
		}
		fresh++
		kept = append(kept, url)
	}
	return kept
}

func printSummary(summary pipeline.Summary) {
	fmt.Printf("candidates=%d already_processed=%d handled=%d\n",
		summary.Candidates, summary.AlreadyProcessed, summary.Handled())
	fmt.Printf("succeeded=%d failed=%d skipped_not_a_poi=%d skipped_duplicate=%d\n",
		summary.Succeeded, summary.Failed, summary.SkippedNotPOI, summary.SkippedDuplicate)
}
