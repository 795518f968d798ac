// Package pipeline orchestrates the crawl: for every candidate URL it
// fetches, extracts, classifies, rewrites, embeds, deduplicates and
// persists, recording exactly one terminal outcome per URL.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/KevinLaRosa/yorimichi-workers/internal/ai"
	"github.com/KevinLaRosa/yorimichi-workers/internal/extract"
	"github.com/KevinLaRosa/yorimichi-workers/internal/fetch"
	"github.com/KevinLaRosa/yorimichi-workers/internal/langdetect"
	"github.com/KevinLaRosa/yorimichi-workers/internal/ledger"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

// MinTextChars is the minimum extracted text length for a page to be worth
// classifying. Shorter pages are index or navigation shells.
const MinTextChars = 100

// progressInterval is how many handled URLs pass between progress reports.
const progressInterval = 25

// ProgressLedger tracks which URLs already have outcomes.
type ProgressLedger interface {
	HasOutcome(url string) bool
	Record(ctx context.Context, entry ledger.Entry) error
}

// Fetcher retrieves a page body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// SimilarityIndex answers duplicate queries over persisted embeddings.
type SimilarityIndex interface {
	IsDuplicate(vector []float32) (bool, float64)
	Add(vector []float32)
	Size() int
}

// DraftStore persists extracted places and lifecycle events.
type DraftStore interface {
	InsertDraft(ctx context.Context, place store.DraftPlace) (int64, error)
	LogEvent(ctx context.Context, agentName, status, message string, details any) error
}

// Options bundle the collaborators and per-run settings.
type Options struct {
	Ledger     ProgressLedger
	Fetcher    Fetcher
	Classifier ai.Classifier
	Extractor  ai.Extractor
	Embedder   ai.Embedder
	Index      SimilarityIndex
	Store      DraftStore

	SourceName string
	AgentName  string
}

// Summary reports what one run did.
type Summary struct {
	Candidates       int
	AlreadyProcessed int
	Succeeded        int
	Failed           int
	SkippedNotPOI    int
	SkippedDuplicate int
}

// Handled is the number of URLs that got an outcome this run.
func (s Summary) Handled() int {
	return s.Succeeded + s.Failed + s.SkippedNotPOI + s.SkippedDuplicate
}

// Service runs the ingestion pipeline over a candidate URL list.
type Service struct {
	opts   Options
	logger zerolog.Logger
}

func NewService(logger zerolog.Logger, opts Options) (*Service, error) {
	if opts.Ledger == nil || opts.Fetcher == nil || opts.Classifier == nil ||
		opts.Extractor == nil || opts.Embedder == nil || opts.Index == nil || opts.Store == nil {
		return nil, fmt.Errorf("pipeline options are missing a collaborator")
	}
	if opts.AgentName == "" {
		opts.AgentName = "yorimichi-crawler"
	}
	return &Service{
		opts:   opts,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Run processes every candidate URL that has no recorded outcome yet. A
// failing collaborator degrades that one URL to a failed outcome; a
// persistence failure, draft or outcome alike, means the store is
// unavailable and aborts the run.
func (s *Service) Run(ctx context.Context, candidates []string) (Summary, error) {
	summary := Summary{Candidates: len(candidates)}

	s.logger.Info().
		Int("candidates", len(candidates)).
		Int("known_embeddings", s.opts.Index.Size()).
		Str("source", s.opts.SourceName).
		Msg("starting run")
	s.logRunEvent(ctx, "started", fmt.Sprintf("run started with %d candidate urls", len(candidates)), summary)

	for _, url := range candidates {
		if err := ctx.Err(); err != nil {
			s.logRunEvent(ctx, "interrupted", "run interrupted", summary)
			return summary, fmt.Errorf("run interrupted: %w", err)
		}

		if s.opts.Ledger.HasOutcome(url) {
			summary.AlreadyProcessed++
			continue
		}

		entry, err := s.processURL(ctx, url)
		if err != nil {
			s.logRunEvent(ctx, "aborted", "run aborted: draft could not be persisted", summary)
			return summary, fmt.Errorf("persist draft: %w", err)
		}
		if err := s.opts.Ledger.Record(ctx, entry); err != nil {
			s.logRunEvent(ctx, "aborted", "run aborted: outcome could not be recorded", summary)
			return summary, fmt.Errorf("record outcome: %w", err)
		}

		switch entry.Status {
		case ledger.StatusSuccess:
			summary.Succeeded++
		case ledger.StatusFailed:
			summary.Failed++
		case ledger.StatusSkippedNotPOI:
			summary.SkippedNotPOI++
		case ledger.StatusSkippedDuplicate:
			summary.SkippedDuplicate++
		}

		if handled := summary.Handled(); handled%progressInterval == 0 {
			s.logger.Info().
				Int("handled", handled).
				Int("succeeded", summary.Succeeded).
				Int("failed", summary.Failed).
				Msg("run progress")
			s.logRunEvent(ctx, "progress", fmt.Sprintf("%d urls handled", handled), summary)
		}
	}

	s.logger.Info().
		Int("handled", summary.Handled()).
		Int("already_processed", summary.AlreadyProcessed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped_not_a_poi", summary.SkippedNotPOI).
		Int("skipped_duplicate", summary.SkippedDuplicate).
		Msg("run finished")
	s.logRunEvent(ctx, "finished", "run finished", summary)

	return summary, nil
}

// processURL takes one URL through every stage and returns its outcome.
// The error return is reserved for draft-persistence failures; every other
// stage failure is folded into the returned entry.
func (s *Service) processURL(ctx context.Context, url string) (ledger.Entry, error) {
	logger := s.logger.With().Str("url", url).Logger()

	page, err := s.opts.Fetcher.Fetch(ctx, url)
	if err != nil {
		logger.Warn().Err(err).Msg("fetch failed")
		return failedEntry(url, fmt.Errorf("fetch: %w", err)), nil
	}

	text, err := extract.Text(url, page.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("text extraction failed")
		return failedEntry(url, fmt.Errorf("extract text: %w", err)), nil
	}
	if len([]rune(text)) < MinTextChars {
		logger.Debug().Int("chars", len([]rune(text))).Msg("too little text, not a poi page")
		return ledger.Entry{URL: url, Status: ledger.StatusSkippedNotPOI}, nil
	}

	verdict, err := s.opts.Classifier.Classify(ctx, text)
	if err != nil {
		logger.Warn().Err(err).Msg("classification failed")
		return failedEntry(url, fmt.Errorf("classify: %w", err)), nil
	}
	if !verdict.IsSubject {
		logger.Debug().Float64("confidence", verdict.Confidence).Msg("classified as not a poi")
		return ledger.Entry{URL: url, Status: ledger.StatusSkippedNotPOI}, nil
	}

	extraction, err := s.opts.Extractor.RewriteAndExtract(ctx, text)
	if err != nil {
		logger.Warn().Err(err).Msg("rewrite and extraction failed")
		return failedEntry(url, fmt.Errorf("rewrite and extract: %w", err)), nil
	}

	embedding, err := s.opts.Embedder.EmbedText(ctx, extraction.Name+"\n\n"+extraction.Description)
	if err != nil {
		logger.Warn().Err(err).Msg("embedding failed")
		return failedEntry(url, fmt.Errorf("embed: %w", err)), nil
	}

	if dup, score := s.opts.Index.IsDuplicate(embedding); dup {
		logger.Info().Str("name", extraction.Name).Float64("similarity", score).Msg("semantic duplicate")
		return ledger.Entry{URL: url, Status: ledger.StatusSkippedDuplicate}, nil
	}

	place := store.DraftPlace{
		Name:         extraction.Name,
		Description:  extraction.Description,
		Neighborhood: extraction.Neighborhood,
		Summary:      extraction.Summary,
		Keywords:     extraction.Keywords,
		SourceURL:    url,
		SourceName:   s.opts.SourceName,
		ScrapedAt:    page.FetchedAt,
		Language:     langdetect.DetectISO6391(extraction.Description),
		Embedding:    embedding,
	}
	locationID, err := s.opts.Store.InsertDraft(ctx, place)
	if err != nil {
		// A rejected draft means the store is unavailable, not that this
		// page is bad. Surface it so the run stops instead of burning
		// through the remaining candidates.
		logger.Error().Err(err).Msg("draft insert failed")
		return ledger.Entry{}, fmt.Errorf("insert draft for %s: %w", url, err)
	}

	// Index only after the draft is stored, so the in-memory view never
	// claims a place the database does not have.
	s.opts.Index.Add(embedding)

	logger.Info().Str("name", extraction.Name).Int64("location_id", locationID).Msg("draft place stored")
	return ledger.Entry{URL: url, Status: ledger.StatusSuccess}, nil
}

func (s *Service) logRunEvent(ctx context.Context, status, message string, summary Summary) {
	details := map[string]any{
		"candidates":        summary.Candidates,
		"already_processed": summary.AlreadyProcessed,
		"succeeded":         summary.Succeeded,
		"failed":            summary.Failed,
		"skipped_not_a_poi": summary.SkippedNotPOI,
		"skipped_duplicate": summary.SkippedDuplicate,
	}
	if err := s.opts.Store.LogEvent(ctx, s.opts.AgentName, status, message, details); err != nil {
		s.logger.Warn().Err(err).Msg("agent log write failed")
	}
}

func failedEntry(url string, err error) ledger.Entry {
	return ledger.Entry{
		URL:         url,
		Status:      ledger.StatusFailed,
		ErrorDetail: err.Error(),
	}
}
