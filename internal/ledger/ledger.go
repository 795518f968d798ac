// Package ledger tracks per-URL processing outcomes so interrupted or
// repeated runs never reprocess a URL that already has one.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinLaRosa/yorimichi-workers/internal/db"
	"github.com/KevinLaRosa/yorimichi-workers/internal/globaltime"
)

// Terminal outcome statuses. Every processed URL ends up with exactly one.
const (
	StatusSuccess          = "success"
	StatusFailed           = "failed"
	StatusSkippedNotPOI    = "skipped_not_a_poi"
	StatusSkippedDuplicate = "skipped_duplicate"
)

// Entry is one recorded outcome.
type Entry struct {
	URL         string
	Status      string
	ErrorDetail string
}

// Counts aggregates ledger rows by status.
type Counts struct {
	Total            int64
	Success          int64
	Failed           int64
	SkippedNotPOI    int64
	SkippedDuplicate int64
}

// Ledger is backed by the processed_urls table. Warm loads the known URL
// set once so membership checks during a run stay off the database.
type Ledger struct {
	pool *db.Pool

	mu   sync.RWMutex
	seen map[string]struct{}
}

func New(pool *db.Pool) *Ledger {
	return &Ledger{
		pool: pool,
		seen: make(map[string]struct{}),
	}
}

// Warm loads every recorded URL into memory and returns how many it found.
func (l *Ledger) Warm(ctx context.Context) (int, error) {
	rows, err := l.pool.Query(ctx, `SELECT url FROM processed_urls`)
	if err != nil {
		return 0, fmt.Errorf("load processed urls: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return 0, fmt.Errorf("scan processed url: %w", err)
		}
		seen[url] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate processed urls: %w", err)
	}

	l.mu.Lock()
	l.seen = seen
	l.mu.Unlock()
	return len(seen), nil
}

// HasOutcome reports whether the URL already has a recorded outcome. It
// consults only the warmed set; callers must Warm before a run.
func (l *Ledger) HasOutcome(url string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[url]
	return ok
}

// Record upserts the outcome for a URL and adds it to the warmed set. A
// re-recorded URL keeps its latest status.
func (l *Ledger) Record(ctx context.Context, entry Entry) error {
	if entry.URL == "" {
		return fmt.Errorf("ledger entry has empty url")
	}
	switch entry.Status {
	case StatusSuccess, StatusFailed, StatusSkippedNotPOI, StatusSkippedDuplicate:
	default:
		return fmt.Errorf("unknown ledger status %q", entry.Status)
	}

	var errorDetail *string
	if entry.ErrorDetail != "" {
		errorDetail = &entry.ErrorDetail
	}

	tag, err := l.pool.Exec(ctx, `
		INSERT INTO processed_urls (url, status, error_detail, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			status = EXCLUDED.status,
			error_detail = EXCLUDED.error_detail,
			processed_at = EXCLUDED.processed_at
	`, entry.URL, entry.Status, errorDetail, globaltime.UTC())
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", entry.URL, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("record outcome for %s: %d rows affected", entry.URL, tag.RowsAffected())
	}

	l.mu.Lock()
	l.seen[entry.URL] = struct{}{}
	l.mu.Unlock()
	return nil
}

// Stats counts recorded outcomes by status.
func (l *Ledger) Stats(ctx context.Context) (Counts, error) {
	rows, err := l.pool.Query(ctx, `SELECT status, COUNT(*) FROM processed_urls GROUP BY status`)
	if err != nil {
		return Counts{}, fmt.Errorf("count processed urls: %w", err)
	}
	defer rows.Close()

	var counts Counts
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, fmt.Errorf("scan status count: %w", err)
		}
		counts.Total += n
		switch status {
		case StatusSuccess:
			counts.Success = n
		case StatusFailed:
			counts.Failed = n
		case StatusSkippedNotPOI:
			counts.SkippedNotPOI = n
		case StatusSkippedDuplicate:
			counts.SkippedDuplicate = n
		}
	}
	if err := rows.Err(); err != nil {
		return Counts{}, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}
