// Package store persists draft places and run lifecycle events.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KevinLaRosa/yorimichi-workers/internal/db"
	"github.com/KevinLaRosa/yorimichi-workers/internal/globaltime"
)

// DraftPlace is one extracted place ready to be inserted as an inactive
// location row.
type DraftPlace struct {
	Name         string
	Description  string
	Neighborhood string
	Summary      string
	Keywords     []string
	SourceURL    string
	SourceName   string
	ScrapedAt    time.Time
	Language     string
	Embedding    []float32
}

// Store wraps the locations and agent_logs tables.
type Store struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

type placeFeatures struct {
	Neighborhood string   `json:"neighborhood,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// InsertDraft writes the place as an inactive location and returns its id.
func (s *Store) InsertDraft(ctx context.Context, place DraftPlace) (int64, error) {
	if place.Name == "" || place.Description == "" {
		return 0, fmt.Errorf("draft place is missing name or description")
	}

	features, err := json.Marshal(placeFeatures{
		Neighborhood: place.Neighborhood,
		Summary:      place.Summary,
		Keywords:     place.Keywords,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal place features: %w", err)
	}

	var language *string
	if place.Language != "" {
		language = &place.Language
	}

	var locationID int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO locations
			(name, description, is_active, source_url, source_name, source_scraped_at, language, features, embedding, created_at)
		VALUES (?, ?, FALSE, ?, ?, ?, ?, ?, ?::vector, ?)
		RETURNING location_id
	`,
		place.Name,
		place.Description,
		place.SourceURL,
		place.SourceName,
		place.ScrapedAt,
		language,
		features,
		toVectorLiteral(place.Embedding),
		globaltime.UTC(),
	).Scan(&locationID)
	if db.IsNoRows(err) {
		return 0, fmt.Errorf("insert draft location: no row returned")
	}
	if err != nil {
		return 0, fmt.Errorf("insert draft location: %w", err)
	}
	return locationID, nil
}

// CountDrafts returns how many inactive locations exist for the source.
func (s *Store) CountDrafts(ctx context.Context, sourceName string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM locations WHERE is_active = FALSE AND source_name = ?`,
		sourceName,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count draft locations: %w", err)
	}
	return n, nil
}

// LoadEmbeddings returns the embedding of every stored location, parsed
// from pgvector's text representation. Rows without an embedding are
// skipped.
func (s *Store) LoadEmbeddings(ctx context.Context) ([][]float32, error) {
	rows, err := s.pool.Query(ctx, `SELECT embedding::text FROM locations WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load location embeddings: %w", err)
	}
	defer rows.Close()

	var vectors [][]float32
	for rows.Next() {
		var literal string
		if err := rows.Scan(&literal); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vector, err := parseVectorLiteral(literal)
		if err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
		if len(vector) > 0 {
			vectors = append(vectors, vector)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return vectors, nil
}

// AgentLogEntry is one recent agent_logs row.
type AgentLogEntry struct {
	AgentName string          `json:"agent_name"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// LogEvent appends a lifecycle event to agent_logs. Details may be nil.
func (s *Store) LogEvent(ctx context.Context, agentName, status, message string, details any) error {
	var payload json.RawMessage
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal log details: %w", err)
		}
		payload = encoded
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_logs (agent_name, status, message, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, agentName, status, message, payload, globaltime.UTC())
	if err != nil {
		return fmt.Errorf("insert agent log: %w", err)
	}
	return nil
}

// RecentEvents returns the newest agent_logs rows, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]AgentLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT agent_name, status, message, details, created_at
		FROM agent_logs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load agent logs: %w", err)
	}
	defer rows.Close()

	var entries []AgentLogEntry
	for rows.Next() {
		var entry AgentLogEntry
		var details *json.RawMessage
		if err := rows.Scan(&entry.AgentName, &entry.Status, &entry.Message, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent log: %w", err)
		}
		if details != nil {
			entry.Details = *details
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent logs: %w", err)
	}
	return entries, nil
}
