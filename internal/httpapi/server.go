// Package httpapi serves a small read-only status API over the crawl
// ledger, draft locations and agent logs.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/KevinLaRosa/yorimichi-workers/internal/db"
	"github.com/KevinLaRosa/yorimichi-workers/internal/ledger"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

const maxLogLimit = 200

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	SourceName string
}

// statsSource reports processing outcome counts.
type statsSource interface {
	Stats(ctx context.Context) (ledger.Counts, error)
}

// draftSource reports draft locations and recent agent events.
type draftSource interface {
	CountDrafts(ctx context.Context, sourceName string) (int64, error)
	RecentEvents(ctx context.Context, limit int) ([]store.AgentLogEntry, error)
}

// pinger checks database liveness.
type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	pool   pinger
	ledger statsSource
	store  draftSource
	logger zerolog.Logger
	opts   Options
}

type statsResponse struct {
	ProcessedTotal   int64 `json:"processed_total"`
	Succeeded        int64 `json:"succeeded"`
	Failed           int64 `json:"failed"`
	SkippedNotPOI    int64 `json:"skipped_not_a_poi"`
	SkippedDuplicate int64 `json:"skipped_duplicate"`
	DraftLocations   int64 `json:"draft_locations"`
}

func NewServer(pool *db.Pool, progressLedger *ledger.Ledger, draftStore *store.Store, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:   pool,
		ledger: progressLedger,
		store:  draftStore,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			SourceName:      opts.SourceName,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/logs", s.handleLogs)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("status server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("status server stopped")
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return internalError(c, "database unreachable")
	}
	return success(c, map[string]string{"state": "ok"})
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := s.ledger.Stats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("ledger stats failed")
		return internalError(c, "could not load processing stats")
	}
	drafts, err := s.store.CountDrafts(ctx, s.opts.SourceName)
	if err != nil {
		s.logger.Error().Err(err).Msg("draft count failed")
		return internalError(c, "could not load draft count")
	}

	return success(c, statsResponse{
		ProcessedTotal:   counts.Total,
		Succeeded:        counts.Success,
		Failed:           counts.Failed,
		SkippedNotPOI:    counts.SkippedNotPOI,
		SkippedDuplicate: counts.SkippedDuplicate,
		DraftLocations:   drafts,
	})
}

func (s *Server) handleLogs(c echo.Context) error {
	limit := 50
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return fail(c, http.StatusBadRequest, "limit must be a positive integer", nil)
		}
		limit = min(parsed, maxLogLimit)
	}

	entries, err := s.store.RecentEvents(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("agent log query failed")
		return internalError(c, "could not load agent logs")
	}
	if entries == nil {
		entries = []store.AgentLogEntry{}
	}
	return success(c, map[string]any{"logs": entries})
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}
