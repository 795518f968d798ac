package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultBodyByteLimit = 16 * 1024 * 1024

	defaultUserAgent = "yorimichi-workers/1.0 (+https://github.com/KevinLaRosa/yorimichi-workers)"
)

// Paths and extensions that never point at a place document.
var (
	excludedExtensions = []string{
		".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg",
		".pdf", ".xml", ".css", ".js", ".ico",
	}
	excludedPathParts = []string{
		"/page/", "/tag/", "/category/", "/author/", "/feed/", "/wp-content/",
	}
)

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// Options controls HTTP behavior of the enumerator.
type Options struct {
	Timeout       time.Duration
	BodyByteLimit int64
	UserAgent     string
	HTTPClient    *http.Client
}

// Enumerator expands sitemap indices into a de-duplicated, filtered set of
// candidate URLs.
type Enumerator struct {
	opts   Options
	logger zerolog.Logger
}

// Result reports one enumeration pass.
type Result struct {
	URLs           []string
	ReadableCount  int
	SkippedIndices []string
}

func NewEnumerator(logger zerolog.Logger, opts Options) *Enumerator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.BodyByteLimit <= 0 {
		opts.BodyByteLimit = DefaultBodyByteLimit
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Enumerator{opts: opts, logger: logger}
}

// Enumerate expands every sitemap of every source, applying per-source
// include patterns and the global exclusions. Order is first-seen order.
// An unreadable index is logged and skipped; the pass fails only when no
// index at all could be read.
func (e *Enumerator) Enumerate(ctx context.Context, sources []Source) (Result, error) {
	if e == nil {
		return Result{}, fmt.Errorf("enumerator is not initialized")
	}

	var result Result
	seen := make(map[string]struct{})

	for _, source := range sources {
		for _, indexURL := range source.SitemapURLs {
			locs, err := e.fetchLocs(ctx, indexURL, true)
			if err != nil {
				e.logger.Warn().Err(err).Str("sitemap", indexURL).Msg("sitemap index unreadable, skipping")
				result.SkippedIndices = append(result.SkippedIndices, indexURL)
				continue
			}
			result.ReadableCount++

			kept := 0
			for _, loc := range locs {
				candidate, ok := normalizeCandidate(loc)
				if !ok {
					continue
				}
				if !matchesInclude(candidate, source.IncludePatterns) {
					continue
				}
				if isExcluded(candidate) {
					continue
				}
				if _, dup := seen[candidate]; dup {
					continue
				}
				seen[candidate] = struct{}{}
				result.URLs = append(result.URLs, candidate)
				kept++
			}

			e.logger.Info().
				Str("sitemap", indexURL).
				Str("category", source.Category).
				Int("found", len(locs)).
				Int("kept", kept).
				Msg("sitemap enumerated")
		}
	}

	if result.ReadableCount == 0 {
		return result, fmt.Errorf("no readable sitemap index out of %d", len(result.SkippedIndices))
	}
	return result, nil
}

// fetchLocs downloads one sitemap document and returns its <loc> entries.
// A sitemapindex is expanded one level deep.
func (e *Enumerator) fetchLocs(ctx context.Context, indexURL string, expandNested bool) ([]string, error) {
	body, err := e.download(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		locs := make([]string, 0, len(set.URLs))
		for _, entry := range set.URLs {
			locs = append(locs, entry.Loc)
		}
		return locs, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		if !expandNested {
			return nil, fmt.Errorf("nested sitemap index below %s exceeds supported depth", indexURL)
		}
		var locs []string
		for _, child := range index.Sitemaps {
			childURL := strings.TrimSpace(child.Loc)
			if childURL == "" {
				continue
			}
			childLocs, err := e.fetchLocs(ctx, childURL, false)
			if err != nil {
				e.logger.Warn().Err(err).Str("sitemap", childURL).Msg("nested sitemap unreadable, skipping")
				continue
			}
			locs = append(locs, childLocs...)
		}
		return locs, nil
	}

	return nil, fmt.Errorf("document at %s is neither urlset nor sitemapindex", indexURL)
}

func (e *Enumerator) download(ctx context.Context, target string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)
	req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sitemap status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.BodyByteLimit))
	if err != nil {
		return nil, fmt.Errorf("read sitemap body: %w", err)
	}
	return body, nil
}

func normalizeCandidate(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	return parsed.String(), true
}

func matchesInclude(candidate string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	for _, pattern := range patterns {
		if strings.Contains(parsed.Path, pattern) {
			return true
		}
	}
	return false
}

func isExcluded(candidate string) bool {
	parsed, err := url.Parse(candidate)
	if err != nil {
		return true
	}
	path := strings.ToLower(parsed.Path)
	for _, ext := range excludedExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	for _, part := range excludedPathParts {
		if strings.Contains(path, part) {
			return true
		}
	}
	return false
}
