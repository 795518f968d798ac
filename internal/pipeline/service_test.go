package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/KevinLaRosa/yorimichi-workers/internal/ai"
	"github.com/KevinLaRosa/yorimichi-workers/internal/ai/aitest"
	"github.com/KevinLaRosa/yorimichi-workers/internal/dedup"
	"github.com/KevinLaRosa/yorimichi-workers/internal/fetch"
	"github.com/KevinLaRosa/yorimichi-workers/internal/globaltime"
	"github.com/KevinLaRosa/yorimichi-workers/internal/ledger"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

const placePage = `<html><body><main><h1>Nakano Broadway</h1>
<p>Nakano Broadway is a shopping complex in Nakano famous for its many small
stores selling anime goods, vintage toys and collectibles. Collectors from
all over the world come here to hunt for rare figures and manga.</p>
</main></body></html>`

type fakeLedger struct {
	mu        sync.Mutex
	outcomes  map[string]ledger.Entry
	recordErr error
}

func newFakeLedger(known ...string) *fakeLedger {
	outcomes := make(map[string]ledger.Entry)
	for _, url := range known {
		outcomes[url] = ledger.Entry{URL: url, Status: ledger.StatusSuccess}
	}
	return &fakeLedger{outcomes: outcomes}
}

func (l *fakeLedger) HasOutcome(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.outcomes[url]
	return ok
}

func (l *fakeLedger) Record(_ context.Context, entry ledger.Entry) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	l.mu.Lock()
	l.outcomes[entry.URL] = entry
	l.mu.Unlock()
	return nil
}

func (l *fakeLedger) outcome(url string) (ledger.Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.outcomes[url]
	return entry, ok
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	body  string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{
		URL:        url,
		StatusCode: 200,
		Body:       []byte(f.body),
		FetchedAt:  globaltime.UTC(),
	}, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu        sync.Mutex
	drafts    []store.DraftPlace
	insertErr error
}

func (s *fakeStore) InsertDraft(_ context.Context, place store.DraftPlace) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.mu.Lock()
	s.drafts = append(s.drafts, place)
	id := int64(len(s.drafts))
	s.mu.Unlock()
	return id, nil
}

func (s *fakeStore) LogEvent(context.Context, string, string, string, any) error {
	return nil
}

func (s *fakeStore) Drafts() []store.DraftPlace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.DraftPlace(nil), s.drafts...)
}

type collaborators struct {
	ledger     *fakeLedger
	fetcher    *fakeFetcher
	classifier *aitest.Classifier
	extractor  *aitest.Extractor
	embedder   *aitest.Embedder
	index      *dedup.Index
	store      *fakeStore
}

func newCollaborators() *collaborators {
	return &collaborators{
		ledger:  newFakeLedger(),
		fetcher: &fakeFetcher{body: placePage},
		classifier: &aitest.Classifier{
			Verdict: ai.Verdict{IsSubject: true, Confidence: 1},
		},
		extractor: &aitest.Extractor{
			Extraction: ai.Extraction{
				Name:        "Nakano Broadway",
				Description: "A shopping complex full of collector stores.",
				Keywords:    []string{"shopping", "anime"},
			},
		},
		embedder: &aitest.Embedder{Vector: []float32{0.6, 0.8}},
		index:    dedup.NewIndex(0.92, nil),
		store:    &fakeStore{},
	}
}

func newTestService(t *testing.T, c *collaborators) *Service {
	t.Helper()
	service, err := NewService(zerolog.Nop(), Options{
		Ledger:     c.ledger,
		Fetcher:    c.fetcher,
		Classifier: c.classifier,
		Extractor:  c.extractor,
		Embedder:   c.embedder,
		Index:      c.index,
		Store:      c.store,
		SourceName: "Tokyo Cheapo",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestRun_StoresDraftForNewPlace(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	service := newTestService(t, c)

	summary, err := service.Run(context.Background(), []string{"https://tokyocheapo.com/place/nakano-broadway/"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Succeeded != 1 || summary.Handled() != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	drafts := c.store.Drafts()
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	draft := drafts[0]
	if draft.Name != "Nakano Broadway" {
		t.Errorf("unexpected draft name %q", draft.Name)
	}
	if draft.SourceURL != "https://tokyocheapo.com/place/nakano-broadway/" {
		t.Errorf("unexpected source url %q", draft.SourceURL)
	}
	if draft.SourceName != "Tokyo Cheapo" {
		t.Errorf("unexpected source name %q", draft.SourceName)
	}
	if len(draft.Embedding) != 2 {
		t.Errorf("draft kept no embedding")
	}

	if c.index.Size() != 1 {
		t.Errorf("index not extended after persist, size %d", c.index.Size())
	}
	entry, ok := c.ledger.outcome("https://tokyocheapo.com/place/nakano-broadway/")
	if !ok || entry.Status != ledger.StatusSuccess {
		t.Errorf("unexpected ledger outcome: %+v", entry)
	}
}

func TestRun_SecondRunTouchesNothing(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	service := newTestService(t, c)
	urls := []string{
		"https://tokyocheapo.com/place/one/",
		"https://tokyocheapo.com/place/two/",
	}

	if _, err := service.Run(context.Background(), urls); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	fetchesAfterFirst := c.fetcher.Calls()

	summary, err := service.Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.AlreadyProcessed != 2 || summary.Handled() != 0 {
		t.Fatalf("unexpected second-run summary: %+v", summary)
	}
	if c.fetcher.Calls() != fetchesAfterFirst {
		t.Errorf("second run fetched %d more urls", c.fetcher.Calls()-fetchesAfterFirst)
	}
	if c.classifier.Calls() != 2 || c.extractor.Calls() != 2 || c.embedder.Calls() != 2 {
		t.Errorf("second run reached ai collaborators")
	}
}

func TestRun_NonSubjectShortCircuits(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	c.classifier.Verdict = ai.Verdict{IsSubject: false, Confidence: 1}
	service := newTestService(t, c)

	summary, err := service.Run(context.Background(), []string{"https://tokyocheapo.com/place/roundup/"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.SkippedNotPOI != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if c.extractor.Calls() != 0 || c.embedder.Calls() != 0 {
		t.Errorf("rejected page still reached extractor or embedder")
	}
	if len(c.store.Drafts()) != 0 {
		t.Errorf("rejected page was persisted")
	}
}

func TestRun_ShortPageSkipsWithoutClassifying(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	c.fetcher.body = `<html><body><main><p>Too short.</p></main></body></html>`
	service := newTestService(t, c)

	summary, err := service.Run(context.Background(), []string{"https://tokyocheapo.com/place/stub/"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.SkippedNotPOI != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if c.classifier.Calls() != 0 {
		t.Errorf("near-empty page reached the classifier")
	}
}

func TestRun_DuplicateEmbeddingIsSkipped(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	c.index = dedup.NewIndex(0.92, [][]float32{{0.6, 0.8}})
	service := newTestService(t, c)

	summary, err := service.Run(context.Background(), []string{"https://tokyocheapo.com/place/nakano-broadway-guide/"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.SkippedDuplicate != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(c.store.Drafts()) != 0 {
		t.Errorf("duplicate place was persisted")
	}
	if c.index.Size() != 1 {
		t.Errorf("duplicate extended the index")
	}
	entry, _ := c.ledger.outcome("https://tokyocheapo.com/place/nakano-broadway-guide/")
	if entry.Status != ledger.StatusSkippedDuplicate {
		t.Errorf("unexpected outcome %+v", entry)
	}
}

func TestRun_FetchFailureDegradesToFailedOutcome(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	c.fetcher.err = errors.New("gateway timed out")
	service := newTestService(t, c)

	summary, err := service.Run(context.Background(), []string{"https://tokyocheapo.com/place/broken/"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	entry, _ := c.ledger.outcome("https://tokyocheapo.com/place/broken/")
	if entry.Status != ledger.StatusFailed {
		t.Fatalf("unexpected outcome %+v", entry)
	}
	if !strings.Contains(entry.ErrorDetail, "gateway timed out") {
		t.Errorf("error detail lost the cause: %q", entry.ErrorDetail)
	}
}

func TestRun_InsertFailureAbortsRun(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	c.store.insertErr = errors.New("connection reset")
	service := newTestService(t, c)
	urls := []string{
		"https://tokyocheapo.com/place/one/",
		"https://tokyocheapo.com/place/two/",
	}

	summary, err := service.Run(context.Background(), urls)
	if err == nil {
		t.Fatalf("expected run to abort on draft persistence failure")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("abort error lost the cause: %v", err)
	}
	if c.fetcher.Calls() != 1 {
		t.Errorf("run continued past the failed insert, %d fetches", c.fetcher.Calls())
	}
	if summary.Handled() != 0 {
		t.Errorf("aborted url still got an outcome: %+v", summary)
	}
	if _, ok := c.ledger.outcome(urls[0]); ok {
		t.Errorf("aborted url was recorded in the ledger")
	}
	if c.index.Size() != 0 {
		t.Errorf("unpersisted embedding reached the index")
	}
}

func TestRun_RecordFailureAbortsRun(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	c.ledger.recordErr = errors.New("database is down")
	service := newTestService(t, c)
	urls := []string{
		"https://tokyocheapo.com/place/one/",
		"https://tokyocheapo.com/place/two/",
	}

	_, err := service.Run(context.Background(), urls)
	if err == nil {
		t.Fatalf("expected run to abort")
	}
	if c.fetcher.Calls() != 1 {
		t.Errorf("run continued past the failed record, %d fetches", c.fetcher.Calls())
	}
}

func TestRun_EveryURLGetsExactlyOneOutcome(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	var n int
	c.classifier.Fn = func(string) (ai.Verdict, error) {
		n++
		// Alternate accept and reject across the candidate list.
		return ai.Verdict{IsSubject: n%2 == 1, Confidence: 1}, nil
	}
	service := newTestService(t, c)

	var urls []string
	for i := 0; i < 6; i++ {
		urls = append(urls, fmt.Sprintf("https://tokyocheapo.com/place/p%d/", i))
	}

	summary, err := service.Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Handled() != len(urls) {
		t.Fatalf("handled %d of %d urls: %+v", summary.Handled(), len(urls), summary)
	}
	for _, url := range urls {
		if _, ok := c.ledger.outcome(url); !ok {
			t.Errorf("url %s has no outcome", url)
		}
	}
}

func TestRun_EmptyCandidateListFinishesCleanly(t *testing.T) {
	t.Parallel()

	c := newCollaborators()
	service := newTestService(t, c)

	summary, err := service.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Candidates != 0 || summary.Handled() != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
