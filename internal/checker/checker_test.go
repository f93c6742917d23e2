package checker_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/linkscan/internal/checker"
	"github.com/jonesrussell/linkscan/internal/database"
	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/logger"
	"github.com/jonesrussell/linkscan/internal/registry"
)

// memoryStore is an in-memory stand-in for the scan and link repositories,
// implementing checker.ScanStore, checker.LinkStore, checker.PreferencesStore,
// and registry.LinkStore.
type memoryStore struct {
	mu          sync.Mutex
	scans       map[string]*domain.Scan
	links       map[string]*domain.ScanLink
	byKey       map[string]string // scanID|url -> link ID
	nextID      int
	finishCalls int
	finishes    int // running -> finished transitions
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		scans: make(map[string]*domain.Scan),
		links: make(map[string]*domain.ScanLink),
		byKey: make(map[string]string),
	}
}

func (s *memoryStore) addScan(scan *domain.Scan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *scan
	s.scans[scan.ID] = &stored
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*domain.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scan, ok := s.scans[id]
	if !ok {
		return nil, database.ErrScanNotFound
	}
	copied := *scan
	return &copied, nil
}

func (s *memoryStore) Finish(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finishCalls++
	scan, ok := s.scans[id]
	if !ok {
		return false, database.ErrScanNotFound
	}
	if scan.Finished != nil {
		return false, nil
	}
	now := time.Now()
	scan.Finished = &now
	s.finishes++
	return true, nil
}

// linkStore adapts memoryStore to checker.LinkStore; a separate type keeps
// the two GetByID signatures apart.
type linkStore struct {
	s *memoryStore
}

func (l linkStore) GetByID(_ context.Context, id string) (*domain.ScanLink, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	link, ok := l.s.links[id]
	if !ok {
		return nil, database.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (l linkStore) MarkCrawled(_ context.Context, link *domain.ScanLink) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	stored, ok := l.s.links[link.ID]
	if !ok {
		return false, database.ErrLinkNotFound
	}
	if stored.Crawled {
		return false, nil
	}

	stored.Crawled = true
	stored.Invalid = link.Invalid
	stored.Broken = link.Broken
	stored.StatusCode = link.StatusCode
	stored.ErrorText = link.ErrorText

	return true, nil
}

func (l linkStore) HasPending(_ context.Context, scanID string) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	for _, link := range l.s.links {
		if link.ScanID == scanID && !link.Crawled {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) Create(_ context.Context, link *domain.ScanLink) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := link.ScanID + "|" + link.URL
	if id, ok := s.byKey[key]; ok {
		*link = *s.links[id]
		return false, nil
	}

	s.nextID++
	link.ID = fmt.Sprintf("link-%d", s.nextID)
	stored := *link
	s.links[link.ID] = &stored
	s.byKey[key] = link.ID

	return true, nil
}

func (s *memoryStore) MarkPageDeleted(_ context.Context, pageID, slug string) (int, error) {
	return 0, nil
}

// prefsStore returns default preferences for any site.
type prefsStore struct{}

func (prefsStore) GetBySite(_ context.Context, siteID string) (*domain.SitePreferences, error) {
	prefs := domain.SitePreferences{SiteID: siteID}.WithDefaults()
	return &prefs, nil
}

func newTestChecker(store *memoryStore) *checker.Checker {
	reg := registry.New(store, logger.NewNoOp())
	return checker.New(
		store,
		linkStore{s: store},
		prefsStore{},
		reg,
		nil,
		logger.NewNoOp(),
		checker.Config{UserAgent: "linkscan-test/1.0", RequestTimeout: 5 * time.Second},
	)
}

// seedLink registers a follow seed link for the scan, as the lifecycle
// service does at scan start.
func seedLink(t *testing.T, store *memoryStore, scanID, url string) *domain.ScanLink {
	t.Helper()

	reg := registry.New(store, logger.NewNoOp())
	link, created, err := reg.Register(context.Background(), scanID, url, url, nil, true)
	require.NoError(t, err)
	require.True(t, created)

	return link
}

func TestCheckLinkNotFoundStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.addScan(&domain.Scan{ID: "scan-1", SiteID: "site-1", RunSync: true, Started: time.Now()})
	link := seedLink(t, store, "scan-1", server.URL+"/gone")
	link.Follow = false
	store.links[link.ID].Follow = false

	c := newTestChecker(store)
	require.NoError(t, c.CheckLink(context.Background(), link.ID))

	checked := store.links[link.ID]
	assert.True(t, checked.Crawled)
	assert.True(t, checked.Broken)
	assert.False(t, checked.Invalid)
	require.NotNil(t, checked.StatusCode)
	assert.Equal(t, 404, *checked.StatusCode)
	require.NotNil(t, checked.ErrorText)
	assert.Equal(t, "Not Found", *checked.ErrorText)
}

func TestCheckLinkConnectionFailure(t *testing.T) {
	store := newMemoryStore()
	store.addScan(&domain.Scan{ID: "scan-1", SiteID: "site-1", RunSync: true, Started: time.Now()})
	// Reserved port with nothing listening.
	link := seedLink(t, store, "scan-1", "http://127.0.0.1:1/unreachable")

	c := newTestChecker(store)
	require.NoError(t, c.CheckLink(context.Background(), link.ID))

	checked := store.links[link.ID]
	assert.True(t, checked.Crawled)
	assert.True(t, checked.Broken)
	require.NotNil(t, checked.ErrorText)
	assert.Equal(t, "There was an error connecting to this site", *checked.ErrorText)
	assert.Nil(t, checked.StatusCode)
}

func TestCheckLinkFollowDiscoversAndRecurses(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="/b">b</a>
			<a href="/b">b again</a>
			<a href="#top">top</a>
			<a href="mailto:a@b.com">mail</a>
			<a href="/missing">missing</a>
			<img src="/logo.png">
		</body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		// Cycle back to the seed page.
		fmt.Fprintf(w, `<html><body><a href="/a">a</a></body></html>`)
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	store := newMemoryStore()
	store.addScan(&domain.Scan{ID: "scan-1", SiteID: "site-1", RunSync: true, Started: time.Now()})
	seed := seedLink(t, store, "scan-1", server.URL+"/a")

	c := newTestChecker(store)
	require.NoError(t, c.CheckLink(context.Background(), seed.ID))

	// Seed, /b, /logo.png, /missing. No row for the fragment or mailto,
	// no duplicate for the repeated /b anchor.
	assert.Len(t, store.links, 4)

	for _, link := range store.links {
		assert.True(t, link.Crawled, "link %s should be crawled", link.URL)
	}

	missing := store.links[store.byKey["scan-1|"+server.URL+"/missing"]]
	require.NotNil(t, missing)
	assert.True(t, missing.Broken)

	working := store.links[store.byKey["scan-1|"+server.URL+"/b"]]
	require.NotNil(t, working)
	assert.False(t, working.Broken)
	assert.False(t, working.Invalid)

	// Cycle did not prevent termination and the scan finished exactly once.
	scan := store.scans["scan-1"]
	require.NotNil(t, scan.Finished)
	assert.False(t, scan.Finished.Before(scan.Started))
}

func TestConcurrentChecksFinishScanOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.addScan(&domain.Scan{ID: "scan-1", SiteID: "site-1", RunSync: true, Started: time.Now()})

	reg := registry.New(store, logger.NewNoOp())
	const linkCount = 20
	linkIDs := make([]string, 0, linkCount)
	for i := range linkCount {
		url := fmt.Sprintf("%s/page-%d", server.URL, i)
		link, created, err := reg.Register(context.Background(), "scan-1", url, url, nil, false)
		require.NoError(t, err)
		require.True(t, created)
		linkIDs = append(linkIDs, link.ID)
	}

	// All workers race toward the scan's last pending link; completion
	// must be recorded exactly once no matter who detects it.
	c := newTestChecker(store)
	var wg sync.WaitGroup
	errs := make([]error, linkCount)
	for i, id := range linkIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.CheckLink(context.Background(), id)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	for _, id := range linkIDs {
		assert.True(t, store.links[id].Crawled)
	}

	scan := store.scans["scan-1"]
	require.NotNil(t, scan.Finished)
	assert.Equal(t, 1, store.finishes)
	assert.GreaterOrEqual(t, store.finishCalls, 1)
}

func TestCheckLinkNoOpWhenScanFinished(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore()
	finished := time.Now()
	store.addScan(&domain.Scan{
		ID: "scan-1", SiteID: "site-1", RunSync: true,
		Started: finished.Add(-time.Minute), Finished: &finished,
	})
	link := seedLink(t, store, "scan-1", server.URL+"/a")

	c := newTestChecker(store)
	require.NoError(t, c.CheckLink(context.Background(), link.ID))

	assert.Zero(t, requests)
	assert.False(t, store.links[link.ID].Crawled)
}

func TestCheckLinkNoOpWhenAlreadyCrawled(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.addScan(&domain.Scan{ID: "scan-1", SiteID: "site-1", RunSync: true, Started: time.Now()})
	link := seedLink(t, store, "scan-1", server.URL+"/a")
	store.links[link.ID].Crawled = true

	c := newTestChecker(store)
	require.NoError(t, c.CheckLink(context.Background(), link.ID))

	assert.Zero(t, requests)
}

func TestCheckLinkMissingLinkIsSkipped(t *testing.T) {
	store := newMemoryStore()
	c := newTestChecker(store)

	require.NoError(t, c.CheckLink(context.Background(), "no-such-link"))
}

func TestDispatchAsyncEnqueues(t *testing.T) {
	store := newMemoryStore()
	scan := &domain.Scan{ID: "scan-1", SiteID: "site-1", RunSync: false, Started: time.Now()}
	store.addScan(scan)
	link := seedLink(t, store, "scan-1", "https://site.example/a")

	enq := &recordingEnqueuer{}
	c := checker.New(
		store, linkStore{s: store}, prefsStore{},
		registry.New(store, logger.NewNoOp()),
		enq, logger.NewNoOp(), checker.Config{},
	)

	require.NoError(t, c.Dispatch(context.Background(), scan, link))

	require.Len(t, enq.calls, 1)
	assert.Equal(t, "scan-1", enq.calls[0].scanID)
	assert.Equal(t, link.ID, enq.calls[0].linkID)
	assert.False(t, store.links[link.ID].Crawled)
}

type enqueueCall struct {
	scanID string
	linkID string
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
}

func (e *recordingEnqueuer) EnqueueCheck(_ context.Context, scanID, linkID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, enqueueCall{scanID: scanID, linkID: linkID})
	return nil
}
