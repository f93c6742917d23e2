package scan_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/linkscan/internal/database"
	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/logger"
	"github.com/jonesrussell/linkscan/internal/scan"
)

type fakeScanStore struct {
	mu     sync.Mutex
	scans  map[string]*domain.Scan
	nextID int

	deletedBefore []time.Time
}

func newFakeScanStore() *fakeScanStore {
	return &fakeScanStore{scans: make(map[string]*domain.Scan)}
}

func (f *fakeScanStore) Create(_ context.Context, s *domain.Scan) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	s.ID = fmt.Sprintf("scan-%d", f.nextID)
	s.Started = time.Now()
	stored := *s
	f.scans[s.ID] = &stored

	return nil
}

func (f *fakeScanStore) GetByID(_ context.Context, id string) (*domain.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.scans[id]
	if !ok {
		return nil, database.ErrScanNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeScanStore) ListBySite(_ context.Context, siteID string, _, _ int) ([]*domain.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.Scan
	for _, s := range f.scans {
		if s.SiteID == siteID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeScanStore) Finish(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.scans[id]
	if !ok {
		return false, database.ErrScanNotFound
	}
	if s.Finished != nil {
		return false, nil
	}
	now := time.Now()
	s.Finished = &now
	return true, nil
}

func (f *fakeScanStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.scans[id]; !ok {
		return database.ErrScanNotFound
	}
	delete(f.scans, id)
	return nil
}

func (f *fakeScanStore) DeleteStartedBefore(_ context.Context, siteID string, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletedBefore = append(f.deletedBefore, cutoff)
	removed := 0
	for id, s := range f.scans {
		if s.SiteID == siteID && s.Started.Before(cutoff) {
			delete(f.scans, id)
			removed++
		}
	}
	return removed, nil
}

type fakeLinkStore struct {
	counts  domain.ScanCounts
	pending []*domain.ScanLink
}

func (f *fakeLinkStore) Counts(_ context.Context, _ string) (*domain.ScanCounts, error) {
	counts := f.counts
	return &counts, nil
}

func (f *fakeLinkStore) ListPendingByScan(_ context.Context, _ string) ([]*domain.ScanLink, error) {
	return f.pending, nil
}

type fakePageProvider struct {
	pages []domain.Page
}

func (f *fakePageProvider) LivePages(_ context.Context, _ string) ([]domain.Page, error) {
	return f.pages, nil
}

type registeredSeed struct {
	url    string
	pageID string
	follow bool
}

type fakeRegistrar struct {
	mu    sync.Mutex
	seen  map[string]bool
	seeds []registeredSeed
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{seen: make(map[string]bool)}
}

func (f *fakeRegistrar) Register(
	_ context.Context, scanID, _, ref string, pageID *string, follow bool,
) (*domain.ScanLink, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := scanID + "|" + ref
	if f.seen[key] {
		return &domain.ScanLink{ScanID: scanID, URL: ref}, false, nil
	}
	f.seen[key] = true

	seed := registeredSeed{url: ref, follow: follow}
	if pageID != nil {
		seed.pageID = *pageID
	}
	f.seeds = append(f.seeds, seed)

	return &domain.ScanLink{ID: fmt.Sprintf("link-%d", len(f.seeds)), ScanID: scanID, URL: ref, Follow: follow}, true, nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ *domain.Scan, link *domain.ScanLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, link.URL)
	return nil
}

func newService(
	scans *fakeScanStore,
	links *fakeLinkStore,
	pages *fakePageProvider,
	registrar *fakeRegistrar,
	dispatcher *fakeDispatcher,
) *scan.Service {
	return scan.New(scans, links, pages, registrar, dispatcher, logger.NewNoOp())
}

func TestStartSeedsMostRecentlyUpdatedFirst(t *testing.T) {
	now := time.Now()
	pages := &fakePageProvider{pages: []domain.Page{
		{ID: "p1", URL: "https://site.example/old", LastUpdated: now.Add(-48 * time.Hour)},
		{ID: "p2", URL: "https://site.example/new", LastUpdated: now},
		{ID: "p3", URL: "https://site.example/mid", LastUpdated: now.Add(-24 * time.Hour)},
	}}

	registrar := newFakeRegistrar()
	dispatcher := &fakeDispatcher{}
	svc := newService(newFakeScanStore(), &fakeLinkStore{}, pages, registrar, dispatcher)

	created, err := svc.Start(context.Background(), "site-1", scan.StartOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	urls := make([]string, 0, len(registrar.seeds))
	for _, seed := range registrar.seeds {
		assert.True(t, seed.follow, "seed links must be follow links")
		urls = append(urls, seed.url)
	}
	assert.Equal(t, []string{
		"https://site.example/new",
		"https://site.example/mid",
		"https://site.example/old",
	}, urls)

	assert.Equal(t, urls, dispatcher.dispatched)
}

func TestStartSeedsCarryOwnPage(t *testing.T) {
	pages := &fakePageProvider{pages: []domain.Page{
		{ID: "p1", URL: "https://site.example/a", LastUpdated: time.Now()},
	}}

	registrar := newFakeRegistrar()
	svc := newService(newFakeScanStore(), &fakeLinkStore{}, pages, registrar, &fakeDispatcher{})

	_, err := svc.Start(context.Background(), "site-1", scan.StartOptions{})
	require.NoError(t, err)

	require.Len(t, registrar.seeds, 1)
	assert.Equal(t, "p1", registrar.seeds[0].pageID)
}

func TestStartSkipsDuplicatePageURLs(t *testing.T) {
	now := time.Now()
	pages := &fakePageProvider{pages: []domain.Page{
		{ID: "p1", URL: "https://site.example/a", LastUpdated: now},
		{ID: "p2", URL: "https://site.example/a", LastUpdated: now.Add(-time.Hour)},
	}}

	registrar := newFakeRegistrar()
	dispatcher := &fakeDispatcher{}
	svc := newService(newFakeScanStore(), &fakeLinkStore{}, pages, registrar, dispatcher)

	_, err := svc.Start(context.Background(), "site-1", scan.StartOptions{})
	require.NoError(t, err)

	assert.Len(t, registrar.seeds, 1)
	assert.Len(t, dispatcher.dispatched, 1)
}

func TestStartFinishesScanWithNoLivePages(t *testing.T) {
	scans := newFakeScanStore()
	dispatcher := &fakeDispatcher{}
	svc := newService(scans, &fakeLinkStore{}, &fakePageProvider{}, newFakeRegistrar(), dispatcher)

	created, err := svc.Start(context.Background(), "site-1", scan.StartOptions{})
	require.NoError(t, err)

	// No link will ever report completion, so the scan must not be left
	// running.
	require.NotNil(t, created.Finished)
	assert.Empty(t, dispatcher.dispatched)
}

func TestStopIsIdempotent(t *testing.T) {
	scans := newFakeScanStore()
	svc := newService(scans, &fakeLinkStore{}, &fakePageProvider{}, newFakeRegistrar(), &fakeDispatcher{})

	created, err := svc.Start(context.Background(), "site-1", scan.StartOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.Stop(context.Background(), created.ID))
	assert.ErrorIs(t, svc.Stop(context.Background(), created.ID), scan.ErrAlreadyFinished)
}

func TestRedispatchPendingRefusesFinishedScan(t *testing.T) {
	scans := newFakeScanStore()
	svc := newService(scans, &fakeLinkStore{}, &fakePageProvider{}, newFakeRegistrar(), &fakeDispatcher{})

	created, err := svc.Start(context.Background(), "site-1", scan.StartOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Stop(context.Background(), created.ID))

	_, err = svc.RedispatchPending(context.Background(), created.ID)
	assert.ErrorIs(t, err, scan.ErrAlreadyFinished)
}

func TestRedispatchPendingDispatchesEachLink(t *testing.T) {
	scans := newFakeScanStore()
	links := &fakeLinkStore{pending: []*domain.ScanLink{
		{ID: "l1", URL: "https://site.example/a"},
		{ID: "l2", URL: "https://site.example/b"},
	}}
	dispatcher := &fakeDispatcher{}
	svc := newService(scans, links, &fakePageProvider{}, newFakeRegistrar(), dispatcher)

	created, err := svc.Start(context.Background(), "site-1", scan.StartOptions{})
	require.NoError(t, err)

	n, err := svc.RedispatchPending(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Len(t, dispatcher.dispatched, 2)
}

func TestCleanupUsesRetentionWindow(t *testing.T) {
	scans := newFakeScanStore()
	svc := newService(scans, &fakeLinkStore{}, &fakePageProvider{}, newFakeRegistrar(), &fakeDispatcher{})

	old := &domain.Scan{SiteID: "site-1"}
	require.NoError(t, scans.Create(context.Background(), old))
	scans.scans[old.ID].Started = time.Now().AddDate(0, 0, -60)

	recent := &domain.Scan{SiteID: "site-1"}
	require.NoError(t, scans.Create(context.Background(), recent))

	removed, err := svc.Cleanup(context.Background(), "site-1", 30)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	_, err = scans.GetByID(context.Background(), recent.ID)
	assert.NoError(t, err)
}

func TestGetReturnsCounts(t *testing.T) {
	scans := newFakeScanStore()
	links := &fakeLinkStore{counts: domain.ScanCounts{Total: 10, Broken: 2, Working: 7, Pending: 1}}
	svc := newService(scans, links, &fakePageProvider{}, newFakeRegistrar(), &fakeDispatcher{})

	created, err := svc.Start(context.Background(), "site-1", scan.StartOptions{})
	require.NoError(t, err)

	got, counts, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "2 broken links found out of 10 links", counts.Result())
}
