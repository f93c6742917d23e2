package report_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/linkscan/internal/database"
	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/logger"
	"github.com/jonesrussell/linkscan/internal/report"
)

type fakeStores struct {
	scan   *domain.Scan
	counts domain.ScanCounts
	broken []*domain.ScanLink
}

func (f *fakeStores) GetByID(_ context.Context, _ string) (*domain.Scan, error) {
	return f.scan, nil
}

func (f *fakeStores) Counts(_ context.Context, _ string) (*domain.ScanCounts, error) {
	counts := f.counts
	return &counts, nil
}

func (f *fakeStores) ListByScan(
	_ context.Context, _ string, _ database.ListFilters,
) ([]*domain.ScanLink, error) {
	return f.broken, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []report.Message
}

func (r *recordingSender) Send(_ context.Context, msg report.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func brokenLink(url string, status *int, reason string, pageID, slug *string) *domain.ScanLink {
	link := &domain.ScanLink{
		URL:        url,
		Crawled:    true,
		Broken:     true,
		StatusCode: status,
		PageID:     pageID,
		PageSlug:   slug,
	}
	if reason != "" {
		link.ErrorText = &reason
	}
	return link
}

func testStores() *fakeStores {
	return &fakeStores{
		scan:   &domain.Scan{ID: "scan-1", SiteID: "site-1", Started: time.Now()},
		counts: domain.ScanCounts{Total: 12, Broken: 3, Working: 9},
		broken: []*domain.ScanLink{
			brokenLink("https://ext.example/gone", intPtr(404), "Not Found", strPtr("p1"), strPtr("about")),
			brokenLink("https://ext.example/error", intPtr(500), "Server Error", strPtr("p1"), strPtr("about")),
			brokenLink("https://other.example/", nil,
				"There was an error connecting to this site", nil, nil),
		},
	}
}

func TestBuildGroupsBrokenLinksByPage(t *testing.T) {
	stores := testStores()
	builder := report.NewBuilder(stores, stores)

	rep, err := builder.Build(context.Background(), "scan-1")
	require.NoError(t, err)

	assert.Equal(t, "site-1", rep.SiteID)
	require.Len(t, rep.Groups, 2)

	assert.Equal(t, "p1", rep.Groups[0].PageID)
	assert.Equal(t, "about", rep.Groups[0].PageSlug)
	assert.Len(t, rep.Groups[0].Links, 2)

	// Links with no source page trail the per-page groups.
	assert.Empty(t, rep.Groups[1].PageID)
	assert.Len(t, rep.Groups[1].Links, 1)
}

func TestRenderReport(t *testing.T) {
	stores := testStores()
	builder := report.NewBuilder(stores, stores)

	rep, err := builder.Build(context.Background(), "scan-1")
	require.NoError(t, err)

	body := rep.Render()
	assert.Contains(t, body, "3 broken links found out of 12 links")
	assert.Contains(t, body, "Page about:")
	assert.Contains(t, body, "https://ext.example/gone - Not Found")
	assert.Contains(t, body, "Other links:")
	assert.Contains(t, body, "https://other.example/ - There was an error connecting to this site")
}

type fakePages struct {
	pages []domain.Page
	err   error
}

func (f *fakePages) LivePages(_ context.Context, _ string) ([]domain.Page, error) {
	return f.pages, f.err
}

func TestEmailReportRespectsPreferences(t *testing.T) {
	stores := testStores()
	sender := &recordingSender{}
	mailer := report.NewMailer(report.NewBuilder(stores, stores), sender, nil, logger.NewNoOp())

	prefs := &domain.SitePreferences{SiteID: "site-1"}
	sent, err := mailer.EmailReport(context.Background(), "scan-1", prefs)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, sender.sent)

	prefs.EmailReports = true
	sent, err = mailer.EmailReport(context.Background(), "scan-1", prefs)
	require.NoError(t, err)
	assert.Zero(t, sent, "no recipient configured")

	prefs.EmailSender = "noreply@site.example"
	prefs.EmailRecipient = "webmaster@site.example"
	sent, err = mailer.EmailReport(context.Background(), "scan-1", prefs)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "webmaster@site.example", msg.To)
	assert.Equal(t, "Broken link report for site site-1", msg.Subject)
	assert.Contains(t, msg.Body, "3 broken links found out of 12 links")
}

func TestEmailReportNotifiesPageOwners(t *testing.T) {
	stores := testStores()
	sender := &recordingSender{}
	pages := &fakePages{pages: []domain.Page{
		{ID: "p1", Slug: "about", OwnerEmail: "editor@site.example"},
		{ID: "p2", Slug: "contact"},
	}}
	mailer := report.NewMailer(report.NewBuilder(stores, stores), sender, pages, logger.NewNoOp())

	prefs := &domain.SitePreferences{
		SiteID:         "site-1",
		EmailReports:   true,
		EmailSender:    "noreply@site.example",
		EmailRecipient: "webmaster@site.example",
	}

	sent, err := mailer.EmailReport(context.Background(), "scan-1", prefs)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, sender.sent, 2)

	// The page owner gets only their page's links.
	owner := sender.sent[0]
	assert.Equal(t, "editor@site.example", owner.To)
	assert.Equal(t, "Broken links on page about", owner.Subject)
	assert.Contains(t, owner.Body, "https://ext.example/gone - Not Found")
	assert.NotContains(t, owner.Body, "https://other.example/")

	// The full report still goes to the configured recipient.
	full := sender.sent[1]
	assert.Equal(t, "webmaster@site.example", full.To)
	assert.Contains(t, full.Body, "https://other.example/")
}

func TestEmailReportOwnerLookupFailure(t *testing.T) {
	stores := testStores()
	sender := &recordingSender{}
	pages := &fakePages{err: context.DeadlineExceeded}
	mailer := report.NewMailer(report.NewBuilder(stores, stores), sender, pages, logger.NewNoOp())

	prefs := &domain.SitePreferences{
		SiteID:         "site-1",
		EmailReports:   true,
		EmailSender:    "noreply@site.example",
		EmailRecipient: "webmaster@site.example",
	}

	// Losing the owner lookup only drops the per-page messages.
	sent, err := mailer.EmailReport(context.Background(), "scan-1", prefs)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "webmaster@site.example", sender.sent[0].To)
}
