// Package checker performs individual link checks: fetch, classify, extract
// follow-up references, dispatch newly discovered links, and detect scan
// completion. One call to CheckLink is one unit of work, whether it runs
// inline (synchronous scans) or on a queue worker (asynchronous scans).
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/linkscan/internal/classifier"
	"github.com/jonesrussell/linkscan/internal/database"
	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/extractor"
	"github.com/jonesrussell/linkscan/internal/logger"
)

// maxResponseBodyBytes limits the size of fetched page responses.
const maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB

// ScanStore reads scans and records their completion.
type ScanStore interface {
	GetByID(ctx context.Context, id string) (*domain.Scan, error)
	Finish(ctx context.Context, id string) (bool, error)
}

// LinkStore reads scan links and persists check outcomes.
type LinkStore interface {
	GetByID(ctx context.Context, id string) (*domain.ScanLink, error)
	MarkCrawled(ctx context.Context, link *domain.ScanLink) (bool, error)
	HasPending(ctx context.Context, scanID string) (bool, error)
}

// PreferencesStore reads per-site settings (outbound User-Agent).
type PreferencesStore interface {
	GetBySite(ctx context.Context, siteID string) (*domain.SitePreferences, error)
}

// LinkRegistrar records references discovered on fetched pages.
type LinkRegistrar interface {
	Register(
		ctx context.Context,
		scanID, baseURL, ref string,
		pageID *string,
		follow bool,
	) (*domain.ScanLink, bool, error)
}

// Enqueuer submits a link check to the task queue for asynchronous
// execution.
type Enqueuer interface {
	EnqueueCheck(ctx context.Context, scanID, linkID string) error
}

// Config holds checker configuration.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
}

// Checker processes link-check work units.
type Checker struct {
	scans      ScanStore
	links      LinkStore
	prefs      PreferencesStore
	registrar  LinkRegistrar
	enqueuer   Enqueuer
	httpClient *http.Client
	userAgent  string
	log        logger.Interface
}

// New creates a checker. The enqueuer may be nil when only synchronous
// scans are run (command-driven use).
func New(
	scans ScanStore,
	links LinkStore,
	prefs PreferencesStore,
	registrar LinkRegistrar,
	enqueuer Enqueuer,
	log logger.Interface,
	cfg Config,
) *Checker {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Checker{
		scans:      scans,
		links:      links,
		prefs:      prefs,
		registrar:  registrar,
		enqueuer:   enqueuer,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  cfg.UserAgent,
		log:        log,
	}
}

// Dispatch submits one pending link for checking: inline for synchronous
// scans, via the task queue otherwise. Seeding and follow-up discovery both
// go through here.
func (c *Checker) Dispatch(ctx context.Context, scan *domain.Scan, link *domain.ScanLink) error {
	if scan.RunSync {
		return c.CheckLink(ctx, link.ID)
	}

	if c.enqueuer == nil {
		return errors.New("no enqueuer configured for asynchronous scan")
	}

	return c.enqueuer.EnqueueCheck(ctx, scan.ID, link.ID)
}

// CheckLink performs one link check end to end. It no-ops for links or
// scans that vanished, scans already finished (operator stop), and links
// already crawled (at-least-once queue redelivery).
func (c *Checker) CheckLink(ctx context.Context, linkID string) error {
	link, err := c.links.GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			c.log.Warn("check for missing link skipped", "link_id", linkID)
			return nil
		}
		return fmt.Errorf("load link: %w", err)
	}

	scan, err := c.scans.GetByID(ctx, link.ScanID)
	if err != nil {
		if errors.Is(err, database.ErrScanNotFound) {
			c.log.Warn("check for missing scan skipped", "scan_id", link.ScanID)
			return nil
		}
		return fmt.Errorf("load scan: %w", err)
	}

	if scan.IsFinished() {
		return nil
	}

	if link.Crawled {
		return nil
	}

	if scan.Verbosity > 1 {
		c.log.Debug("checking link", "scan_id", scan.ID, "url", link.URL)
	}

	outcome, body := c.fetch(ctx, scan, link.URL)

	if outcome.Kind == domain.OutcomeWorking && link.Follow {
		if followErr := c.followReferences(ctx, scan, link, body); followErr != nil {
			return followErr
		}
	}

	link.ApplyOutcome(outcome)

	applied, markErr := c.links.MarkCrawled(ctx, link)
	if markErr != nil {
		return fmt.Errorf("persist outcome: %w", markErr)
	}
	if !applied {
		// Another worker got here first; the write-once guard held.
		return nil
	}

	return c.detectCompletion(ctx, scan.ID)
}

// fetch performs the HTTP request and classifies the result. On success the
// response body is returned for reference extraction.
func (c *Checker) fetch(ctx context.Context, scan *domain.Scan, rawURL string) (domain.Outcome, []byte) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if reqErr != nil {
		return classifier.ClassifyError(reqErr), nil
	}

	req.Header.Set("User-Agent", c.resolveUserAgent(ctx, scan.SiteID))

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return classifier.ClassifyError(doErr), nil
	}
	defer resp.Body.Close()

	outcome := classifier.ClassifyStatus(resp.StatusCode)
	if outcome.Kind != domain.OutcomeWorking {
		return outcome, nil
	}

	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)
	body, readErr := io.ReadAll(limited)
	if readErr != nil {
		return classifier.ClassifyError(readErr), nil
	}

	return outcome, body
}

// resolveUserAgent returns the site's configured User-Agent, falling back
// to the checker default.
func (c *Checker) resolveUserAgent(ctx context.Context, siteID string) string {
	prefs, err := c.prefs.GetBySite(ctx, siteID)
	if err != nil || prefs.UserAgent == "" {
		return c.userAgent
	}
	return prefs.UserAgent
}

// followReferences extracts references from a fetched page, registers each
// against the page that owns the checked link, and dispatches every newly
// created link. Pre-existing links are left alone: registration is the
// dedup point, so a URL referenced twice is dispatched once.
func (c *Checker) followReferences(
	ctx context.Context,
	scan *domain.Scan,
	link *domain.ScanLink,
	body []byte,
) error {
	refs, extractErr := extractor.References(body)
	if extractErr != nil {
		c.log.Warn("reference extraction failed",
			"scan_id", scan.ID, "url", link.URL, "error", extractErr.Error())
		return nil
	}

	var discovered []*domain.ScanLink
	for _, ref := range refs {
		newLink, created, registerErr := c.registrar.Register(
			ctx, scan.ID, link.URL, ref, link.PageID, false,
		)
		if registerErr != nil {
			return fmt.Errorf("register discovered link: %w", registerErr)
		}
		if created {
			discovered = append(discovered, newLink)
		}
	}

	if len(discovered) > 0 && scan.Verbosity > 1 {
		c.log.Debug("discovered new links",
			"scan_id", scan.ID, "source_url", link.URL, "count", len(discovered))
	}

	for _, newLink := range discovered {
		if dispatchErr := c.Dispatch(ctx, scan, newLink); dispatchErr != nil {
			return fmt.Errorf("dispatch discovered link: %w", dispatchErr)
		}
	}

	return nil
}

// detectCompletion finishes the scan once no pending links remain. Multiple
// workers may evaluate this concurrently near the end of a scan; the
// repository's guard makes the finish idempotent.
func (c *Checker) detectCompletion(ctx context.Context, scanID string) error {
	pending, err := c.links.HasPending(ctx, scanID)
	if err != nil {
		return fmt.Errorf("check pending links: %w", err)
	}

	if pending {
		return nil
	}

	finished, finishErr := c.scans.Finish(ctx, scanID)
	if finishErr != nil {
		return fmt.Errorf("finish scan: %w", finishErr)
	}

	if finished {
		c.log.Info("scan finished", "scan_id", scanID)
	}

	return nil
}
