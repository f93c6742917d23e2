// Package scan owns the scan lifecycle: starting a scan (seeding it from
// the site's page tree), stopping and deleting scans, aggregate result
// queries, and the retention cleanup sweep.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/logger"
)

// ErrAlreadyFinished is returned when stopping a scan that already has a
// finish timestamp.
var ErrAlreadyFinished = errors.New("scan already finished")

// ScanStore persists scans.
type ScanStore interface {
	Create(ctx context.Context, scan *domain.Scan) error
	GetByID(ctx context.Context, id string) (*domain.Scan, error)
	ListBySite(ctx context.Context, siteID string, limit, offset int) ([]*domain.Scan, error)
	Finish(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteStartedBefore(ctx context.Context, siteID string, cutoff time.Time) (int, error)
}

// LinkStore reads scan links for aggregates and re-dispatch.
type LinkStore interface {
	Counts(ctx context.Context, scanID string) (*domain.ScanCounts, error)
	ListPendingByScan(ctx context.Context, scanID string) ([]*domain.ScanLink, error)
}

// PageProvider lists the live, publicly visible pages of a site from the
// content store.
type PageProvider interface {
	LivePages(ctx context.Context, siteID string) ([]domain.Page, error)
}

// Registrar records seed links at scan start.
type Registrar interface {
	Register(
		ctx context.Context,
		scanID, baseURL, ref string,
		pageID *string,
		follow bool,
	) (*domain.ScanLink, bool, error)
}

// Dispatcher submits pending links for checking.
type Dispatcher interface {
	Dispatch(ctx context.Context, scan *domain.Scan, link *domain.ScanLink) error
}

// Service coordinates the scan lifecycle.
type Service struct {
	scans      ScanStore
	links      LinkStore
	pages      PageProvider
	registrar  Registrar
	dispatcher Dispatcher
	log        logger.Interface
}

// New creates a scan lifecycle service.
func New(
	scans ScanStore,
	links LinkStore,
	pages PageProvider,
	registrar Registrar,
	dispatcher Dispatcher,
	log logger.Interface,
) *Service {
	return &Service{
		scans:      scans,
		links:      links,
		pages:      pages,
		registrar:  registrar,
		dispatcher: dispatcher,
		log:        log,
	}
}

// StartOptions configures a new scan.
type StartOptions struct {
	RunSync   bool
	Verbosity int
}

// Start creates a scan for the site and seeds it with every live page,
// most recently updated first, each registered as a follow link against
// itself. Every seed is then dispatched; in synchronous mode this call
// returns only after the whole crawl has completed.
func (s *Service) Start(ctx context.Context, siteID string, opts StartOptions) (*domain.Scan, error) {
	scan := &domain.Scan{
		SiteID:    siteID,
		RunSync:   opts.RunSync,
		Verbosity: opts.Verbosity,
	}

	if err := s.scans.Create(ctx, scan); err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}

	pages, err := s.pages.LivePages(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("list site pages: %w", err)
	}

	// Freshly changed content gets checked first.
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].LastUpdated.After(pages[j].LastUpdated)
	})

	seeds := make([]*domain.ScanLink, 0, len(pages))
	for i := range pages {
		page := pages[i]
		if scan.Verbosity > 1 {
			s.log.Debug("seeding page", "url", page.URL, "page_id", page.ID, "title", page.Title)
		}

		link, created, registerErr := s.registrar.Register(
			ctx, scan.ID, page.URL, page.URL, &page.ID, true,
		)
		if registerErr != nil {
			return nil, fmt.Errorf("register seed link: %w", registerErr)
		}
		if created {
			seeds = append(seeds, link)
		}
	}

	s.log.Info("scan started",
		"scan_id", scan.ID, "site_id", siteID, "seeds", len(seeds), "run_sync", scan.RunSync)

	// Nothing to crawl means nothing will ever trigger completion, so the
	// scan finishes here.
	if len(seeds) == 0 {
		if _, finishErr := s.scans.Finish(ctx, scan.ID); finishErr != nil {
			return nil, fmt.Errorf("finish empty scan: %w", finishErr)
		}
		finished, getErr := s.scans.GetByID(ctx, scan.ID)
		if getErr != nil {
			return nil, fmt.Errorf("reload finished scan: %w", getErr)
		}
		return finished, nil
	}

	for _, seed := range seeds {
		if dispatchErr := s.dispatcher.Dispatch(ctx, scan, seed); dispatchErr != nil {
			return nil, fmt.Errorf("dispatch seed link: %w", dispatchErr)
		}
	}

	return scan, nil
}

// Stop marks a scan finished before all links complete. In-flight checks
// past their finished-scan guard may still write results; new dispatches
// no-op. Returns ErrAlreadyFinished when the scan was already done.
func (s *Service) Stop(ctx context.Context, scanID string) error {
	stopped, err := s.scans.Finish(ctx, scanID)
	if err != nil {
		return err
	}
	if !stopped {
		return ErrAlreadyFinished
	}

	s.log.Info("scan stopped", "scan_id", scanID)
	return nil
}

// Delete removes a scan and its links.
func (s *Service) Delete(ctx context.Context, scanID string) error {
	return s.scans.Delete(ctx, scanID)
}

// Get returns a scan with its aggregate link counts.
func (s *Service) Get(ctx context.Context, scanID string) (*domain.Scan, *domain.ScanCounts, error) {
	scan, err := s.scans.GetByID(ctx, scanID)
	if err != nil {
		return nil, nil, err
	}

	counts, countsErr := s.links.Counts(ctx, scanID)
	if countsErr != nil {
		return nil, nil, countsErr
	}

	return scan, counts, nil
}

// List returns a site's scans, newest first.
func (s *Service) List(ctx context.Context, siteID string, limit, offset int) ([]*domain.Scan, error) {
	return s.scans.ListBySite(ctx, siteID, limit, offset)
}

// RedispatchPending re-submits every pending link of a running scan. Used
// by operators to drive an asynchronous scan forward after a queue loss.
func (s *Service) RedispatchPending(ctx context.Context, scanID string) (int, error) {
	scan, err := s.scans.GetByID(ctx, scanID)
	if err != nil {
		return 0, err
	}
	if scan.IsFinished() {
		return 0, ErrAlreadyFinished
	}

	pending, listErr := s.links.ListPendingByScan(ctx, scanID)
	if listErr != nil {
		return 0, listErr
	}

	for _, link := range pending {
		if dispatchErr := s.dispatcher.Dispatch(ctx, scan, link); dispatchErr != nil {
			return 0, fmt.Errorf("dispatch pending link: %w", dispatchErr)
		}
	}

	return len(pending), nil
}

// Cleanup removes a site's scans started before the retention window.
func (s *Service) Cleanup(ctx context.Context, siteID string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = domain.DefaultCleanupDays
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	removed, err := s.scans.DeleteStartedBefore(ctx, siteID, cutoff)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.log.Info("cleanup removed old scans", "site_id", siteID, "removed", removed)
	}

	return removed, nil
}
