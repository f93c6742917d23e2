// Package maintenance runs the scheduled housekeeping for each site:
// automated scans, retention cleanup, and report mail, driven by the
// site's stored preferences.
package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/logger"
	"github.com/jonesrussell/linkscan/internal/pagetree"
	"github.com/jonesrussell/linkscan/internal/scan"
)

// DefaultCronSpec runs the maintenance sweep nightly.
const DefaultCronSpec = "0 3 * * *"

// SiteLister lists the sites to maintain. Implemented by pagetree.Client.
type SiteLister interface {
	ListSites(ctx context.Context) ([]pagetree.Site, error)
}

// ScanRunner starts scans and removes expired ones.
type ScanRunner interface {
	Start(ctx context.Context, siteID string, opts scan.StartOptions) (*domain.Scan, error)
	Cleanup(ctx context.Context, siteID string, retentionDays int) (int, error)
}

// PreferencesStore reads per-site preferences.
type PreferencesStore interface {
	GetBySite(ctx context.Context, siteID string) (*domain.SitePreferences, error)
}

// ReportMailer mails a finished scan's report and returns the number of
// messages sent.
type ReportMailer interface {
	EmailReport(ctx context.Context, scanID string, prefs *domain.SitePreferences) (int, error)
}

// Scheduler runs the maintenance sweep on a cron schedule.
type Scheduler struct {
	sites    SiteLister
	scans    ScanRunner
	prefs    PreferencesStore
	mailer   ReportMailer
	log      logger.Interface
	cronSpec string

	cron *cron.Cron
	ctx  context.Context
}

// NewScheduler creates a maintenance scheduler. An empty cronSpec uses the
// nightly default.
func NewScheduler(
	sites SiteLister,
	scans ScanRunner,
	prefs PreferencesStore,
	mailer ReportMailer,
	log logger.Interface,
	cronSpec string,
) *Scheduler {
	if cronSpec == "" {
		cronSpec = DefaultCronSpec
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	return &Scheduler{
		sites:    sites,
		scans:    scans,
		prefs:    prefs,
		mailer:   mailer,
		log:      log,
		cronSpec: cronSpec,
		cron:     c,
	}
}

// Start registers the sweep and starts the cron scheduler. The context is
// used for sweeps triggered by the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx

	if _, err := s.cron.AddFunc(s.cronSpec, func() {
		if sweepErr := s.RunOnce(s.ctx); sweepErr != nil {
			s.log.Error("maintenance sweep failed", "error", sweepErr.Error())
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule maintenance sweep: %w", err)
	}

	s.cron.Start()
	s.log.Info("maintenance scheduler started", "cron_spec", s.cronSpec)
	return nil
}

// Stop stops the cron scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("maintenance scheduler stopped")
}

// RunOnce performs one maintenance sweep over every site.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	sites, err := s.sites.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	for _, site := range sites {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.maintainSite(ctx, site.ID)
	}

	return nil
}

// maintainSite applies the site's preferences: cleanup first, then an
// automated scan with an optional report mail. Failures are logged and do
// not block the other sites.
func (s *Scheduler) maintainSite(ctx context.Context, siteID string) {
	prefs, err := s.prefs.GetBySite(ctx, siteID)
	if err != nil {
		s.log.Error("failed to load site preferences", "site_id", siteID, "error", err.Error())
		return
	}

	if prefs.AutomatedCleanup {
		removed, cleanupErr := s.scans.Cleanup(ctx, siteID, prefs.AutomatedCleanupDays)
		if cleanupErr != nil {
			s.log.Error("automated cleanup failed", "site_id", siteID, "error", cleanupErr.Error())
		} else if removed > 0 {
			s.log.Info("automated cleanup removed scans", "site_id", siteID, "removed", removed)
		}
	}

	if !prefs.AutomatedScanning {
		return
	}

	// The automated scan runs synchronously so the report covers a
	// finished scan.
	finished, scanErr := s.scans.Start(ctx, siteID, scan.StartOptions{RunSync: true})
	if scanErr != nil {
		s.log.Error("automated scan failed", "site_id", siteID, "error", scanErr.Error())
		return
	}

	s.log.Info("automated scan finished", "site_id", siteID, "scan_id", finished.ID)

	sent, mailErr := s.mailer.EmailReport(ctx, finished.ID, prefs)
	if mailErr != nil {
		s.log.Error("report mail failed",
			"site_id", siteID, "scan_id", finished.ID, "error", mailErr.Error())
		return
	}
	if sent > 0 {
		s.log.Info("report messages sent",
			"site_id", siteID, "scan_id", finished.ID, "messages", sent)
	}
}
