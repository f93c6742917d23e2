package domain

import (
	"time"
)

// Default preference values applied when a site has no stored row.
const (
	DefaultCleanupDays = 30
	DefaultUserAgent   = "linkscan/1.0"
)

// SitePreferences holds per-site configuration. The engine reads these;
// they are mutated only through the administrative settings surface.
type SitePreferences struct {
	SiteID string `db:"site_id" json:"site_id"`

	// Conduct automated sitewide scans for broken links on a schedule.
	AutomatedScanning bool `db:"automated_scanning" json:"automated_scanning"`

	// Remove scans older than the retention window on a schedule.
	AutomatedCleanup bool `db:"automated_cleanup" json:"automated_cleanup"`

	// Retention window in days for automated cleanup.
	AutomatedCleanupDays int `db:"automated_cleanup_days" json:"automated_cleanup_days"`

	// Send problem-report emails after automated scans.
	EmailReports   bool   `db:"email_reports"   json:"email_reports"`
	EmailSender    string `db:"email_sender"    json:"email_sender"`
	EmailRecipient string `db:"email_recipient" json:"email_recipient"`

	// Outbound User-Agent header for link checks.
	UserAgent string `db:"user_agent" json:"user_agent"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WithDefaults returns a copy with default values applied for zero-value
// fields.
func (p SitePreferences) WithDefaults() SitePreferences {
	if p.AutomatedCleanupDays <= 0 {
		p.AutomatedCleanupDays = DefaultCleanupDays
	}
	if p.UserAgent == "" {
		p.UserAgent = DefaultUserAgent
	}
	return p
}
