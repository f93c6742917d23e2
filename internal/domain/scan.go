// Package domain provides domain models used across the application.
package domain

import (
	"fmt"
	"time"
)

// Scan represents one link-verification run against one site.
type Scan struct {
	ID        string     `db:"id"          json:"id"`
	SiteID    string     `db:"site_id"     json:"site_id"`
	Started   time.Time  `db:"started_at"  json:"started_at"`
	Finished  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	RunSync   bool       `db:"run_sync"    json:"run_sync"`
	Verbosity int        `db:"verbosity"   json:"verbosity"`
	CreatedAt time.Time  `db:"created_at"  json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"  json:"updated_at"`
}

// IsFinished reports whether the scan has a finish timestamp set.
func (s *Scan) IsFinished() bool {
	return s.Finished != nil
}

// ScanCounts holds aggregate link counts for one scan.
type ScanCounts struct {
	Total   int `db:"total"   json:"total"`
	Pending int `db:"pending" json:"pending"`
	Broken  int `db:"broken"  json:"broken"`
	Working int `db:"working" json:"working"`
	Invalid int `db:"invalid" json:"invalid"`
}

// Result returns the one-line scan summary shown by the CLI and reports.
func (c ScanCounts) Result() string {
	return fmt.Sprintf("%d broken links found out of %d links", c.Broken, c.Total)
}
