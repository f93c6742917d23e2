package domain

import (
	"time"
)

// ScanLink represents one discovered URL within one scan. The dedup key is
// (scan_id, url); a URL referenced from many pages is stored and checked once
// per scan.
type ScanLink struct {
	ID     string `db:"id"      json:"id"`
	ScanID string `db:"scan_id" json:"scan_id"`
	URL    string `db:"url"     json:"url"`

	// Host component of the URL, stored so links can be grouped by site name.
	Domain string `db:"domain" json:"domain"`

	// Follow marks links whose content should itself be scanned for
	// additional links. True only for internal page URLs.
	Follow bool `db:"follow" json:"follow"`

	// Crawled is set once a check attempt has completed. The outcome fields
	// below are meaningful only when Crawled is true.
	Crawled bool `db:"crawled" json:"crawled"`

	// Invalid marks references that are not fetchable http/https resources
	// (tel:, mailto: and the like). Invalid links are neither broken nor
	// working.
	Invalid bool `db:"invalid" json:"invalid"`

	// Broken marks crawled links whose fetch failed or returned a failure
	// status.
	Broken bool `db:"broken" json:"broken"`

	StatusCode *int    `db:"status_code" json:"status_code,omitempty"`
	ErrorText  *string `db:"error_text"  json:"error_text,omitempty"`

	// Page where the link was found. Nil for seed links without page context.
	PageID *string `db:"page_id" json:"page_id,omitempty"`

	// PageDeleted records that the originating page was removed after the
	// link was discovered; PageSlug keeps the page's last slug for display.
	PageDeleted bool    `db:"page_deleted" json:"page_deleted"`
	PageSlug    *string `db:"page_slug"    json:"page_slug,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ApplyOutcome flattens a terminal check outcome onto the link's persisted
// flags and marks it crawled.
func (l *ScanLink) ApplyOutcome(o Outcome) {
	l.Crawled = true
	l.Invalid = o.Kind == OutcomeInvalid
	l.Broken = o.Kind == OutcomeBroken

	if o.StatusCode != 0 {
		code := o.StatusCode
		l.StatusCode = &code
	}
	if o.Reason != "" {
		reason := o.Reason
		l.ErrorText = &reason
	}
}
