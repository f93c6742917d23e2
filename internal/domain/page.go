package domain

import (
	"time"
)

// Page describes one live, publicly visible page from the content store.
// The content store owns pages; the engine only reads them for seeding and
// consumes deletion events.
type Page struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	URL         string    `json:"url"`
	OwnerEmail  string    `json:"owner_email,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}
