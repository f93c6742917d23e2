// Package report builds broken-link reports for finished scans and
// delivers them by email when the site asks for that.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonesrussell/linkscan/internal/database"
	"github.com/jonesrussell/linkscan/internal/domain"
)

// ScanStore reads scans for reporting.
type ScanStore interface {
	GetByID(ctx context.Context, id string) (*domain.Scan, error)
}

// LinkStore reads scan links for reporting.
type LinkStore interface {
	Counts(ctx context.Context, scanID string) (*domain.ScanCounts, error)
	ListByScan(ctx context.Context, scanID string, filters database.ListFilters) ([]*domain.ScanLink, error)
}

// BrokenLink is one broken link in a report.
type BrokenLink struct {
	URL        string
	StatusCode *int
	Reason     string
}

// PageGroup collects the broken links found on one source page. OwnerEmail
// is filled in from the content store when the page has an owner to notify.
type PageGroup struct {
	PageID     string
	PageSlug   string
	OwnerEmail string
	Links      []BrokenLink
}

// Report summarizes a scan's broken links grouped by source page.
type Report struct {
	ScanID   string
	SiteID   string
	Started  time.Time
	Finished *time.Time
	Counts   domain.ScanCounts
	Groups   []PageGroup
}

// Builder assembles reports from the stores.
type Builder struct {
	scans ScanStore
	links LinkStore
}

// NewBuilder creates a report builder.
func NewBuilder(scans ScanStore, links LinkStore) *Builder {
	return &Builder{scans: scans, links: links}
}

// Build assembles the broken-link report for a scan.
func (b *Builder) Build(ctx context.Context, scanID string) (*Report, error) {
	scan, err := b.scans.GetByID(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan: %w", err)
	}

	counts, err := b.links.Counts(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load counts: %w", err)
	}

	broken, err := b.links.ListByScan(ctx, scanID, database.ListFilters{
		State:   database.LinkStateBroken,
		GroupBy: "page_id",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list broken links: %w", err)
	}

	return &Report{
		ScanID:   scan.ID,
		SiteID:   scan.SiteID,
		Started:  scan.Started,
		Finished: scan.Finished,
		Counts:   *counts,
		Groups:   groupByPage(broken),
	}, nil
}

// groupByPage buckets broken links by the page they were found on. Links
// with no known source page are gathered in a trailing unnamed group.
func groupByPage(links []*domain.ScanLink) []PageGroup {
	byPage := map[string]*PageGroup{}
	var order []string

	for _, link := range links {
		key := ""
		if link.PageID != nil {
			key = *link.PageID
		}

		group, ok := byPage[key]
		if !ok {
			group = &PageGroup{PageID: key}
			if link.PageSlug != nil {
				group.PageSlug = *link.PageSlug
			}
			byPage[key] = group
			order = append(order, key)
		}

		group.Links = append(group.Links, BrokenLink{
			URL:        link.URL,
			StatusCode: link.StatusCode,
			Reason:     reasonText(link),
		})
	}

	sort.SliceStable(order, func(i, j int) bool {
		// Unattributed links sort last.
		if order[i] == "" || order[j] == "" {
			return order[j] == ""
		}
		return false
	})

	groups := make([]PageGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byPage[key])
	}
	return groups
}

func reasonText(link *domain.ScanLink) string {
	if link.ErrorText != nil && *link.ErrorText != "" {
		return *link.ErrorText
	}
	if link.StatusCode != nil {
		return fmt.Sprintf("HTTP %d", *link.StatusCode)
	}
	return "unknown error"
}

// Subject returns the email subject line for the report.
func (r *Report) Subject() string {
	return fmt.Sprintf("Broken link report for site %s", r.SiteID)
}

// PageSubject returns the subject line for one page's report.
func (r *Report) PageSubject(group PageGroup) string {
	name := group.PageSlug
	if name == "" {
		name = group.PageID
	}
	return fmt.Sprintf("Broken links on page %s", name)
}

// RenderGroup produces the plain-text body for one page's broken links.
func (r *Report) RenderGroup(group PageGroup) string {
	var sb strings.Builder

	switch {
	case group.PageSlug != "":
		fmt.Fprintf(&sb, "Broken links found on page %s:\n", group.PageSlug)
	default:
		fmt.Fprintf(&sb, "Broken links found on page %s:\n", group.PageID)
	}

	for _, link := range group.Links {
		fmt.Fprintf(&sb, "  %s - %s\n", link.URL, link.Reason)
	}

	return sb.String()
}

// Render produces a plain-text report body.
func (r *Report) Render() string {
	var sb strings.Builder

	sb.WriteString(r.Counts.Result())
	sb.WriteString("\n")

	for _, group := range r.Groups {
		sb.WriteString("\n")
		switch {
		case group.PageSlug != "":
			fmt.Fprintf(&sb, "Page %s:\n", group.PageSlug)
		case group.PageID != "":
			fmt.Fprintf(&sb, "Page %s:\n", group.PageID)
		default:
			sb.WriteString("Other links:\n")
		}

		for _, link := range group.Links {
			fmt.Fprintf(&sb, "  %s - %s\n", link.URL, link.Reason)
		}
	}

	return sb.String()
}
