// Package registry owns the set of links discovered within one scan. It
// resolves raw references, enforces (scan, url) deduplication, and applies
// the page-deletion hook delivered by the content store.
package registry

import (
	"context"
	"fmt"

	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/logger"
	"github.com/jonesrussell/linkscan/internal/resolver"
)

// maxURLLength matches the scan_links.url column width. Longer URLs are
// silently dropped rather than treated as errors.
const maxURLLength = 500

// LinkStore persists scan links.
type LinkStore interface {
	Create(ctx context.Context, link *domain.ScanLink) (bool, error)
	MarkPageDeleted(ctx context.Context, pageID, slug string) (int, error)
}

// Registry registers discovered references as scan links.
type Registry struct {
	links LinkStore
	log   logger.Interface
}

// New creates a new link registry.
func New(links LinkStore, log logger.Interface) *Registry {
	return &Registry{links: links, log: log}
}

// Register resolves a reference found at baseURL and records it for the
// scan. Returns the stored link and whether this call created it. Rejected
// references (empty, fragment-only, non-http scheme, malformed, or too long
// for storage) yield (nil, false, nil) and contribute no record. A URL
// already registered for the scan is returned unchanged with created=false.
func (r *Registry) Register(
	ctx context.Context,
	scanID, baseURL, ref string,
	pageID *string,
	follow bool,
) (*domain.ScanLink, bool, error) {
	resolved, resolution := resolver.Resolve(baseURL, ref)
	if resolution != resolver.Accepted {
		return nil, false, nil
	}

	if len(resolved) > maxURLLength {
		r.log.Debug("dropping link over storage length limit",
			"scan_id", scanID, "url_length", len(resolved))
		return nil, false, nil
	}

	host, hostErr := resolver.Host(resolved)
	if hostErr != nil {
		return nil, false, nil
	}

	link := &domain.ScanLink{
		ScanID: scanID,
		URL:    resolved,
		Domain: host,
		Follow: follow,
		PageID: pageID,
	}

	created, err := r.links.Create(ctx, link)
	if err != nil {
		return nil, false, fmt.Errorf("register link: %w", err)
	}

	return link, created, nil
}

// OnPageDeleted applies the content store's page-deletion event: every link
// originating from the page keeps its row but records the deletion and the
// page's last slug.
func (r *Registry) OnPageDeleted(ctx context.Context, pageID, slug string) error {
	updated, err := r.links.MarkPageDeleted(ctx, pageID, slug)
	if err != nil {
		return fmt.Errorf("mark page deleted: %w", err)
	}

	if updated > 0 {
		r.log.Info("recorded page deletion on scan links",
			"page_id", pageID, "links", updated)
	}

	return nil
}
