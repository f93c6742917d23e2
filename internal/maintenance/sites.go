package maintenance

import (
	"context"

	"github.com/jonesrussell/linkscan/internal/pagetree"
)

// StaticSites is a SiteLister backed by a fixed list of site IDs, for
// deployments that restrict the sweep to configured sites instead of
// everything the content store reports.
type StaticSites []string

// ListSites returns the configured sites.
func (s StaticSites) ListSites(_ context.Context) ([]pagetree.Site, error) {
	sites := make([]pagetree.Site, 0, len(s))
	for _, id := range s {
		sites = append(sites, pagetree.Site{ID: id})
	}
	return sites, nil
}
