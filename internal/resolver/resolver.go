// Package resolver turns raw references extracted from pages into absolute,
// checkable URLs. A reference that resolves to anything other than http or
// https is rejected; the resolved string itself is the dedup key, so no
// normalization beyond relative-reference resolution is applied.
package resolver

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolution classifies why a reference was rejected, or accepts it.
type Resolution int

const (
	// Accepted means the reference resolved to an absolute http(s) URL.
	Accepted Resolution = iota

	// RejectedEmpty means the reference was empty or a same-page fragment.
	RejectedEmpty

	// RejectedScheme means the resolved URL's scheme is not http or https
	// (mailto:, tel:, javascript: and the like).
	RejectedScheme

	// RejectedMalformed means the reference or base could not be parsed.
	RejectedMalformed
)

// Resolve resolves a candidate reference against the URL of the page it was
// found on. Absolute references pass through; scheme-relative and
// path-relative references are joined against the base.
func Resolve(baseURL, ref string) (string, Resolution) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", RejectedEmpty
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", RejectedMalformed
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", RejectedMalformed
	}

	resolved := base.ResolveReference(parsed)

	scheme := strings.ToLower(resolved.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", RejectedScheme
	}

	return resolved.String(), Accepted
}

// Host extracts the host component of an absolute URL for grouping links by
// site name in reports.
func Host(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract host: %w", err)
	}
	return parsed.Host, nil
}
