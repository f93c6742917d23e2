// Package extractor pulls candidate link references out of fetched HTML.
package extractor

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// References parses HTML and returns every anchor target and image source
// in document order. Duplicates are kept; deduplication is the registry's
// job. Parsing is tolerant: malformed markup yields whatever references can
// be recovered rather than an error.
func References(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var refs []string
	doc.Find("a[href], img[src]").Each(func(_ int, sel *goquery.Selection) {
		if href, exists := sel.Attr("href"); exists {
			refs = append(refs, href)
			return
		}
		if src, exists := sel.Attr("src"); exists {
			refs = append(refs, src)
		}
	})

	return refs, nil
}
