package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/dbl-equipment-scraper/config"
	"github.com/aluiziolira/dbl-equipment-scraper/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ProcessedIDSet remembers the identifiers already emitted during one run.
// Its capacity must cover every identifier the run can see, otherwise old
// entries are evicted and duplicates slip through.
type ProcessedIDSet struct {
	seen *lru.Cache[string, struct{}]
}

// NewProcessedIDSet sizes the set for capacity identifiers.
func NewProcessedIDSet(capacity int) (*ProcessedIDSet, error) {
	if capacity < 1 {
		capacity = 1
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("create id set: %w", err)
	}
	return &ProcessedIDSet{seen: cache}, nil
}

// Add records id and reports whether it was new.
func (s *ProcessedIDSet) Add(id string) bool {
	if s.seen.Contains(id) {
		return false
	}
	s.seen.Add(id, struct{}{})
	return true
}

// Len is the number of identifiers recorded.
func (s *ProcessedIDSet) Len() int {
	return s.seen.Len()
}

// Discover lists the items linked from the listing page, in document order
// of first occurrence.
func Discover(listing Markup, baseURL, detailPrefix string) ([]models.Listing, error) {
	links := listing.LinksWithPrefix(detailPrefix)

	processed, err := NewProcessedIDSet(len(links))
	if err != nil {
		return nil, err
	}

	out := make([]models.Listing, 0, len(links))
	for _, link := range links {
		href, _ := link.Attr("href")
		id := ItemID(strings.TrimPrefix(href, detailPrefix))
		if id == "" || !processed.Add(id) {
			continue
		}

		image := ""
		if img, ok := link.First("img"); ok {
			src, _ := img.Attr("src")
			image = AbsoluteImageURL(baseURL, src)
		}

		out = append(out, models.Listing{
			ID:    id,
			URL:   config.JoinURL(baseURL, href),
			Image: image,
		})
	}
	return out, nil
}

// ItemID is the final path segment of a detail link, ignoring any query,
// fragment, or trailing slash.
func ItemID(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	return href[strings.LastIndex(href, "/")+1:]
}

// AbsoluteImageURL keeps src as-is when it already carries a scheme and
// resolves it against baseURL otherwise. An empty src stays empty.
func AbsoluteImageURL(baseURL, src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if u, err := url.Parse(src); err == nil && u.Scheme != "" {
		return src
	}
	return config.JoinURL(baseURL, src)
}
