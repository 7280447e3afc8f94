// Package parser turns listing and detail pages into equipment records.
package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Markup is the query surface the extraction code relies on. A Markup value
// is either a whole document or one element inside it.
type Markup interface {
	// First returns the first descendant with the given tag.
	First(tag string) (Markup, bool)
	// FindByClass returns descendants with the tag whose class list holds
	// class exactly.
	FindByClass(tag, class string) []Markup
	// FindByClassContains returns descendants with the tag whose class
	// attribute contains substr anywhere.
	FindByClassContains(tag, substr string) []Markup
	// LinksWithPrefix returns every <a> whose href starts with prefix.
	LinksWithPrefix(prefix string) []Markup
	// Text joins the trimmed, non-empty text nodes under the element.
	Text(sep string) string
	// Attr returns an attribute value.
	Attr(name string) (string, bool)
}

type selection struct {
	sel *goquery.Selection
}

// ParseHTML parses r into a Markup document.
func ParseHTML(r io.Reader) (Markup, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return FromDocument(doc), nil
}

// ParseHTMLString is ParseHTML for in-memory pages.
func ParseHTMLString(s string) (Markup, error) {
	return ParseHTML(strings.NewReader(s))
}

// FromDocument wraps an already parsed goquery document.
func FromDocument(doc *goquery.Document) Markup {
	return selection{sel: doc.Selection}
}

func (s selection) First(tag string) (Markup, bool) {
	found := s.sel.Find(tag).First()
	if found.Length() == 0 {
		return nil, false
	}
	return selection{sel: found}, true
}

func (s selection) FindByClass(tag, class string) []Markup {
	return wrap(s.sel.Find(tag).FilterFunction(func(_ int, el *goquery.Selection) bool {
		return el.HasClass(class)
	}))
}

func (s selection) FindByClassContains(tag, substr string) []Markup {
	return wrap(s.sel.Find(tag).FilterFunction(func(_ int, el *goquery.Selection) bool {
		class, ok := el.Attr("class")
		return ok && strings.Contains(class, substr)
	}))
}

func (s selection) LinksWithPrefix(prefix string) []Markup {
	return wrap(s.sel.Find("a").FilterFunction(func(_ int, el *goquery.Selection) bool {
		href, ok := el.Attr("href")
		return ok && strings.HasPrefix(href, prefix)
	}))
}

func (s selection) Text(sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, sep)
}

func (s selection) Attr(name string) (string, bool) {
	return s.sel.Attr(name)
}

func wrap(sel *goquery.Selection) []Markup {
	out := make([]Markup, 0, sel.Length())
	sel.Each(func(_ int, el *goquery.Selection) {
		out = append(out, selection{sel: el})
	})
	return out
}
