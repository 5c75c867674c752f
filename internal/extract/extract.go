// Package extract provides defensive single-field lookups over parsed pages.
// Every helper tolerates missing nodes and malformed values by returning nil.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultProperty is the attribute racecard markup uses to tag fields.
const DefaultProperty = "data-test-selector"

type query struct {
	property  string
	attribute string
}

// Option adjusts a lookup.
type Option func(*query)

// Attr switches the lookup to attribute mode, returning the raw value of name.
func Attr(name string) Option {
	return func(q *query) {
		q.attribute = name
	}
}

// Property overrides the attribute used to match the marker.
func Property(property string) Option {
	return func(q *query) {
		q.property = property
	}
}

// Selector renders the CSS selector used to match tag[property="marker"].
func Selector(tag, marker string, opts ...Option) string {
	q := buildQuery(opts)
	return selector(tag, q.property, marker)
}

// Find returns the first descendant of sel matching tag[property="marker"].
// In text mode the trimmed text content (including descendants) is returned;
// with Attr the raw attribute value is returned. The result is nil when no
// node matches or the requested attribute is absent.
func Find(sel *goquery.Selection, tag, marker string, opts ...Option) *string {
	if sel == nil {
		return nil
	}
	q := buildQuery(opts)
	node := sel.Find(selector(tag, q.property, marker)).First()
	if node.Length() == 0 {
		return nil
	}
	if q.attribute != "" {
		val, ok := node.Attr(q.attribute)
		if !ok {
			return nil
		}
		return &val
	}
	text := strings.TrimSpace(node.Text())
	return &text
}

// FindAll returns the attribute of every descendant matching
// tag[property="marker"], in document order. Nodes without the attribute are
// skipped.
func FindAll(sel *goquery.Selection, tag, marker, attribute string, opts ...Option) []string {
	if sel == nil {
		return nil
	}
	q := buildQuery(opts)
	var out []string
	sel.Find(selector(tag, q.property, marker)).Each(func(_ int, s *goquery.Selection) {
		if val, ok := s.Attr(attribute); ok {
			out = append(out, val)
		}
	})
	return out
}

// Int parses s as a base-10 integer, returning nil for nil or malformed input.
func Int(s *string) *int {
	if s == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	return &n
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Value dereferences s, returning "" for nil.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func buildQuery(opts []Option) query {
	q := query{property: DefaultProperty}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

func selector(tag, property, marker string) string {
	return fmt.Sprintf(`%s[%s=%q]`, tag, property, marker)
}
