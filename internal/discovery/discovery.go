// Package discovery lists the race pages published for a racing day.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/racecards-crawler/internal/racecard"
)

// Day selects which racing day to crawl.
type Day int

// Supported days.
const (
	Today Day = iota
	Tomorrow
)

// ErrUnknownDay is returned by ParseDay for anything but today or tomorrow.
var ErrUnknownDay = errors.New("day must be today or tomorrow")

// DefaultExcludedCourses are meeting name fragments that never carry cards
// worth crawling.
var DefaultExcludedCourses = []string{"free to air", "worldwide stakes", "(arab)"}

// ParseDay reads a case-insensitive day argument.
func ParseDay(s string) (Day, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return Today, nil
	case "tomorrow":
		return Tomorrow, nil
	default:
		return Today, fmt.Errorf("%w: %q", ErrUnknownDay, s)
	}
}

func (d Day) String() string {
	if d == Tomorrow {
		return "tomorrow"
	}
	return "today"
}

// Date formats the calendar date of d relative to now.
func (d Day) Date(now time.Time) string {
	if d == Tomorrow {
		now = now.AddDate(0, 0, 1)
	}
	return now.Format(time.DateOnly)
}

// Discoverer reads the racecards index page.
type Discoverer struct {
	fetcher  racecard.Fetcher
	baseURL  string
	excluded []string
	logger   *zap.Logger
}

// New builds a Discoverer. A nil excluded list falls back to
// DefaultExcludedCourses.
func New(fetcher racecard.Fetcher, baseURL string, excluded []string, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if excluded == nil {
		excluded = DefaultExcludedCourses
	}
	lowered := make([]string, 0, len(excluded))
	for _, e := range excluded {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			lowered = append(lowered, e)
		}
	}
	return &Discoverer{
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(baseURL, "/"),
		excluded: lowered,
		logger:   logger.Named("discovery"),
	}
}

// IndexURL returns the racecards index address for d.
func (d *Discoverer) IndexURL(day Day) string {
	if day == Tomorrow {
		return d.baseURL + "/racecards/tomorrow"
	}
	return d.baseURL + "/racecards"
}

// RaceURLs fetches the index for day and returns the sorted, distinct race
// page URLs of every meeting that is not excluded.
func (d *Discoverer) RaceURLs(ctx context.Context, day Day) ([]string, error) {
	url := d.IndexURL(day)
	docs := d.fetcher.FetchAll(ctx, []string{url})
	if len(docs) == 0 {
		return nil, fmt.Errorf("fetch racecards index %s: no response", url)
	}
	if docs[0].Err != nil {
		return nil, fmt.Errorf("fetch racecards index: %w", docs[0].Err)
	}
	urls := d.Parse(docs[0].Doc)
	d.logger.Info("races discovered", zap.String("day", day.String()), zap.Int("races", len(urls)))
	return urls, nil
}

// Parse extracts race URLs from a racecards index page.
func (d *Discoverer) Parse(doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	seen := make(map[string]struct{})
	doc.Find("section[data-accordion-row]").Each(func(_ int, meeting *goquery.Selection) {
		course := strings.ToLower(strings.TrimSpace(
			meeting.Find(`span[class*="RC-accordion__courseName"]`).First().Text(),
		))
		if !d.valid(course) {
			d.logger.Debug("meeting skipped", zap.String("course", course))
			return
		}
		meeting.Find("a.RC-meetingItem__link.js-navigate-url").Each(func(_ int, link *goquery.Selection) {
			if href, ok := link.Attr("href"); ok && href != "" {
				seen[d.baseURL+href] = struct{}{}
			}
		})
	})

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (d *Discoverer) valid(course string) bool {
	for _, ex := range d.excluded {
		if strings.Contains(course, ex) {
			return false
		}
	}
	return true
}
