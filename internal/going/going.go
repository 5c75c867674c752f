// Package going reads the course-level going feed and indexes it by course id.
package going

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"
	"go.uber.org/zap"

	"github.com/JakeFAU/racecards-crawler/internal/normalize"
	"github.com/JakeFAU/racecards-crawler/internal/racecard"
)

const statePrefix = "var __PRELOADED_STATE__ ="

// ErrNoPayload is returned when the feed page carries no state script.
var ErrNoPayload = errors.New("going feed payload not found")

type courseEntry struct {
	CourseName     string  `json:"courseName"`
	Going          string  `json:"going"`
	StallsPosition *string `json:"stallsPosition"`
	Weather        *string `json:"weather"`
	MeetingURL     string  `json:"raceCardsCourseMeetingsUrl"`
}

// Client fetches the going feed for a date.
type Client struct {
	fetcher racecard.Fetcher
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a Client against baseURL (for example https://www.racingpost.com).
func NewClient(fetcher racecard.Fetcher, baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("going"),
	}
}

// FeedURL returns the going feed address for date (YYYY-MM-DD).
func (c *Client) FeedURL(date string) string {
	return c.baseURL + "/non-runners/" + date
}

// GoingInfo fetches and indexes the feed for date.
func (c *Client) GoingInfo(ctx context.Context, date string) (racecard.GoingIndex, error) {
	url := c.FeedURL(date)
	docs := c.fetcher.FetchAll(ctx, []string{url})
	if len(docs) == 0 {
		return nil, fmt.Errorf("fetch going feed %s: no response", url)
	}
	if docs[0].Err != nil {
		return nil, fmt.Errorf("fetch going feed: %w", docs[0].Err)
	}
	index, err := Parse(docs[0].Doc)
	if err != nil {
		return nil, err
	}
	c.logger.Info("going feed indexed", zap.String("date", date), zap.Int("courses", len(index)))
	return index, nil
}

// Parse extracts the going index from a fetched feed page. Entries whose
// meeting URL carries no numeric course id are skipped.
func Parse(doc *goquery.Document) (racecard.GoingIndex, error) {
	if doc == nil {
		return nil, ErrNoPayload
	}
	script := doc.Find("body > script").First()
	if script.Length() == 0 {
		return nil, ErrNoPayload
	}
	raw := strings.TrimSpace(script.Text())
	raw = strings.TrimSpace(strings.TrimPrefix(raw, statePrefix))
	raw = strings.TrimRight(raw, "; \n\t")
	if raw == "" {
		return nil, ErrNoPayload
	}

	var entries []courseEntry
	if err := json5.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode going feed: %w", err)
	}

	index := make(racecard.GoingIndex, len(entries))
	for _, entry := range entries {
		id, ok := courseID(entry.MeetingURL)
		if !ok {
			continue
		}
		going, rails := normalize.Going(entry.Going)
		index[id] = racecard.GoingInfo{
			Course:        entry.CourseName,
			Going:         going,
			RailMovements: rails,
			Stalls:        entry.StallsPosition,
			Weather:       entry.Weather,
		}
	}
	return index, nil
}

// courseID reads segment 2 of a meeting path such as /racecards/32/kempton/2024-05-01.
func courseID(meetingURL string) (int, bool) {
	parts := strings.Split(meetingURL, "/")
	if len(parts) < 3 {
		return 0, false
	}
	id, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return id, true
}
