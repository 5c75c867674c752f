package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/racecards-crawler/internal/fetcher/colly"
)

const indexPage = `<html><body>
<section data-accordion-row>
  <span class="RC-accordion__courseName js-courseName">Ascot</span>
  <a class="RC-meetingItem__link js-navigate-url" href="/racecards/2/ascot/2024-06-18/870002">14:30</a>
  <a class="RC-meetingItem__link js-navigate-url" href="/racecards/2/ascot/2024-06-18/870001">14:00</a>
  <a class="RC-meetingItem__link js-navigate-url" href="/racecards/2/ascot/2024-06-18/870001">14:00</a>
  <a class="RC-meetingItem__other" href="/racecards/2/ascot/results">results</a>
</section>
<section data-accordion-row>
  <span class="RC-accordion__courseName">Meydan (ARAB)</span>
  <a class="RC-meetingItem__link js-navigate-url" href="/racecards/1/meydan/2024-06-18/1">12:00</a>
</section>
<section data-accordion-row>
  <span class="RC-accordion__courseName">Worldwide Stakes Races</span>
  <a class="RC-meetingItem__link js-navigate-url" href="/racecards/9/ws/2024-06-18/2">12:00</a>
</section>
<section>
  <span class="RC-accordion__courseName">Not a meeting</span>
  <a class="RC-meetingItem__link js-navigate-url" href="/racecards/5/x/2024-06-18/3">12:00</a>
</section>
</body></html>`

func TestParse(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(indexPage))
	require.NoError(t, err)

	d := New(nil, "https://www.racingpost.com/", nil, nil)
	assert.Equal(t, []string{
		"https://www.racingpost.com/racecards/2/ascot/2024-06-18/870001",
		"https://www.racingpost.com/racecards/2/ascot/2024-06-18/870002",
	}, d.Parse(doc))

	custom := New(nil, "https://www.racingpost.com", []string{"ASCOT"}, nil)
	got := custom.Parse(doc)
	assert.Equal(t, []string{
		"https://www.racingpost.com/racecards/1/meydan/2024-06-18/1",
		"https://www.racingpost.com/racecards/9/ws/2024-06-18/2",
	}, got)
}

func TestRaceURLs(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/racecards/tomorrow" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(indexPage))
	}))
	defer server.Close()

	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}, nil)
	d := New(fetcher, server.URL, nil, nil)

	urls, err := d.RaceURLs(context.Background(), Tomorrow)
	require.NoError(t, err)
	assert.Len(t, urls, 2)

	_, err = d.RaceURLs(context.Background(), Today)
	assert.ErrorContains(t, err, "fetch racecards index")
}

func TestParseDay(t *testing.T) {
	t.Parallel()

	day, err := ParseDay("TOMORROW")
	require.NoError(t, err)
	assert.Equal(t, Tomorrow, day)

	day, err = ParseDay("today")
	require.NoError(t, err)
	assert.Equal(t, Today, day)

	_, err = ParseDay("yesterday")
	assert.ErrorIs(t, err, ErrUnknownDay)
}

func TestDayDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-12-31", Today.Date(now))
	assert.Equal(t, "2025-01-01", Tomorrow.Date(now))
}
