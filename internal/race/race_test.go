package race

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/racecards-crawler/internal/courses"
	"github.com/JakeFAU/racecards-crawler/internal/racecard"
)

const (
	testBase = "https://www.racingpost.com"
	raceURL  = testBase + "/racecards/2/ascot/2024-06-18/870001"
)

type runnerRow struct {
	id     int
	number string
	draw   string
	lbs    string
	or     string
	claim  string
}

func racePage(fieldSize string, rows ...runnerRow) string {
	var b strings.Builder
	b.WriteString(`<html><body>
<h1 data-test-selector="RC-courseHeader__name"> Ascot </h1>
<span data-test-selector="RC-courseHeader__time">14:30</span>
<span data-test-selector="RC-header__raceInstanceTitle">Queen Anne Stakes (Group 1) (British Champions Series)</span>
<strong data-test-selector="RC-header__raceDistanceRound">1m</strong>
<span data-test-selector="RC-header__raceDistance">(1m7y)</span>
<span data-test-selector="RC-header__raceClass">(Class 1)</span>
<span data-test-selector="RC-header__rpAges">(4yo+)</span>
<div data-test-selector="RC-headerBox__winner">Winner: £425,325</div>`)
	if fieldSize != "" {
		fmt.Fprintf(&b, `<div data-test-selector="RC-headerBox__runners">Runners: %s (declared)</div>`, fieldSize)
	}
	b.WriteString(`<div data-test-selector="RC-headerBox__going">Going: GOOD TO FIRM</div>`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<div class="RC-runnerRow js-PC-runnerRow">
<a data-test-selector="RC-cardPage-runnerName" href="/profile/horse/%d/horse-%d#tab">Horse</a>
<span data-test-selector="RC-cardPage-runnerNumber-no" data-order-no="%s">1</span>
<span data-test-selector="RC-cardPage-runnerNumber-draw" data-order-draw="%s">(3)</span>
<span data-test-selector="RC-cardPage-runnerHeadGear">p</span>
<span data-test-selector="RC-cardPage-runnerWgt-carried" data-order-wgt="%s">9-0</span>
<span data-test-selector="RC-cardPage-runnerOr" data-order-or="%s">120</span>
<span data-test-selector="RC-cardPage-runnerRpr" data-order-rpr="128">128</span>
<span data-test-selector="RC-cardPage-runnerTs" data-order-ts="–">–</span>
<a data-test-selector="RC-cardPage-runnerJockey-name" data-order-jockey="R L Moore">R L Moore</a>
<span data-test-selector="RC-cardPage-runnerJockey-allowance">%s</span>
<div data-test-selector="RC-cardPage-runnerStats-lastRun">21</div>
<span data-test-selector="RC-cardPage-runnerForm">11-21</span>
<span data-test-selector="RC-cardPage-runnerTrainer-rtf">67</span>
</div>`, r.id, r.id, r.number, r.draw, r.lbs, r.or, r.claim)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func profilePage(id int, name string) string {
	return fmt.Sprintf(`<html><body><script>(function(){ window.PRELOADED_STATE = {profile: {horseUid: %d, horseName: %q, age: "4-y-o"}, quotes: null, stableTourQuotes: null}; })()</script></body></html>`, id, name)
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

// pageFetcher serves canned pages by URL.
type pageFetcher struct {
	mu        sync.Mutex
	pages     map[string]string
	requested []string
}

func (f *pageFetcher) FetchAll(_ context.Context, urls []string) []racecard.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := make([]racecard.Document, 0, len(urls))
	for _, u := range urls {
		f.requested = append(f.requested, u)
		html, ok := f.pages[u]
		if !ok {
			docs = append(docs, racecard.Document{URL: u, Err: errors.New("404 not found")})
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		docs = append(docs, racecard.Document{URL: u, Doc: doc, Err: err})
	}
	return docs
}

func profileURL(id int) string {
	return fmt.Sprintf("%s/profile/horse/%d/horse-%d/form", testBase, id, id)
}

func testRegions() *courses.Table {
	return courses.New(map[string]map[string]string{"gb": {"2": "Ascot"}})
}

func strPtr(s string) *string { return &s }

func TestAssembleFullRace(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{pages: map[string]string{
		profileURL(101): profilePage(101, "Alpha"),
		profileURL(102): profilePage(102, "Bravo"),
	}}
	assembler := NewAssembler(fetcher, testRegions(), testBase+"/", nil)
	going := racecard.GoingIndex{2: {
		Course:        "Ascot",
		Going:         "Good To Firm",
		RailMovements: []string{"Round course at normal configuration"},
		Stalls:        strPtr("Centre"),
		Weather:       strPtr("Sunny"),
	}}

	page := racePage("2",
		runnerRow{id: 101, number: "1", draw: "3", lbs: "126", or: "120", claim: ""},
		runnerRow{id: 102, number: "2", draw: "", lbs: "123", or: "-", claim: "3"},
	)
	rec, err := assembler.Assemble(context.Background(), racecard.Document{URL: raceURL, Doc: mustDoc(t, page)}, going)
	require.NoError(t, err)

	assert.Equal(t, 870001, rec.RaceID)
	assert.Equal(t, "2024-06-18", rec.Date)
	assert.Equal(t, 2, rec.CourseID)
	assert.Equal(t, "Ascot", *rec.Course)
	assert.Equal(t, "GB", *rec.Region)
	assert.Equal(t, "14:30", *rec.OffTime)
	assert.Equal(t, "1m", *rec.DistanceRound)
	assert.Equal(t, "1m7y", *rec.Distance)
	assert.InDelta(t, 8.0, *rec.DistanceF, 0.0001)
	assert.Equal(t, "Class 1", *rec.RaceClass)
	assert.Equal(t, "Group 1", rec.Pattern)
	assert.Equal(t, "4yo+", *rec.AgeBand)
	assert.Nil(t, rec.RatingBand)
	assert.Equal(t, "£425,325", *rec.Prize)
	assert.Equal(t, 2, rec.FieldSize)
	assert.Equal(t, "Good To Firm", rec.Going)
	assert.Equal(t, "Good To Firm", *rec.GoingDetailed)
	assert.Equal(t, []string{"Round course at normal configuration"}, rec.RailMovements)
	assert.Equal(t, "Centre", *rec.Stalls)
	assert.Equal(t, "Sunny", *rec.Weather)

	require.Len(t, rec.Runners, 2)
	byID := map[int]racecard.RunnerRecord{}
	for _, r := range rec.Runners {
		byID[r.HorseID] = r
	}
	alpha := byID[101]
	assert.Equal(t, "Alpha", *alpha.Name)
	assert.Equal(t, 1, *alpha.Number)
	assert.Equal(t, 3, *alpha.Draw)
	assert.Equal(t, 126, *alpha.Lbs)
	assert.Equal(t, 120, *alpha.OFR)
	assert.Equal(t, 128, *alpha.RPR)
	assert.Nil(t, alpha.TS)
	assert.Equal(t, "R L Moore", *alpha.Jockey)
	assert.Equal(t, "p", *alpha.Headgear)
	assert.Nil(t, alpha.HeadgearFirst)
	assert.Equal(t, "11-21", *alpha.Form)

	bravo := byID[102]
	assert.Equal(t, "Bravo", *bravo.Name)
	assert.Nil(t, bravo.Draw)
	assert.Nil(t, bravo.OFR)
	assert.Equal(t, "R L Moore(3)", *bravo.Jockey)

	assert.ElementsMatch(t, []string{profileURL(101), profileURL(102)}, fetcher.requested)
}

func TestAssembleGoingMissAndStubRunner(t *testing.T) {
	t.Parallel()

	// Profile for 202 fails to fetch, so its row becomes a stub after 201.
	fetcher := &pageFetcher{pages: map[string]string{
		profileURL(201): profilePage(201, "Charlie"),
	}}
	assembler := NewAssembler(fetcher, courses.New(nil), testBase, nil)

	page := racePage("3",
		runnerRow{id: 202, number: "2", draw: "1", lbs: "130", or: "99"},
		runnerRow{id: 201, number: "1", draw: "2", lbs: "131", or: "100"},
	)
	rec, err := assembler.Assemble(context.Background(), racecard.Document{URL: raceURL, Doc: mustDoc(t, page)}, racecard.GoingIndex{})
	require.NoError(t, err)

	assert.Nil(t, rec.Region)
	assert.Nil(t, rec.GoingDetailed)
	assert.Nil(t, rec.RailMovements)
	assert.Nil(t, rec.Stalls)
	assert.Nil(t, rec.Weather)
	assert.Equal(t, "Good To Firm", rec.Going)
	assert.Equal(t, 3, rec.FieldSize)

	require.Len(t, rec.Runners, 2)
	assert.Equal(t, 201, rec.Runners[0].HorseID)
	assert.Equal(t, "Charlie", *rec.Runners[0].Name)
	stub := rec.Runners[1]
	assert.Equal(t, 202, stub.HorseID)
	assert.Nil(t, stub.Name)
	assert.Equal(t, 2, *stub.Number)
	assert.Equal(t, 130, *stub.Lbs)
}

func TestAssembleErrors(t *testing.T) {
	t.Parallel()

	assembler := NewAssembler(&pageFetcher{}, testRegions(), testBase, nil)
	ok := runnerRow{id: 1, number: "1", draw: "1", lbs: "120", or: "50"}

	tests := []struct {
		name string
		url  string
		page string
		want error
	}{
		{"missing field size", raceURL, racePage("", ok), ErrMissingFieldSize},
		{"malformed field size", raceURL, racePage("many", ok), ErrMissingFieldSize},
		{"missing number", raceURL, racePage("1", runnerRow{id: 1, number: "", lbs: "120"}), ErrMissingRunnerField},
		{"missing weight", raceURL, racePage("1", runnerRow{id: 1, number: "1", lbs: "x"}), ErrMissingRunnerField},
		{"short url", testBase + "/racecards/2/ascot", racePage("1", ok), ErrBadRaceURL},
		{"non numeric race id", testBase + "/racecards/2/ascot/2024-06-18/abc", racePage("1", ok), ErrBadRaceURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assembler.Assemble(context.Background(), racecard.Document{URL: tt.url, Doc: mustDoc(t, tt.page)}, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := assembler.Assemble(context.Background(), racecard.Document{URL: raceURL, Err: errors.New("timeout")}, nil)
	assert.ErrorContains(t, err, "timeout")
}

func TestParseRaceURL(t *testing.T) {
	t.Parallel()

	raceID, date, courseID, err := ParseRaceURL(raceURL)
	require.NoError(t, err)
	assert.Equal(t, 870001, raceID)
	assert.Equal(t, "2024-06-18", date)
	assert.Equal(t, 2, courseID)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fetched", Fetched.String())
	assert.Equal(t, "going_overlaid", GoingOverlaid.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "unknown", State(99).String())
}
