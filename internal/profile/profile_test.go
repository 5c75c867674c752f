package profile

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profilePage = `<html><body><script>(function() {
  window.PRELOADED_STATE = {
    profile: {
      horseUid: 2870413,
      horseName: 'Desert Crown',
      horseDateOfBirth: "2019-03-09T00:00:00",
      age: "5-y-o",
      horseSex: "colt",
      horseSexCode: "C",
      horseColour: "b",
      horseCountryOriginCode: "GB",
      breederName: "Watership Down Stud",
      damHorseName: "Desert Berry",
      damCountryOriginCode: "GB",
      sireHorseName: "Nathaniel",
      sireCountryOriginCode: "IRE",
      siresSireName: "Galileo",
      damSireHorseName: "Green Desert",
      damSireCountryOriginCode: "USA",
      trainerName: "Sir Michael Stoute",
      trainerLocation: "Newmarket, Suffolk",
      trainerLast14Days: {runs: 20, wins: 4, percent: 20, profit: -3.5},
      ownerName: "Saeed Suhail",
      previousTrainers: [
        {trainerStyleName: "A Trainer", trainerUid: 11, trainerChangeDate: "2021-07-01T00:00:00"},
      ],
      previousOwners: [],
      comments: [
        {individualComment: "Won Derby", individualSpotlight: "Top class"},
        {individualComment: "ignored", individualSpotlight: "ignored"},
      ],
      medical: [{medicalDate: "2023-01-04T00:00:00", medicalType: "Wind surgery"}],
    },
    quotes: [
      {raceDate: "2022-06-04T15:30:00", horseStyleName: "Desert Crown", horseUid: 2870413,
       raceTitle: "Derby", raceId: 810000, courseStyleName: "Epsom", courseUid: 17,
       distanceFurlong: 12, distanceYard: 6, notes: "He was brilliant"},
    ],
    stableTourQuotes: null,
  };
})()</script><script>other()</script></body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestBuild(t *testing.T) {
	t.Parallel()

	rec, err := Build(mustDoc(t, profilePage))
	require.NoError(t, err)

	assert.Equal(t, 2870413, rec.HorseID)
	require.NotNil(t, rec.Name)
	assert.Equal(t, "Desert Crown", *rec.Name)
	require.NotNil(t, rec.DOB)
	assert.Equal(t, "2019-03-09", *rec.DOB)
	require.NotNil(t, rec.Age)
	assert.Equal(t, 5, *rec.Age)
	assert.Equal(t, "Galileo", *rec.Grandsire)
	assert.Equal(t, "USA", *rec.DamsireRegion)

	assert.Equal(t, map[string]any{"runs": 20.0, "wins": 4.0, "percent": 20.0, "profit": -3.5}, rec.Trainer14Days)

	require.Len(t, rec.PrevTrainers, 1)
	assert.Equal(t, "2021-07-01", rec.PrevTrainers[0].ChangeDate)
	assert.Equal(t, 11, rec.PrevTrainers[0].TrainerID)
	assert.Nil(t, rec.PrevOwners)

	assert.Equal(t, "Won Derby", *rec.Comment)
	assert.Equal(t, "Top class", *rec.Spotlight)

	require.Len(t, rec.Medical, 1)
	assert.Equal(t, "2023-01-04", rec.Medical[0].Date)

	require.Len(t, rec.Quotes, 1)
	q := rec.Quotes[0]
	assert.Equal(t, "2022-06-04", q.Date)
	assert.Equal(t, 810000, q.RaceID)
	assert.InDelta(t, 12.0, *q.DistanceF, 0.001)
	assert.Equal(t, 6, *q.DistanceY)
	assert.Nil(t, rec.StableTour)

	// Race-page fields are filled in later by the race assembler.
	assert.Nil(t, rec.Number)
	assert.Nil(t, rec.Jockey)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want error
	}{
		{"no script", `<html><body></body></html>`, ErrNoPayload},
		{"no marker", `<html><body><script>var x = 1;</script></body></html>`, ErrNoPayload},
		{"empty payload", `<html><body><script>window.PRELOADED_STATE = ;})()</script></body></html>`, ErrNoPayload},
		{"no profile", `<html><body><script>window.PRELOADED_STATE = {quotes: []};})()</script></body></html>`, ErrNoProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(mustDoc(t, tt.html))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Build(mustDoc(t, `<html><body><script>window.PRELOADED_STATE = {profile: ;})()</script></body></html>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode profile payload")
}

func TestBuildTrainerLast14DaysAnyShape(t *testing.T) {
	t.Parallel()

	const original = "trainerLast14Days: {runs: 20, wins: 4, percent: 20, profit: -3.5},"
	require.Contains(t, profilePage, original)

	tests := []struct {
		name  string
		value string
		want  any
	}{
		{"empty list", "[]", []any{}},
		{"text", `"n/a"`, "n/a"},
		{"null", "null", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := strings.Replace(profilePage, original, "trainerLast14Days: "+tt.value+",", 1)
			rec, err := Build(mustDoc(t, page))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Trainer14Days)
			require.NotNil(t, rec.Name)
			assert.Equal(t, "Desert Crown", *rec.Name)
			assert.Equal(t, "Galileo", *rec.Grandsire)
		})
	}
}

func TestProfileURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"https://www.racingpost.com/profile/horse/2870413/desert-crown/form",
		ProfileURL("https://www.racingpost.com/", "/profile/horse/2870413/desert-crown#ProfileTabs"),
	)
	assert.Equal(t,
		"https://www.racingpost.com/profile/horse/1/x/form",
		ProfileURL("https://www.racingpost.com", "/profile/horse/1/x"),
	)
}

func TestLeadingInt(t *testing.T) {
	t.Parallel()

	bad := "unknown"
	assert.Nil(t, leadingInt(&bad))
	assert.Nil(t, leadingInt(nil))
	two := "2-y-o"
	assert.Equal(t, 2, *leadingInt(&two))
}
