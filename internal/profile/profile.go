// Package profile turns a horse profile page into the profile half of a
// RunnerRecord.
package profile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"

	"github.com/JakeFAU/racecards-crawler/internal/racecard"
)

const (
	stateMarker = "window.PRELOADED_STATE ="
	stateEnd    = "})()"
)

var (
	// ErrNoPayload is returned when the page carries no embedded state.
	ErrNoPayload = errors.New("profile payload not found")
	// ErrNoProfile is returned when the state holds no usable profile.
	ErrNoProfile = errors.New("profile missing from payload")
)

type payload struct {
	Profile          *horseProfile   `json:"profile"`
	Quotes           []quoteEntry    `json:"quotes"`
	StableTourQuotes []stableTourRow `json:"stableTourQuotes"`
}

type horseProfile struct {
	HorseUID                 int            `json:"horseUid"`
	HorseName                *string        `json:"horseName"`
	HorseDateOfBirth         *string        `json:"horseDateOfBirth"`
	Age                      *string        `json:"age"`
	HorseSex                 *string        `json:"horseSex"`
	HorseSexCode             *string        `json:"horseSexCode"`
	HorseColour              *string        `json:"horseColour"`
	HorseCountryOriginCode   *string        `json:"horseCountryOriginCode"`
	BreederName              *string        `json:"breederName"`
	DamHorseName             *string        `json:"damHorseName"`
	DamCountryOriginCode     *string        `json:"damCountryOriginCode"`
	SireHorseName            *string        `json:"sireHorseName"`
	SireCountryOriginCode    *string        `json:"sireCountryOriginCode"`
	SiresSireName            *string        `json:"siresSireName"`
	DamSireHorseName         *string        `json:"damSireHorseName"`
	DamSireCountryOriginCode *string        `json:"damSireCountryOriginCode"`
	TrainerName              *string        `json:"trainerName"`
	TrainerLocation          *string        `json:"trainerLocation"`
	TrainerLast14Days        any            `json:"trainerLast14Days"`
	OwnerName                *string        `json:"ownerName"`
	PreviousTrainers         []trainerEntry `json:"previousTrainers"`
	PreviousOwners           []ownerEntry   `json:"previousOwners"`
	Comments                 []commentEntry `json:"comments"`
	Medical                  []medicalEntry `json:"medical"`
}

type trainerEntry struct {
	TrainerStyleName  string `json:"trainerStyleName"`
	TrainerUID        int    `json:"trainerUid"`
	TrainerChangeDate string `json:"trainerChangeDate"`
}

type ownerEntry struct {
	OwnerStyleName  string `json:"ownerStyleName"`
	OwnerUID        int    `json:"ownerUid"`
	OwnerChangeDate string `json:"ownerChangeDate"`
}

type commentEntry struct {
	IndividualComment   *string `json:"individualComment"`
	IndividualSpotlight *string `json:"individualSpotlight"`
}

type medicalEntry struct {
	MedicalDate string `json:"medicalDate"`
	MedicalType string `json:"medicalType"`
}

type quoteEntry struct {
	RaceDate        string   `json:"raceDate"`
	HorseStyleName  string   `json:"horseStyleName"`
	HorseUID        int      `json:"horseUid"`
	RaceTitle       string   `json:"raceTitle"`
	RaceID          int      `json:"raceId"`
	CourseStyleName string   `json:"courseStyleName"`
	CourseUID       int      `json:"courseUid"`
	DistanceFurlong *float64 `json:"distanceFurlong"`
	DistanceYard    *float64 `json:"distanceYard"`
	Notes           string   `json:"notes"`
}

type stableTourRow struct {
	HorseName string `json:"horseName"`
	HorseUID  int    `json:"horseUid"`
	Notes     string `json:"notes"`
}

// ProfileURL builds the form-tab address of a runner link such as
// /profile/horse/123/name#tab, dropping any fragment.
func ProfileURL(base, href string) string {
	href, _, _ = strings.Cut(href, "#")
	return strings.TrimRight(base, "/") + href + "/form"
}

// Build extracts the runner profile embedded in a profile page.
func Build(doc *goquery.Document) (racecard.RunnerRecord, error) {
	raw, err := statePayload(doc)
	if err != nil {
		return racecard.RunnerRecord{}, err
	}
	var p payload
	if err := json5.Unmarshal([]byte(raw), &p); err != nil {
		return racecard.RunnerRecord{}, fmt.Errorf("decode profile payload: %w", err)
	}
	if p.Profile == nil || p.Profile.HorseUID == 0 {
		return racecard.RunnerRecord{}, ErrNoProfile
	}
	return p.record(), nil
}

func statePayload(doc *goquery.Document) (string, error) {
	if doc == nil {
		return "", ErrNoPayload
	}
	script := doc.Find("body > script").First()
	if script.Length() == 0 {
		return "", ErrNoPayload
	}
	_, after, ok := strings.Cut(script.Text(), stateMarker)
	if !ok {
		return "", ErrNoPayload
	}
	body, _, _ := strings.Cut(after, stateEnd)
	body = strings.Trim(strings.TrimSpace(body), ";")
	if body == "" {
		return "", ErrNoPayload
	}
	return body, nil
}

func (p payload) record() racecard.RunnerRecord {
	hp := p.Profile
	rec := racecard.RunnerRecord{
		HorseID:         hp.HorseUID,
		Name:            hp.HorseName,
		DOB:             datePart(hp.HorseDateOfBirth),
		Age:             leadingInt(hp.Age),
		Sex:             hp.HorseSex,
		SexCode:         hp.HorseSexCode,
		Colour:          hp.HorseColour,
		Region:          hp.HorseCountryOriginCode,
		Breeder:         hp.BreederName,
		Dam:             hp.DamHorseName,
		DamRegion:       hp.DamCountryOriginCode,
		Sire:            hp.SireHorseName,
		SireRegion:      hp.SireCountryOriginCode,
		Grandsire:       hp.SiresSireName,
		Damsire:         hp.DamSireHorseName,
		DamsireRegion:   hp.DamSireCountryOriginCode,
		Trainer:         hp.TrainerName,
		TrainerLocation: hp.TrainerLocation,
		Trainer14Days:   hp.TrainerLast14Days,
		Owner:           hp.OwnerName,
	}

	for _, t := range hp.PreviousTrainers {
		rec.PrevTrainers = append(rec.PrevTrainers, racecard.TrainerChange{
			Trainer:    t.TrainerStyleName,
			TrainerID:  t.TrainerUID,
			ChangeDate: dateOnly(t.TrainerChangeDate),
		})
	}
	for _, o := range hp.PreviousOwners {
		rec.PrevOwners = append(rec.PrevOwners, racecard.OwnerChange{
			Owner:      o.OwnerStyleName,
			OwnerID:    o.OwnerUID,
			ChangeDate: dateOnly(o.OwnerChangeDate),
		})
	}
	if len(hp.Comments) > 0 {
		rec.Comment = hp.Comments[0].IndividualComment
		rec.Spotlight = hp.Comments[0].IndividualSpotlight
	}
	for _, m := range hp.Medical {
		rec.Medical = append(rec.Medical, racecard.MedicalEvent{
			Date: dateOnly(m.MedicalDate),
			Type: m.MedicalType,
		})
	}
	for _, q := range p.Quotes {
		rec.Quotes = append(rec.Quotes, racecard.Quote{
			Date:      dateOnly(q.RaceDate),
			Horse:     q.HorseStyleName,
			HorseID:   q.HorseUID,
			Race:      q.RaceTitle,
			RaceID:    q.RaceID,
			Course:    q.CourseStyleName,
			CourseID:  q.CourseUID,
			DistanceF: q.DistanceFurlong,
			DistanceY: wholeNumber(q.DistanceYard),
			Quote:     q.Notes,
		})
	}
	for _, q := range p.StableTourQuotes {
		rec.StableTour = append(rec.StableTour, racecard.StableTourQuote{
			Horse:   q.HorseName,
			HorseID: q.HorseUID,
			Quote:   q.Notes,
		})
	}
	return rec
}

func dateOnly(ts string) string {
	date, _, _ := strings.Cut(ts, "T")
	return date
}

func datePart(ts *string) *string {
	if ts == nil {
		return nil
	}
	date := dateOnly(*ts)
	return &date
}

// leadingInt reads the number before the first '-', as in "5-y-o".
func leadingInt(s *string) *int {
	if s == nil {
		return nil
	}
	head, _, _ := strings.Cut(strings.TrimSpace(*s), "-")
	n, err := strconv.Atoi(head)
	if err != nil {
		return nil
	}
	return &n
}

func wholeNumber(f *float64) *int {
	if f == nil {
		return nil
	}
	n := int(math.Round(*f))
	return &n
}
