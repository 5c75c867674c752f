// Package race assembles a RaceRecord from a race page, the profiles of its
// runners and the going index.
package race

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/racecards-crawler/internal/extract"
	"github.com/JakeFAU/racecards-crawler/internal/metrics"
	"github.com/JakeFAU/racecards-crawler/internal/normalize"
	"github.com/JakeFAU/racecards-crawler/internal/profile"
	"github.com/JakeFAU/racecards-crawler/internal/racecard"
)

var (
	// ErrBadRaceURL is returned when the race URL lacks the id segments.
	ErrBadRaceURL = errors.New("race url missing id segments")
	// ErrMissingFieldSize is returned when the runners label is absent or malformed.
	ErrMissingFieldSize = errors.New("race field size missing")
	// ErrMissingRunnerField is returned when a runner row lacks a mandatory value.
	ErrMissingRunnerField = errors.New("runner field missing")
)

// Path segments of https://host/racecards/<course_id>/<course>/<date>/<race_id>.
const (
	segCourseID = 4
	segDate     = 6
	segRaceID   = 7
)

const runnerRowSelector = "div.js-PC-runnerRow"

// Assembler builds races. It is safe for concurrent use.
type Assembler struct {
	profiles racecard.Fetcher
	regions  racecard.RegionLookup
	baseURL  string
	logger   *zap.Logger
}

// NewAssembler builds an Assembler. profiles fetches runner profile pages,
// regions resolves course ids, baseURL absolutizes profile links.
func NewAssembler(profiles racecard.Fetcher, regions racecard.RegionLookup, baseURL string, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		profiles: profiles,
		regions:  regions,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger.Named("race"),
	}
}

// assembly carries one race through its states.
type assembly struct {
	doc    *goquery.Document
	url    string
	state  State
	record racecard.RaceRecord
	order  []int
	byID   map[int]*racecard.RunnerRecord
	stubs  []*racecard.RunnerRecord
	logger *zap.Logger
}

func (a *assembly) advance(next State) {
	a.logger.Debug("race state", zap.Stringer("from", a.state), zap.Stringer("to", next))
	a.state = next
}

// Assemble turns a fetched race document into a RaceRecord.
func (a *Assembler) Assemble(ctx context.Context, doc racecard.Document, going racecard.GoingIndex) (racecard.RaceRecord, error) {
	if doc.Err != nil {
		return racecard.RaceRecord{}, fmt.Errorf("race page %s: %w", doc.URL, doc.Err)
	}
	if doc.Doc == nil {
		return racecard.RaceRecord{}, fmt.Errorf("race page %s: empty document", doc.URL)
	}
	run := &assembly{
		doc:    doc.Doc,
		url:    doc.URL,
		state:  Fetched,
		byID:   make(map[int]*racecard.RunnerRecord),
		logger: a.logger.With(zap.String("url", doc.URL)),
	}

	if err := a.extractFields(run); err != nil {
		return racecard.RaceRecord{}, err
	}
	run.advance(FieldsExtracted)

	a.attachProfiles(ctx, run)
	run.advance(ProfilesAttached)

	if err := a.overlayRacePage(run); err != nil {
		return racecard.RaceRecord{}, err
	}
	run.advance(RacePageOverlaid)

	overlayGoing(run, going)
	run.advance(GoingOverlaid)

	run.record.Runners = make([]racecard.RunnerRecord, 0, len(run.order)+len(run.stubs))
	for _, id := range run.order {
		run.record.Runners = append(run.record.Runners, *run.byID[id])
	}
	for _, stub := range run.stubs {
		run.record.Runners = append(run.record.Runners, *stub)
	}
	metrics.ObserveRunners("profile", len(run.order))
	metrics.ObserveRunners("stub", len(run.stubs))
	run.advance(Complete)
	return run.record, nil
}

// ParseRaceURL reads race_id, date and course_id from a race page URL.
func ParseRaceURL(raceURL string) (raceID int, date string, courseID int, err error) {
	parts := strings.Split(raceURL, "/")
	if len(parts) <= segRaceID {
		return 0, "", 0, fmt.Errorf("%w: %s", ErrBadRaceURL, raceURL)
	}
	raceID, err = strconv.Atoi(parts[segRaceID])
	if err != nil {
		return 0, "", 0, fmt.Errorf("%w: race id %q", ErrBadRaceURL, parts[segRaceID])
	}
	courseID, err = strconv.Atoi(parts[segCourseID])
	if err != nil {
		return 0, "", 0, fmt.Errorf("%w: course id %q", ErrBadRaceURL, parts[segCourseID])
	}
	return raceID, parts[segDate], courseID, nil
}

func (a *Assembler) extractFields(run *assembly) error {
	raceID, date, courseID, err := ParseRaceURL(run.url)
	if err != nil {
		return err
	}
	page := run.doc.Selection
	rec := &run.record
	rec.RaceID = raceID
	rec.Date = date
	rec.CourseID = courseID

	rec.Course = extract.Find(page, "h1", "RC-courseHeader__name")
	rec.OffTime = extract.Find(page, "span", "RC-courseHeader__time")
	rec.RaceName = extract.Find(page, "span", "RC-header__raceInstanceTitle")
	rec.DistanceRound = extract.Find(page, "strong", "RC-header__raceDistanceRound")
	rec.Distance = rec.DistanceRound
	if precise := extract.Find(page, "span", "RC-header__raceDistance"); precise != nil {
		if trimmed := strings.Trim(*precise, "()"); trimmed != "" {
			rec.Distance = &trimmed
		}
	}
	if rec.DistanceRound != nil {
		if furlongs, err := normalize.DistanceToFurlongs(*rec.DistanceRound); err == nil {
			rec.DistanceF = &furlongs
		} else {
			run.logger.Debug("unparsed distance", zap.String("distance", *rec.DistanceRound), zap.Error(err))
		}
	}
	if a.regions != nil {
		rec.Region = a.regions.Region(strconv.Itoa(courseID))
	}
	if class := extract.Find(page, "span", "RC-header__raceClass"); class != nil {
		trimmed := strings.Trim(*class, "()")
		rec.RaceClass = &trimmed
	}
	rec.Pattern = normalize.Pattern(strings.ToLower(extract.Value(rec.RaceName)))
	rec.AgeBand, rec.RatingBand = normalize.Bands(extract.Find(page, "span", "RC-header__rpAges"))
	rec.Prize = normalize.Prize(extract.Find(page, "div", "RC-headerBox__winner"))

	fieldSize, err := normalize.FieldSize(extract.Find(page, "div", "RC-headerBox__runners"))
	if err != nil {
		return fmt.Errorf("race %d: %w: %w", raceID, ErrMissingFieldSize, err)
	}
	rec.FieldSize = fieldSize
	rec.Going = normalize.GoingLabel(extract.Find(page, "div", "RC-headerBox__going"))
	return nil
}

func (a *Assembler) attachProfiles(ctx context.Context, run *assembly) {
	hrefs := extract.FindAll(run.doc.Selection, "a", "RC-cardPage-runnerName", "href")
	if len(hrefs) == 0 || a.profiles == nil {
		return
	}
	urls := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		urls = append(urls, profile.ProfileURL(a.baseURL, href))
	}

	for _, doc := range a.profiles.FetchAll(ctx, urls) {
		if doc.Err != nil {
			run.logger.Warn("profile fetch failed", zap.String("profile", doc.URL), zap.Error(doc.Err))
			continue
		}
		rec, err := profile.Build(doc.Doc)
		if err != nil {
			run.logger.Warn("profile unreadable", zap.String("profile", doc.URL), zap.Error(err))
			continue
		}
		if _, dup := run.byID[rec.HorseID]; dup {
			continue
		}
		run.order = append(run.order, rec.HorseID)
		run.byID[rec.HorseID] = &rec
	}
}

func (a *Assembler) overlayRacePage(run *assembly) error {
	var rowErr error
	run.doc.Find(runnerRowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		horseID, err := rowHorseID(row)
		if err != nil {
			rowErr = fmt.Errorf("race %d: %w", run.record.RaceID, err)
			return false
		}
		runner, ok := run.byID[horseID]
		if !ok {
			run.logger.Warn("runner has no profile, keeping race-page fields only", zap.Int("horse_id", horseID))
			runner = &racecard.RunnerRecord{HorseID: horseID}
			run.byID[horseID] = runner
			run.stubs = append(run.stubs, runner)
		}
		if err := overlayRow(runner, row); err != nil {
			rowErr = fmt.Errorf("race %d horse %d: %w", run.record.RaceID, horseID, err)
			return false
		}
		return true
	})
	return rowErr
}

// rowHorseID reads segment 3 of the runner link, /profile/horse/<id>/<name>.
func rowHorseID(row *goquery.Selection) (int, error) {
	href := extract.Find(row, "a", "RC-cardPage-runnerName", extract.Attr("href"))
	if href == nil {
		return 0, fmt.Errorf("%w: runner link", ErrMissingRunnerField)
	}
	parts := strings.Split(*href, "/")
	if len(parts) < 4 {
		return 0, fmt.Errorf("%w: horse id in %q", ErrMissingRunnerField, *href)
	}
	id, err := strconv.Atoi(parts[3])
	if err != nil {
		return 0, fmt.Errorf("%w: horse id in %q", ErrMissingRunnerField, *href)
	}
	return id, nil
}

func overlayRow(runner *racecard.RunnerRecord, row *goquery.Selection) error {
	runner.Number = extract.Int(extract.Find(row, "span", "RC-cardPage-runnerNumber-no", extract.Attr("data-order-no")))
	if runner.Number == nil {
		return fmt.Errorf("%w: number", ErrMissingRunnerField)
	}
	runner.Lbs = extract.Int(extract.Find(row, "span", "RC-cardPage-runnerWgt-carried", extract.Attr("data-order-wgt")))
	if runner.Lbs == nil {
		return fmt.Errorf("%w: weight", ErrMissingRunnerField)
	}
	runner.Draw = extract.Int(extract.Find(row, "span", "RC-cardPage-runnerNumber-draw", extract.Attr("data-order-draw")))
	runner.Headgear = extract.Find(row, "span", "RC-cardPage-runnerHeadGear")
	runner.HeadgearFirst = extract.Find(row, "span", "RC-cardPage-runnerHeadGear-first")
	runner.OFR = extract.Int(extract.Find(row, "span", "RC-cardPage-runnerOr", extract.Attr("data-order-or")))
	runner.RPR = extract.Int(extract.Find(row, "span", "RC-cardPage-runnerRpr", extract.Attr("data-order-rpr")))
	runner.TS = extract.Int(extract.Find(row, "span", "RC-cardPage-runnerTs", extract.Attr("data-order-ts")))
	runner.Jockey = normalize.Jockey(
		extract.Find(row, "a", "RC-cardPage-runnerJockey-name", extract.Attr("data-order-jockey")),
		extract.Find(row, "span", "RC-cardPage-runnerJockey-allowance"),
	)
	runner.LastRun = extract.Find(row, "div", "RC-cardPage-runnerStats-lastRun")
	runner.Form = extract.Find(row, "span", "RC-cardPage-runnerForm")
	runner.TrainerRTF = extract.Find(row, "span", "RC-cardPage-runnerTrainer-rtf")
	return nil
}

func overlayGoing(run *assembly, going racecard.GoingIndex) {
	info, ok := going[run.record.CourseID]
	if !ok {
		run.record.GoingDetailed = nil
		run.record.RailMovements = nil
		run.record.Stalls = nil
		run.record.Weather = nil
		return
	}
	detailed := info.Going
	run.record.GoingDetailed = &detailed
	run.record.RailMovements = info.RailMovements
	run.record.Stalls = info.Stalls
	run.record.Weather = info.Weather
}
