// Package racecard defines the race-card records shared across subsystems.
package racecard

import "github.com/PuerkitoBio/goquery"

// UnknownRegion buckets races whose course is missing from the region table.
const UnknownRegion = "UNKNOWN"

// Document is one fetched and parsed page tagged with its source URL.
// Doc is nil whenever Err is set.
type Document struct {
	URL string
	Doc *goquery.Document
	Err error
}

// RaceRecord is the assembled view of one race.
type RaceRecord struct {
	RaceID        int            `json:"race_id"`
	Date          string         `json:"date"`
	CourseID      int            `json:"course_id"`
	Course        *string        `json:"course"`
	Region        *string        `json:"region"`
	OffTime       *string        `json:"off_time"`
	RaceName      *string        `json:"race_name"`
	DistanceRound *string        `json:"distance_round"`
	Distance      *string        `json:"distance"`
	DistanceF     *float64       `json:"distance_f"`
	RaceClass     *string        `json:"race_class"`
	Pattern       string         `json:"pattern"`
	AgeBand       *string        `json:"age_band"`
	RatingBand    *string        `json:"rating_band"`
	Prize         *string        `json:"prize"`
	FieldSize     int            `json:"field_size"`
	Going         string         `json:"going"`
	GoingDetailed *string        `json:"going_detailed"`
	RailMovements []string       `json:"rail_movements"`
	Stalls        *string        `json:"stalls"`
	Weather       *string        `json:"weather"`
	Runners       []RunnerRecord `json:"runners"`
}

// RunnerRecord merges a horse's profile with its race-page entry.
type RunnerRecord struct {
	HorseID int `json:"horse_id"`

	// Profile fields.
	Name            *string           `json:"name"`
	DOB             *string           `json:"dob"`
	Age             *int              `json:"age"`
	Sex             *string           `json:"sex"`
	SexCode         *string           `json:"sex_code"`
	Colour          *string           `json:"colour"`
	Region          *string           `json:"region"`
	Breeder         *string           `json:"breeder"`
	Dam             *string           `json:"dam"`
	DamRegion       *string           `json:"dam_region"`
	Sire            *string           `json:"sire"`
	SireRegion      *string           `json:"sire_region"`
	Grandsire       *string           `json:"grandsire"`
	Damsire         *string           `json:"damsire"`
	DamsireRegion   *string           `json:"damsire_region"`
	Trainer         *string           `json:"trainer"`
	TrainerLocation *string           `json:"trainer_location"`
	Trainer14Days   any               `json:"trainer_14_days"` // published summary, passed through as decoded
	Owner           *string           `json:"owner"`
	PrevTrainers    []TrainerChange   `json:"prev_trainers"`
	PrevOwners      []OwnerChange     `json:"prev_owners"`
	Comment         *string           `json:"comment"`
	Spotlight       *string           `json:"spotlight"`
	Medical         []MedicalEvent    `json:"medical"`
	Quotes          []Quote           `json:"quotes"`
	StableTour      []StableTourQuote `json:"stable_tour"`

	// Race-page fields.
	Number        *int    `json:"number"`
	Draw          *int    `json:"draw"`
	Headgear      *string `json:"headgear"`
	HeadgearFirst *string `json:"headgear_first"`
	Lbs           *int    `json:"lbs"`
	OFR           *int    `json:"ofr"`
	RPR           *int    `json:"rpr"`
	TS            *int    `json:"ts"`
	Jockey        *string `json:"jockey"`
	LastRun       *string `json:"last_run"`
	Form          *string `json:"form"`
	TrainerRTF    *string `json:"trainer_rtf"`
}

// TrainerChange records a previous trainer of the horse.
type TrainerChange struct {
	Trainer    string `json:"trainer"`
	TrainerID  int    `json:"trainer_id"`
	ChangeDate string `json:"change_date"`
}

// OwnerChange records a previous owner of the horse.
type OwnerChange struct {
	Owner      string `json:"owner"`
	OwnerID    int    `json:"owner_id"`
	ChangeDate string `json:"change_date"`
}

// MedicalEvent is one entry of the horse's medical history.
type MedicalEvent struct {
	Date string `json:"date"`
	Type string `json:"type"`
}

// Quote is a connection's comment about the horse after a race.
type Quote struct {
	Date      string   `json:"date"`
	Horse     string   `json:"horse"`
	HorseID   int      `json:"horse_id"`
	Race      string   `json:"race"`
	RaceID    int      `json:"race_id"`
	Course    string   `json:"course"`
	CourseID  int      `json:"course_id"`
	DistanceF *float64 `json:"distance_f"`
	DistanceY *int     `json:"distance_y"`
	Quote     string   `json:"quote"`
}

// StableTourQuote is a trainer's stable-tour note about the horse.
type StableTourQuote struct {
	Horse   string `json:"horse"`
	HorseID int    `json:"horse_id"`
	Quote   string `json:"quote"`
}

// GoingInfo is the course-level context published by the going feed.
type GoingInfo struct {
	Course        string   `json:"course"`
	Going         string   `json:"going"`
	RailMovements []string `json:"rail_movements"`
	Stalls        *string  `json:"stalls"`
	Weather       *string  `json:"weather"`
}

// GoingIndex maps course_id to its GoingInfo. It is never mutated after
// construction and may be read concurrently.
type GoingIndex map[int]GoingInfo

// Snapshot is region -> course -> off time -> race.
type Snapshot map[string]map[string]map[string]RaceRecord

// Races returns the number of races held in the snapshot.
func (s Snapshot) Races() int {
	n := 0
	for _, courses := range s {
		for _, offTimes := range courses {
			n += len(offTimes)
		}
	}
	return n
}
