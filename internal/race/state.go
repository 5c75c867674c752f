package race

// State is a step of race assembly. A race moves through the states in
// declaration order and stops at the first error.
type State int

// Assembly states.
const (
	Fetched State = iota
	FieldsExtracted
	ProfilesAttached
	RacePageOverlaid
	GoingOverlaid
	Complete
)

func (s State) String() string {
	switch s {
	case Fetched:
		return "fetched"
	case FieldsExtracted:
		return "fields_extracted"
	case ProfilesAttached:
		return "profiles_attached"
	case RacePageOverlaid:
		return "race_page_overlaid"
	case GoingOverlaid:
		return "going_overlaid"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}
