// Package normalize converts raw race-card strings into typed domain values.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrNoFieldSize is returned when a runners label carries no count.
var ErrNoFieldSize = errors.New("runners label has no field size")

var fractionReplacer = strings.NewReplacer("¼", ".25", "½", ".5", "¾", ".75")

// DistanceToFurlongs converts a distance such as "2m4½f" into furlongs.
// A miles component counts eight furlongs per mile plus any furlong remainder;
// without one the whole string is the furlong value.
func DistanceToFurlongs(distance string) (float64, error) {
	dist := fractionReplacer.Replace(strings.TrimSpace(distance))
	if dist == "" {
		return 0, fmt.Errorf("empty distance")
	}

	miles, rest, hasMiles := strings.Cut(dist, "m")
	if !hasMiles {
		f, err := strconv.ParseFloat(strings.Trim(dist, "f"), 64)
		if err != nil {
			return 0, fmt.Errorf("parse furlongs %q: %w", distance, err)
		}
		return f, nil
	}

	m, err := strconv.Atoi(strings.TrimSpace(miles))
	if err != nil {
		return 0, fmt.Errorf("parse miles %q: %w", distance, err)
	}
	total := float64(m * 8)
	rest = strings.TrimSpace(strings.Trim(rest, "f"))
	if rest == "" {
		return total, nil
	}
	f, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, fmt.Errorf("parse furlong remainder %q: %w", distance, err)
	}
	return total + f, nil
}

const (
	railLabel      = "Rail movements:"
	railLabelParen = "(Rail movements:"
)

// Going splits a going description from its "(Rail movements: a, b)" suffix.
// Without a suffix the input is returned unchanged with an empty list.
func Going(description string) (string, []string) {
	idx := strings.Index(description, railLabel)
	if idx < 0 {
		return description, []string{}
	}

	tail := strings.TrimSpace(description[idx+len(railLabel):])
	tail = strings.TrimRight(tail, ")")
	parts := strings.Split(tail, ",")
	rails := make([]string, 0, len(parts))
	for _, p := range parts {
		rails = append(rails, strings.TrimSpace(p))
	}

	cut := strings.Index(description, railLabelParen)
	if cut < 0 {
		cut = idx
	}
	return strings.TrimSpace(description[:cut]), rails
}

var (
	grades = []struct{ needle, label string }{
		{"grade 1", "Grade 1"},
		{"grade 2", "Grade 2"},
		{"grade 3", "Grade 3"},
		{"grade a", "Grade A"},
		{"grade b", "Grade B"},
		{"grade c", "Grade C"},
	}
	groups = []struct{ needle, label string }{
		{"group 1", "Group 1"},
		{"group 2", "Group 2"},
		{"group 3", "Group 3"},
	}
)

// Pattern derives the pattern grade from a lower-cased race name. Grades are
// checked before groups, groups before listed; the first category present
// decides the result even when none of its labels match.
func Pattern(raceName string) string {
	switch {
	case strings.Contains(raceName, "grade"):
		return firstLabel(raceName, grades)
	case strings.Contains(raceName, "group"):
		return firstLabel(raceName, groups)
	case strings.Contains(raceName, "listed"):
		return "Listed"
	default:
		return ""
	}
}

func firstLabel(name string, labels []struct{ needle, label string }) string {
	for _, l := range labels {
		if strings.Contains(name, l.needle) {
			return l.label
		}
	}
	return ""
}

// Bands splits an ages label such as "(4yo+ 80-100)" into age band and
// rating band. Both are nil when the label is absent or empty.
func Bands(label *string) (ageBand, ratingBand *string) {
	if label == nil {
		return nil, nil
	}
	fields := strings.Fields(strings.Trim(*label, "()"))
	if len(fields) == 0 {
		return nil, nil
	}
	age := fields[0]
	if len(fields) > 1 {
		rating := fields[1]
		return &age, &rating
	}
	return &age, nil
}

// Prize extracts the text following "winner:" in a prize label.
func Prize(label *string) *string {
	return afterLabel(label, "winner:")
}

// FieldSize parses N from a "Runners: N (declared)" label.
func FieldSize(label *string) (int, error) {
	raw := afterLabel(label, "runners:")
	if raw == nil {
		return 0, ErrNoFieldSize
	}
	count, _, _ := strings.Cut(*raw, "(")
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return 0, fmt.Errorf("parse field size %q: %w", *raw, err)
	}
	return n, nil
}

// GoingLabel title-cases the text following "going:", or returns "".
func GoingLabel(label *string) string {
	raw := afterLabel(label, "going:")
	if raw == nil {
		return ""
	}
	return TitleCase(*raw)
}

// TitleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

// Jockey appends a parenthesized claim allowance to the jockey name.
func Jockey(name, claim *string) *string {
	if name == nil || *name == "" {
		return nil
	}
	if claim == nil || *claim == "" {
		return name
	}
	out := fmt.Sprintf("%s(%s)", *name, *claim)
	return &out
}

// afterLabel lower-cases label and returns the trimmed text after marker.
func afterLabel(label *string, marker string) *string {
	if label == nil {
		return nil
	}
	_, after, ok := strings.Cut(strings.ToLower(*label), marker)
	if !ok {
		return nil
	}
	after = strings.TrimSpace(after)
	return &after
}
