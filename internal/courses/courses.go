// Package courses holds the static course -> region reference table.
package courses

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// AggregateKey is the reserved region key that lists every course.
const AggregateKey = "all"

// Table maps region code -> course id -> course name. It is loaded once and
// only read afterwards.
type Table struct {
	regions map[string]map[string]string
}

// New builds a Table from an in-memory region map. The aggregate key is
// dropped.
func New(regions map[string]map[string]string) *Table {
	t := &Table{regions: make(map[string]map[string]string, len(regions))}
	for region, courses := range regions {
		if region == AggregateKey {
			continue
		}
		copied := make(map[string]string, len(courses))
		for id, name := range courses {
			copied[id] = name
		}
		t.regions[region] = copied
	}
	return t
}

// Parse decodes a JSON table shaped {region: {course_id: course_info}}.
// String course info is kept as the course name; any other shape is kept
// verbatim.
func Parse(r io.Reader) (*Table, error) {
	var raw map[string]map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode course table: %w", err)
	}
	regions := make(map[string]map[string]string, len(raw))
	for region, courses := range raw {
		named := make(map[string]string, len(courses))
		for id, info := range courses {
			var name string
			if err := json.Unmarshal(info, &name); err != nil {
				name = string(info)
			}
			named[id] = name
		}
		regions[region] = named
	}
	return New(regions), nil
}

// Load reads the table from path.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("course table path is required")
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open course table: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	return Parse(f)
}

// Region returns the upper-cased region code holding courseID, or nil.
func (t *Table) Region(courseID string) *string {
	if t == nil {
		return nil
	}
	for region, courses := range t.regions {
		if _, ok := courses[courseID]; ok {
			code := strings.ToUpper(region)
			return &code
		}
	}
	return nil
}

// Len reports the number of regions in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.regions)
}
