// internal/models/selection.go
package models

// SourceSelection maps an interpreted question to the tables and columns
// the analysis should use. Every source referenced by a later analysis
// must appear here.
type SourceSelection struct {
	Sources   []string            `json:"sources"`
	Columns   map[string][]string `json:"columns"`
	Rationale string              `json:"rationale"`
}

// HasSource reports whether id was selected.
func (s *SourceSelection) HasSource(id string) bool {
	for _, src := range s.Sources {
		if src == id {
			return true
		}
	}
	return false
}
