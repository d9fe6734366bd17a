// internal/models/analysis.go
package models

import "github.com/shopspring/decimal"

// GroupEntry is a single ranked bucket in a grouped breakdown.
type GroupEntry struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
	Count int             `json:"count"`
}

// OthersLabel is the bucket label that absorbs groups beyond top-N so that
// breakdown totals stay reconcilable with the grand total.
const OthersLabel = "others"

// LoadErrorPrefix marks a traceability entry for a source that failed to
// load; the entry carries the failure instead of the columns read.
const LoadErrorPrefix = "LoadError: "

// Comparison holds a period-over-period delta for one metric. DeltaPct is
// nil when the baseline is zero.
type Comparison struct {
	Baseline decimal.Decimal `json:"baseline"`
	Current  decimal.Decimal `json:"current"`
	Delta    decimal.Decimal `json:"delta"`
	DeltaPct *float64        `json:"deltaPct"`
}

// AnalysisResult is the analyzer's output for one workflow pass. Produced
// once per pass; a feedback re-analysis merges into a new result rather
// than mutating this one.
type AnalysisResult struct {
	SummaryMetrics  map[string]decimal.Decimal `json:"summaryMetrics"`
	Breakdowns      map[string][]GroupEntry    `json:"breakdowns"`
	Comparisons     map[string]Comparison      `json:"comparisons,omitempty"`
	Traceability    map[string][]string        `json:"traceability"`
	RawCalculations map[string]decimal.Decimal `json:"rawCalculations"`
	Partial         bool                       `json:"partial,omitempty"`
}

// NewAnalysisResult returns an AnalysisResult with all maps initialized.
func NewAnalysisResult() *AnalysisResult {
	return &AnalysisResult{
		SummaryMetrics:  make(map[string]decimal.Decimal),
		Breakdowns:      make(map[string][]GroupEntry),
		Comparisons:     make(map[string]Comparison),
		Traceability:    make(map[string][]string),
		RawCalculations: make(map[string]decimal.Decimal),
	}
}
