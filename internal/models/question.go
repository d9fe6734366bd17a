// internal/models/question.go
package models

import "time"

// AnalysisKind is the fixed vocabulary of analysis types the interpreter
// may assign to a question.
type AnalysisKind string

const (
	KindCashFlow         AnalysisKind = "cash_flow"
	KindExpenseBreakdown AnalysisKind = "expense_breakdown"
	KindRevenueByClient  AnalysisKind = "revenue_by_client"
	KindPeriodComparison AnalysisKind = "period_comparison"
	KindRanking          AnalysisKind = "ranking"
	KindGeneral          AnalysisKind = "general"
)

// KnownKinds lists every valid analysis kind in a stable order.
var KnownKinds = []AnalysisKind{
	KindCashFlow,
	KindExpenseBreakdown,
	KindRevenueByClient,
	KindPeriodComparison,
	KindRanking,
	KindGeneral,
}

// IsValidKind reports whether s names a known analysis kind.
func IsValidKind(s string) bool {
	for _, k := range KnownKinds {
		if string(k) == s {
			return true
		}
	}
	return false
}

// TimeWindow is an inclusive date range.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window, boundaries included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Previous returns the window immediately before this one with the same
// span. A calendar month steps back one month, anything else shifts by its
// length. Used as the implicit baseline for period comparisons.
func (w TimeWindow) Previous() TimeWindow {
	if w.Start.Day() == 1 && w.End.Equal(w.Start.AddDate(0, 1, -1)) {
		start := w.Start.AddDate(0, -1, 0)
		return TimeWindow{Start: start, End: start.AddDate(0, 1, -1)}
	}
	span := w.End.Sub(w.Start)
	end := w.Start.AddDate(0, 0, -1)
	return TimeWindow{Start: end.Add(-span), End: end}
}

// StructuredQuestion is the interpreter's structured reading of a raw
// question. Immutable once created.
type StructuredQuestion struct {
	Kind             AnalysisKind `json:"kind"`
	Window           *TimeWindow  `json:"window,omitempty"`
	Metrics          []string     `json:"metrics"`
	CandidateSources []string     `json:"candidateSources"`
}

// WithRefinement returns a copy of the question carrying a refined metric
// and/or window, used when an elaboration directive requests more analysis.
func (q StructuredQuestion) WithRefinement(metric string, window *TimeWindow) StructuredQuestion {
	out := q
	out.Metrics = append([]string(nil), q.Metrics...)
	if metric != "" {
		out.Metrics = append(out.Metrics, metric)
	}
	if window != nil {
		out.Window = window
	}
	return out
}
