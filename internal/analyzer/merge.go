// internal/analyzer/merge.go
package analyzer

import "github.com/victor045/Agente-financiero/internal/models"

// Merge combines a prior analysis with a follow-up one. Keys are unioned;
// when both carry the same key the later result wins. Traceability entries
// accumulate, and partial status is sticky.
func Merge(prior, next *models.AnalysisResult) *models.AnalysisResult {
	if prior == nil {
		return next
	}
	if next == nil {
		return prior
	}

	merged := models.NewAnalysisResult()
	merged.Partial = prior.Partial || next.Partial

	for k, v := range prior.SummaryMetrics {
		merged.SummaryMetrics[k] = v
	}
	for k, v := range next.SummaryMetrics {
		merged.SummaryMetrics[k] = v
	}

	for k, v := range prior.Breakdowns {
		merged.Breakdowns[k] = v
	}
	for k, v := range next.Breakdowns {
		merged.Breakdowns[k] = v
	}

	for k, v := range prior.Comparisons {
		merged.Comparisons[k] = v
	}
	for k, v := range next.Comparisons {
		merged.Comparisons[k] = v
	}

	for k, v := range prior.RawCalculations {
		merged.RawCalculations[k] = v
	}
	for k, v := range next.RawCalculations {
		merged.RawCalculations[k] = v
	}

	for metric, sources := range prior.Traceability {
		merged.Traceability[metric] = append(merged.Traceability[metric], sources...)
	}
	for metric, sources := range next.Traceability {
		for _, s := range sources {
			if !containsString(merged.Traceability[metric], s) {
				merged.Traceability[metric] = append(merged.Traceability[metric], s)
			}
		}
	}
	return merged
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
