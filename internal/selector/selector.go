// internal/selector/selector.go
package selector

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/models"
)

// ErrNoSources signals an empty catalog: nothing can be selected.
var ErrNoSources = errors.New("SELECTION_FAILED")

// DefaultThreshold is the minimum score a source needs to be picked on its
// own merit. Below it the static kind fallback applies.
const DefaultThreshold = 1.0

// Scorer ranks one catalog source against a structured question. Higher is
// more relevant.
type Scorer interface {
	Score(q *models.StructuredQuestion, src dataset.SourceInfo, history []models.ConversationRecord) float64
}

// Selector picks the data sources an analysis should read.
type Selector struct {
	scorer    Scorer
	threshold float64
	log       logger.Logger
}

// New creates a selector with the default keyword scorer.
func New(log logger.Logger) *Selector {
	return &Selector{scorer: &KeywordScorer{}, threshold: DefaultThreshold, log: log}
}

// NewWithScorer creates a selector using a custom scoring strategy.
func NewWithScorer(scorer Scorer, threshold float64, log logger.Logger) *Selector {
	return &Selector{scorer: scorer, threshold: threshold, log: log}
}

// kindTags is the static fallback: which source archetypes serve each
// analysis kind when scoring finds nothing.
var kindTags = map[models.AnalysisKind][]string{
	models.KindCashFlow:         {"bank", "invoices"},
	models.KindExpenseBreakdown: {"expenses"},
	models.KindRevenueByClient:  {"invoices"},
	models.KindPeriodComparison: {"monetary"},
	models.KindRanking:          {"monetary"},
}

// Select picks sources for the question. Sources the question names
// explicitly are always kept; the rest are scored and the fallback table
// fills in when nothing clears the threshold.
func (s *Selector) Select(q *models.StructuredQuestion, catalog []dataset.SourceInfo, history []models.ConversationRecord) (*models.SourceSelection, error) {
	if len(catalog) == 0 {
		return nil, apperrors.NewSelectionFailedError("no data sources available").WithCause(ErrNoSources)
	}

	byID := make(map[string]dataset.SourceInfo, len(catalog))
	for _, src := range catalog {
		byID[src.ID] = src
	}

	picked := make(map[string]bool)
	var rationale []string

	// Explicitly named sources are never dropped.
	for _, id := range q.CandidateSources {
		if _, ok := byID[id]; ok {
			picked[id] = true
			rationale = append(rationale, fmt.Sprintf("%s: named in the question", id))
		} else {
			s.log.Warn("Named source not in catalog", map[string]interface{}{"source": id})
		}
	}

	type scored struct {
		id    string
		score float64
	}
	var ranked []scored
	for _, src := range catalog {
		if picked[src.ID] {
			continue
		}
		ranked = append(ranked, scored{id: src.ID, score: s.scorer.Score(q, src, history)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	for _, r := range ranked {
		if r.score >= s.threshold {
			picked[r.id] = true
			rationale = append(rationale, fmt.Sprintf("%s: scored %.1f", r.id, r.score))
		}
	}

	// Fallback: nothing cleared the threshold and nothing was named.
	if len(picked) == 0 {
		for _, src := range catalog {
			if s.fallbackMatch(q.Kind, src) {
				picked[src.ID] = true
				rationale = append(rationale, fmt.Sprintf("%s: fallback for %s", src.ID, q.Kind))
			}
		}
	}
	if len(picked) == 0 {
		// Last resort for general questions: read everything.
		for _, src := range catalog {
			picked[src.ID] = true
		}
		rationale = append(rationale, "all sources: no specific match")
	}

	selection := &models.SourceSelection{
		Columns:   make(map[string][]string, len(picked)),
		Rationale: strings.Join(rationale, "; "),
	}
	for _, src := range catalog {
		if picked[src.ID] {
			selection.Sources = append(selection.Sources, src.ID)
			selection.Columns[src.ID] = relevantColumns(q.Kind, src)
		}
	}

	s.log.Debug("Sources selected", map[string]interface{}{
		"kind":    string(q.Kind),
		"sources": selection.Sources,
	})
	return selection, nil
}

func (s *Selector) fallbackMatch(kind models.AnalysisKind, src dataset.SourceInfo) bool {
	tags, ok := kindTags[kind]
	if !ok {
		return true
	}
	for _, want := range tags {
		for _, have := range src.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// relevantColumns narrows a source's schema to the columns the analysis
// kind actually reads.
func relevantColumns(kind models.AnalysisKind, src dataset.SourceInfo) []string {
	wanted := map[string]bool{"monto": true, "fecha": true}
	switch kind {
	case models.KindCashFlow:
		wanted["tipo"] = true
		wanted["saldo"] = true
	case models.KindExpenseBreakdown:
		wanted["rubro"] = true
	case models.KindRevenueByClient, models.KindRanking:
		wanted["cliente"] = true
		wanted["tipo"] = true
	default:
		return src.Columns
	}

	var cols []string
	for _, c := range src.Columns {
		if wanted[c] {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return src.Columns
	}
	return cols
}
