// internal/selector/scorer.go
package selector

import (
	"strings"

	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/models"
)

// KeywordScorer is the default strategy: archetype tags matching the
// analysis kind, schema overlap with the requested metrics, and a bonus for
// sources the recent conversation already used.
type KeywordScorer struct{}

// kindKeywords maps each analysis kind to the tags that indicate a source
// can serve it.
var kindKeywords = map[models.AnalysisKind][]string{
	models.KindCashFlow:         {"bank", "invoices", "monetary"},
	models.KindExpenseBreakdown: {"expenses"},
	models.KindRevenueByClient:  {"invoices"},
	models.KindPeriodComparison: {"monetary"},
	models.KindRanking:          {"monetary"},
	models.KindGeneral:          {"monetary"},
}

// metricColumns maps requested metric names onto the columns that carry them.
var metricColumns = map[string][]string{
	"gastos":   {"rubro", "monto"},
	"ingresos": {"monto", "tipo"},
	"ventas":   {"monto", "cliente"},
	"saldo":    {"saldo"},
	"clientes": {"cliente"},
}

func (ks *KeywordScorer) Score(q *models.StructuredQuestion, src dataset.SourceInfo, history []models.ConversationRecord) float64 {
	var score float64

	for _, want := range kindKeywords[q.Kind] {
		for _, tag := range src.Tags {
			if want == tag {
				score += 1.0
			}
		}
	}

	for _, metric := range q.Metrics {
		for _, col := range metricColumns[strings.ToLower(metric)] {
			for _, have := range src.Columns {
				if col == have {
					score += 0.5
				}
			}
		}
	}

	// Sources recent turns already read for the same analysis kind keep
	// successive answers consistent.
	for _, record := range history {
		if record.Kind != q.Kind {
			continue
		}
		for _, used := range record.Sources {
			if used == src.ID {
				score += 0.5
			}
		}
	}
	return score
}
