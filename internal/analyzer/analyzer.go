// internal/analyzer/analyzer.go
package analyzer

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/models"
)

// DefaultTopN bounds breakdown groups before the rest collapses into the
// "others" bucket.
const DefaultTopN = 5

// Invoice direction markers as they appear in the source data.
const (
	tipoReceivable = "Por cobrar"
	tipoPayable    = "Por pagar"
)

// Analyzer computes deterministic financial aggregates. Every number it
// emits comes from decimal arithmetic over the loaded tables; nothing is
// estimated.
type Analyzer struct {
	topN int
	log  logger.Logger
}

// New creates an analyzer with the given breakdown size.
func New(topN int, log logger.Logger) *Analyzer {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Analyzer{topN: topN, log: log}
}

// Analyze runs the computation the structured question asks for over the
// selected tables. loadErrs carries sources that failed to load; they are
// recorded in the result's traceability and mark it partial.
func (a *Analyzer) Analyze(ctx context.Context, q *models.StructuredQuestion, selection *models.SourceSelection, tables map[string]*dataset.Table, loadErrs map[string]error) (*models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := models.NewAnalysisResult()

	for source, err := range loadErrs {
		result.Partial = true
		result.Traceability[source] = []string{models.LoadErrorPrefix + err.Error()}
	}

	if len(tables) == 0 {
		return nil, apperrors.NewAnalysisFailedError(errors.New("no tables to analyze"))
	}

	switch q.Kind {
	case models.KindCashFlow:
		a.cashFlow(q, tables, result)
	case models.KindExpenseBreakdown:
		a.breakdown(q, tables, result, "rubro", "total_expenses", "expenses_by_category")
	case models.KindRevenueByClient:
		a.revenue(q, tables, result)
	case models.KindRanking:
		a.breakdown(q, tables, result, "cliente", "total_amount", "ranking")
	case models.KindPeriodComparison:
		a.periodComparison(q, tables, result)
	default:
		a.general(q, tables, result)
	}

	a.log.Debug("Analysis completed", map[string]interface{}{
		"kind":    string(q.Kind),
		"sources": len(tables),
		"partial": result.Partial,
	})
	return result, nil
}

// filteredRows applies the question's time window to a table. Rows without a
// parseable date are excluded when a window is set, and counted.
func (a *Analyzer) filteredRows(q *models.StructuredQuestion, table *dataset.Table, result *models.AnalysisResult) []dataset.Row {
	if q.Window == nil {
		return table.Rows
	}

	var kept []dataset.Row
	excluded := 0
	for _, row := range table.Rows {
		date, ok := row["fecha"]
		if !ok || date.Kind != dataset.ValueDate {
			excluded++
			continue
		}
		if q.Window.Contains(date.Date) {
			kept = append(kept, row)
		}
	}
	if excluded > 0 {
		key := "rows_excluded_no_date"
		prev := result.RawCalculations[key]
		result.RawCalculations[key] = prev.Add(decimal.NewFromInt(int64(excluded)))
	}
	return kept
}

func (a *Analyzer) cashFlow(q *models.StructuredQuestion, tables map[string]*dataset.Table, result *models.AnalysisResult) {
	inflows := decimal.Zero
	outflows := decimal.Zero
	byType := make(map[string]*models.GroupEntry)
	typedTotal := decimal.Zero

	for _, source := range sortedSources(tables) {
		table := tables[source]
		// An expense ledger records positive amounts that are all outgoing.
		expenseLedger := table.HasColumn("rubro") && !table.HasColumn("tipo")
		sourceTotal := decimal.Zero
		for _, row := range a.filteredRows(q, table, result) {
			amount, ok := rowAmount(row)
			if !ok {
				continue
			}
			dir := direction(row, amount)
			if expenseLedger {
				dir = -1
			}
			switch dir {
			case 1:
				inflows = inflows.Add(amount.Abs())
			case -1:
				outflows = outflows.Add(amount.Abs())
			}
			sourceTotal = sourceTotal.Add(amount)

			if tipo, ok := row["tipo"]; ok && tipo.Str != "" {
				entry, ok := byType[tipo.Str]
				if !ok {
					entry = &models.GroupEntry{Label: tipo.Str}
					byType[tipo.Str] = entry
				}
				entry.Value = entry.Value.Add(amount.Abs())
				entry.Count++
				typedTotal = typedTotal.Add(amount.Abs())
			}
		}
		result.RawCalculations["net_"+table.SourceID] = sourceTotal
		a.trace(result, table, traceCols(q, "tipo", "rubro")...)
	}

	result.SummaryMetrics["inflows"] = inflows
	result.SummaryMetrics["outflows"] = outflows
	result.SummaryMetrics["net_cash_flow"] = inflows.Sub(outflows)
	if len(byType) > 0 {
		result.Breakdowns["by_tipo"] = a.topNWithOthers(byType, typedTotal)
		result.RawCalculations["total_by_tipo"] = typedTotal
	}
}

func (a *Analyzer) breakdown(q *models.StructuredQuestion, tables map[string]*dataset.Table, result *models.AnalysisResult, groupCol, totalKey, breakdownKey string) {
	groups := make(map[string]*models.GroupEntry)
	total := decimal.Zero

	for _, source := range sortedSources(tables) {
		table := tables[source]
		if !table.HasColumn(groupCol) {
			continue
		}
		for _, row := range a.filteredRows(q, table, result) {
			amount, ok := rowAmount(row)
			if !ok {
				continue
			}
			label := row[groupCol].Str
			if label == "" {
				label = "sin clasificar"
			}
			entry, ok := groups[label]
			if !ok {
				entry = &models.GroupEntry{Label: label}
				groups[label] = entry
			}
			entry.Value = entry.Value.Add(amount.Abs())
			entry.Count++
			total = total.Add(amount.Abs())
		}
		a.trace(result, table, traceCols(q, groupCol)...)
	}

	result.SummaryMetrics[totalKey] = total
	result.Breakdowns[breakdownKey] = a.topNWithOthers(groups, total)
	for label, entry := range groups {
		result.RawCalculations[breakdownKey+":"+label] = entry.Value
	}
}

func (a *Analyzer) revenue(q *models.StructuredQuestion, tables map[string]*dataset.Table, result *models.AnalysisResult) {
	groups := make(map[string]*models.GroupEntry)
	total := decimal.Zero

	for _, source := range sortedSources(tables) {
		table := tables[source]
		if !table.HasColumn("cliente") {
			continue
		}
		for _, row := range a.filteredRows(q, table, result) {
			// Only receivables count as revenue when direction is known.
			if tipo, ok := row["tipo"]; ok && tipo.Str != tipoReceivable {
				continue
			}
			amount, ok := rowAmount(row)
			if !ok {
				continue
			}
			label := row["cliente"].Str
			if label == "" {
				label = "sin clasificar"
			}
			entry, ok := groups[label]
			if !ok {
				entry = &models.GroupEntry{Label: label}
				groups[label] = entry
			}
			entry.Value = entry.Value.Add(amount.Abs())
			entry.Count++
			total = total.Add(amount.Abs())
		}
		a.trace(result, table, traceCols(q, "cliente", "tipo")...)
	}

	result.SummaryMetrics["total_revenue"] = total
	result.Breakdowns["revenue_by_client"] = a.topNWithOthers(groups, total)
	for label, entry := range groups {
		result.RawCalculations["revenue:"+label] = entry.Value
	}
}

func (a *Analyzer) periodComparison(q *models.StructuredQuestion, tables map[string]*dataset.Table, result *models.AnalysisResult) {
	if q.Window == nil {
		a.general(q, tables, result)
		return
	}
	baselineWindow := q.Window.Previous()

	current := decimal.Zero
	baseline := decimal.Zero
	excluded := 0
	for _, source := range sortedSources(tables) {
		table := tables[source]
		for _, row := range table.Rows {
			date, ok := row["fecha"]
			if !ok || date.Kind != dataset.ValueDate {
				excluded++
				continue
			}
			amount, ok := rowAmount(row)
			if !ok {
				continue
			}
			switch {
			case q.Window.Contains(date.Date):
				current = current.Add(amount)
			case baselineWindow.Contains(date.Date):
				baseline = baseline.Add(amount)
			}
		}
		a.trace(result, table, "monto", "fecha")
	}
	if excluded > 0 {
		prev := result.RawCalculations["rows_excluded_no_date"]
		result.RawCalculations["rows_excluded_no_date"] = prev.Add(decimal.NewFromInt(int64(excluded)))
	}

	cmp := models.Comparison{
		Baseline: baseline,
		Current:  current,
		Delta:    current.Sub(baseline),
	}
	if !baseline.IsZero() {
		pct, _ := cmp.Delta.Div(baseline.Abs()).Mul(decimal.NewFromInt(100)).Float64()
		cmp.DeltaPct = &pct
	}
	result.Comparisons["total"] = cmp
	result.SummaryMetrics["current_total"] = current
	result.SummaryMetrics["baseline_total"] = baseline
	result.RawCalculations["comparison_delta"] = cmp.Delta
}

func (a *Analyzer) general(q *models.StructuredQuestion, tables map[string]*dataset.Table, result *models.AnalysisResult) {
	grand := decimal.Zero
	rows := 0

	for _, source := range sortedSources(tables) {
		table := tables[source]
		sourceTotal := decimal.Zero
		for _, row := range a.filteredRows(q, table, result) {
			rows++
			if amount, ok := rowAmount(row); ok {
				sourceTotal = sourceTotal.Add(amount)
			}
		}
		result.RawCalculations["total_"+table.SourceID] = sourceTotal
		grand = grand.Add(sourceTotal)
		a.trace(result, table, traceCols(q)...)
	}

	result.SummaryMetrics["grand_total"] = grand
	result.SummaryMetrics["rows_considered"] = decimal.NewFromInt(int64(rows))
}

// topNWithOthers keeps the largest groups and folds the rest into a single
// bucket so the published entries always reconcile to the grand total.
func (a *Analyzer) topNWithOthers(groups map[string]*models.GroupEntry, total decimal.Decimal) []models.GroupEntry {
	entries := make([]models.GroupEntry, 0, len(groups))
	for _, e := range groups {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Value.Equal(entries[j].Value) {
			return entries[i].Value.GreaterThan(entries[j].Value)
		}
		return entries[i].Label < entries[j].Label
	})

	if len(entries) <= a.topN {
		return entries
	}

	kept := entries[:a.topN]
	others := models.GroupEntry{Label: models.OthersLabel}
	keptTotal := decimal.Zero
	for _, e := range kept {
		keptTotal = keptTotal.Add(e.Value)
	}
	for _, e := range entries[a.topN:] {
		others.Count += e.Count
	}
	others.Value = total.Sub(keptTotal)
	return append(kept, others)
}

// trace records which of a source's columns fed the analysis. Columns the
// table does not carry are skipped.
func (a *Analyzer) trace(result *models.AnalysisResult, table *dataset.Table, cols ...string) {
	for _, col := range cols {
		if !table.HasColumn(col) {
			continue
		}
		seen := false
		for _, c := range result.Traceability[table.SourceID] {
			if c == col {
				seen = true
				break
			}
		}
		if !seen {
			result.Traceability[table.SourceID] = append(result.Traceability[table.SourceID], col)
		}
	}
}

// traceCols lists the columns an aggregation reads. The date column only
// counts when a window filter applies.
func traceCols(q *models.StructuredQuestion, extra ...string) []string {
	cols := append([]string{"monto"}, extra...)
	if q.Window != nil {
		cols = append(cols, "fecha")
	}
	return cols
}

func rowAmount(row dataset.Row) (decimal.Decimal, bool) {
	v, ok := row["monto"]
	if !ok || v.Kind != dataset.ValueNumber {
		return decimal.Zero, false
	}
	return v.Number, true
}

// direction classifies a row as inflow (1), outflow (-1) or neutral (0),
// preferring the explicit tipo column over the amount's sign.
func direction(row dataset.Row, amount decimal.Decimal) int {
	if tipo, ok := row["tipo"]; ok && tipo.Str != "" {
		switch tipo.Str {
		case tipoReceivable:
			return 1
		case tipoPayable:
			return -1
		}
	}
	switch {
	case amount.IsPositive():
		return 1
	case amount.IsNegative():
		return -1
	}
	return 0
}

func sortedSources(tables map[string]*dataset.Table) []string {
	out := make([]string, 0, len(tables))
	for id := range tables {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
