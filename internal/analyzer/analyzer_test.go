// internal/analyzer/analyzer_test.go
package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/models"
)

func num(s string) dataset.Value {
	return dataset.NumberValue(decimal.RequireFromString(s))
}

func date(s string) dataset.Value {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return dataset.DateValue(t)
}

func str(s string) dataset.Value { return dataset.StringValue(s) }

func invoiceTable() *dataset.Table {
	return &dataset.Table{
		SourceID: "facturas.xlsx",
		Columns:  []string{"cliente", "monto", "tipo", "fecha"},
		Rows: []dataset.Row{
			{"cliente": str("Cliente A"), "monto": num("1500.50"), "tipo": str("Por cobrar"), "fecha": date("2025-06-01")},
			{"cliente": str("Cliente B"), "monto": num("2000.00"), "tipo": str("Por cobrar"), "fecha": date("2025-06-10")},
			{"cliente": str("Proveedor C"), "monto": num("800.25"), "tipo": str("Por pagar"), "fecha": date("2025-06-15")},
			{"cliente": str("Cliente A"), "monto": num("500.00"), "tipo": str("Por cobrar"), "fecha": date("2025-05-20")},
		},
	}
}

func expenseTable() *dataset.Table {
	return &dataset.Table{
		SourceID: "gastos_fijos.xlsx",
		Columns:  []string{"rubro", "monto", "fecha"},
		Rows: []dataset.Row{
			{"rubro": str("Renta"), "monto": num("12000"), "fecha": date("2025-06-01")},
			{"rubro": str("Luz"), "monto": num("950.75"), "fecha": date("2025-06-05")},
			{"rubro": str("Agua"), "monto": num("310.00"), "fecha": date("2025-06-05")},
			{"rubro": str("Internet"), "monto": num("599.00"), "fecha": date("2025-06-07")},
			{"rubro": str("Telefono"), "monto": num("450.00"), "fecha": date("2025-06-07")},
			{"rubro": str("Papeleria"), "monto": num("120.00"), "fecha": date("2025-06-08")},
			{"rubro": str("Cafe"), "monto": num("85.50"), "fecha": date("2025-06-09")},
		},
	}
}

func juneWindow() *models.TimeWindow {
	return &models.TimeWindow{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestAnalyzeCashFlow(t *testing.T) {
	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindCashFlow, Window: juneWindow()}
	tables := map[string]*dataset.Table{"facturas.xlsx": invoiceTable()}

	result, err := a.Analyze(context.Background(), q, nil, tables, nil)
	require.NoError(t, err)

	assert.Equal(t, "3500.5", result.SummaryMetrics["inflows"].String())
	assert.Equal(t, "800.25", result.SummaryMetrics["outflows"].String())
	assert.Equal(t, "2700.25", result.SummaryMetrics["net_cash_flow"].String())
	assert.ElementsMatch(t, []string{"monto", "tipo", "fecha"}, result.Traceability["facturas.xlsx"])
	assert.False(t, result.Partial)
}

func TestAnalyzeCashFlowTotalsByType(t *testing.T) {
	table := &dataset.Table{
		SourceID: "movimientos.csv",
		Columns:  []string{"tipo", "monto"},
		Rows: []dataset.Row{
			{"tipo": str("Por pagar"), "monto": num("100")},
			{"tipo": str("Por cobrar"), "monto": num("150")},
		},
	}

	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindCashFlow}

	result, err := a.Analyze(context.Background(), q, nil, map[string]*dataset.Table{"movimientos.csv": table}, nil)
	require.NoError(t, err)

	entries := result.Breakdowns["by_tipo"]
	require.Len(t, entries, 2)
	assert.Equal(t, "Por cobrar", entries[0].Label)
	assert.Equal(t, "150", entries[0].Value.String())
	assert.Equal(t, 1, entries[0].Count)
	assert.Equal(t, "Por pagar", entries[1].Label)
	assert.Equal(t, "100", entries[1].Value.String())
	assert.Equal(t, 1, entries[1].Count)

	assert.Equal(t, "250", result.RawCalculations["total_by_tipo"].String())
	assert.Equal(t, "150", result.SummaryMetrics["inflows"].String())
	assert.Equal(t, "100", result.SummaryMetrics["outflows"].String())
}

func TestAnalyzeExpenseBreakdownTopN(t *testing.T) {
	a := New(3, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindExpenseBreakdown}
	tables := map[string]*dataset.Table{"gastos_fijos.xlsx": expenseTable()}

	result, err := a.Analyze(context.Background(), q, nil, tables, nil)
	require.NoError(t, err)

	total := result.SummaryMetrics["total_expenses"]
	assert.Equal(t, "14515.25", total.String())

	entries := result.Breakdowns["expenses_by_category"]
	require.Len(t, entries, 4)
	assert.Equal(t, "Renta", entries[0].Label)
	assert.Equal(t, models.OthersLabel, entries[3].Label)

	// The published entries reconcile exactly to the grand total.
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Value)
	}
	assert.True(t, sum.Equal(total), "entries %s should equal total %s", sum, total)
}

func TestAnalyzeRevenueByClient(t *testing.T) {
	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindRevenueByClient, Window: juneWindow()}
	tables := map[string]*dataset.Table{"facturas.xlsx": invoiceTable()}

	result, err := a.Analyze(context.Background(), q, nil, tables, nil)
	require.NoError(t, err)

	// Payables are not revenue; the May invoice is outside the window.
	assert.Equal(t, "3500.5", result.SummaryMetrics["total_revenue"].String())
	entries := result.Breakdowns["revenue_by_client"]
	require.Len(t, entries, 2)
	assert.Equal(t, "Cliente B", entries[0].Label)
}

func TestAnalyzeWindowExcludesUndatedRows(t *testing.T) {
	table := invoiceTable()
	table.Rows = append(table.Rows, dataset.Row{
		"cliente": str("Cliente X"), "monto": num("9999"), "tipo": str("Por cobrar"),
	})

	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindCashFlow, Window: juneWindow()}

	result, err := a.Analyze(context.Background(), q, nil, map[string]*dataset.Table{"facturas.xlsx": table}, nil)
	require.NoError(t, err)

	assert.Equal(t, "3500.5", result.SummaryMetrics["inflows"].String())
	assert.Equal(t, "1", result.RawCalculations["rows_excluded_no_date"].String())
}

func TestAnalyzePeriodComparison(t *testing.T) {
	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindPeriodComparison, Window: juneWindow()}
	tables := map[string]*dataset.Table{"facturas.xlsx": invoiceTable()}

	result, err := a.Analyze(context.Background(), q, nil, tables, nil)
	require.NoError(t, err)

	cmp, ok := result.Comparisons["total"]
	require.True(t, ok)
	assert.Equal(t, "4300.75", cmp.Current.String())
	assert.Equal(t, "500", cmp.Baseline.String())
	require.NotNil(t, cmp.DeltaPct)
	assert.InDelta(t, 760.15, *cmp.DeltaPct, 0.01)
}

func TestAnalyzePeriodComparisonCountsUndatedRows(t *testing.T) {
	table := invoiceTable()
	table.Rows = append(table.Rows, dataset.Row{
		"cliente": str("Cliente X"), "monto": num("9999"), "tipo": str("Por cobrar"),
	})

	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindPeriodComparison, Window: juneWindow()}

	result, err := a.Analyze(context.Background(), q, nil, map[string]*dataset.Table{"facturas.xlsx": table}, nil)
	require.NoError(t, err)

	cmp := result.Comparisons["total"]
	assert.Equal(t, "4300.75", cmp.Current.String())
	assert.Equal(t, "1", result.RawCalculations["rows_excluded_no_date"].String())
}

func TestAnalyzePeriodComparisonZeroBaseline(t *testing.T) {
	table := invoiceTable()
	table.Rows = table.Rows[:3] // drop the May invoice

	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindPeriodComparison, Window: juneWindow()}

	result, err := a.Analyze(context.Background(), q, nil, map[string]*dataset.Table{"facturas.xlsx": table}, nil)
	require.NoError(t, err)

	cmp := result.Comparisons["total"]
	assert.True(t, cmp.Baseline.IsZero())
	assert.Nil(t, cmp.DeltaPct)
}

func TestAnalyzeLoadFailuresMarkPartial(t *testing.T) {
	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindGeneral}
	tables := map[string]*dataset.Table{"facturas.xlsx": invoiceTable()}
	loadErrs := map[string]error{"estado_cuenta.xlsx": errors.New("LOAD_FILE_NOT_FOUND: estado_cuenta.xlsx")}

	result, err := a.Analyze(context.Background(), q, nil, tables, loadErrs)
	require.NoError(t, err)

	assert.True(t, result.Partial)
	require.Len(t, result.Traceability["estado_cuenta.xlsx"], 1)
	assert.True(t, strings.HasPrefix(result.Traceability["estado_cuenta.xlsx"][0], models.LoadErrorPrefix))
	assert.Contains(t, result.Traceability["estado_cuenta.xlsx"][0], "LOAD_FILE_NOT_FOUND")
	assert.ElementsMatch(t, []string{"monto"}, result.Traceability["facturas.xlsx"])
}

func TestAnalyzeNoTables(t *testing.T) {
	a := New(5, logger.NewTestLogger(t))
	q := &models.StructuredQuestion{Kind: models.KindGeneral}

	_, err := a.Analyze(context.Background(), q, nil, nil, map[string]error{
		"facturas.xlsx": errors.New("LOAD_FILE_NOT_FOUND"),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAnalysisFailed, apperrors.Normalize(err).Code)
}

func TestMergeLaterWins(t *testing.T) {
	prior := models.NewAnalysisResult()
	prior.SummaryMetrics["total"] = decimal.NewFromInt(100)
	prior.SummaryMetrics["kept"] = decimal.NewFromInt(7)
	prior.Traceability["facturas.xlsx"] = []string{"monto"}

	next := models.NewAnalysisResult()
	next.SummaryMetrics["total"] = decimal.NewFromInt(250)
	next.Traceability["facturas.xlsx"] = []string{"monto", "tipo"}
	next.Partial = true

	merged := Merge(prior, next)
	assert.Equal(t, "250", merged.SummaryMetrics["total"].String())
	assert.Equal(t, "7", merged.SummaryMetrics["kept"].String())
	assert.ElementsMatch(t, []string{"monto", "tipo"}, merged.Traceability["facturas.xlsx"])
	assert.True(t, merged.Partial)

	assert.Same(t, next, Merge(nil, next))
	assert.Same(t, prior, Merge(prior, nil))
}
