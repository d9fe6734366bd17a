// internal/formatter/formatter.go
package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/models"
)

// Section headers of every answer, in fixed order.
const (
	headerSummary  = "## Resumen Ejecutivo"
	headerDetail   = "## Análisis Detallado"
	headerSources  = "## Fuentes de Datos Utilizadas"
	headerInsights = "## Hallazgos Clave"
)

// metricLabels maps internal metric keys to the labels shown to the user.
var metricLabels = map[string]string{
	"inflows":        "Entradas",
	"outflows":       "Salidas",
	"net_cash_flow":  "Flujo de caja neto",
	"total_expenses": "Gastos totales",
	"total_revenue":  "Ingresos totales",
	"total_amount":   "Monto total",
	"current_total":  "Total del periodo",
	"baseline_total": "Total del periodo anterior",
	"grand_total":    "Total general",
}

// Input carries everything the formatter needs for one answer.
type Input struct {
	Question  string
	Kind      models.AnalysisKind
	Result    *models.AnalysisResult
	Narrative string
	Selection *models.SourceSelection
}

// Formatter renders the final four-section answer. Every figure it prints
// comes from the analysis result; rounding here is presentation only.
type Formatter struct {
	log logger.Logger
}

// New creates a formatter.
func New(log logger.Logger) *Formatter {
	return &Formatter{log: log}
}

// Format assembles the answer text.
func (f *Formatter) Format(in Input) string {
	var b strings.Builder

	b.WriteString(headerSummary + "\n")
	b.WriteString(f.summary(in) + "\n\n")

	b.WriteString(headerDetail + "\n")
	f.writeDetail(&b, in.Result)

	b.WriteString(headerSources + "\n")
	f.writeSources(&b, in)

	b.WriteString(headerInsights + "\n")
	f.writeInsights(&b, in)

	return strings.TrimRight(b.String(), "\n")
}

// Summary returns the one-line digest stored in conversation memory.
func (f *Formatter) Summary(in Input) string {
	return f.summary(in)
}

func (f *Formatter) summary(in Input) string {
	if strings.TrimSpace(in.Narrative) != "" {
		return strings.TrimSpace(in.Narrative)
	}
	if in.Result == nil {
		return "No se pudo completar el análisis."
	}
	for _, key := range []string{"net_cash_flow", "total_expenses", "total_revenue", "current_total", "grand_total", "total_amount"} {
		if v, ok := in.Result.SummaryMetrics[key]; ok {
			return fmt.Sprintf("%s: %s MXN.", metricLabel(key), Money(v))
		}
	}
	return "Análisis completado."
}

func (f *Formatter) writeDetail(b *strings.Builder, result *models.AnalysisResult) {
	if result == nil {
		b.WriteString("Sin datos.\n\n")
		return
	}

	for _, key := range sortedKeys(result.SummaryMetrics) {
		if key == "rows_considered" {
			fmt.Fprintf(b, "- %s: %s\n", metricLabel(key), result.SummaryMetrics[key].String())
			continue
		}
		fmt.Fprintf(b, "- %s: %s MXN\n", metricLabel(key), Money(result.SummaryMetrics[key]))
	}

	for _, name := range sortedBreakdowns(result.Breakdowns) {
		fmt.Fprintf(b, "\n%s:\n", breakdownLabel(name))
		for i, entry := range result.Breakdowns[name] {
			fmt.Fprintf(b, "  %d. %s: %s MXN (%d movimientos)\n",
				i+1, entry.Label, Money(entry.Value), entry.Count)
		}
	}

	for _, name := range sortedComparisonKeys(result.Comparisons) {
		cmp := result.Comparisons[name]
		fmt.Fprintf(b, "\nComparación de periodos:\n")
		fmt.Fprintf(b, "  Periodo actual: %s MXN\n", Money(cmp.Current))
		fmt.Fprintf(b, "  Periodo anterior: %s MXN\n", Money(cmp.Baseline))
		fmt.Fprintf(b, "  Variación: %s MXN", Money(cmp.Delta))
		if cmp.DeltaPct != nil {
			fmt.Fprintf(b, " (%s)", Percent(*cmp.DeltaPct))
		} else {
			b.WriteString(" (sin periodo base comparable)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// writeSources renders the traceability map as source: columns lines, with
// sources that failed to load annotated instead of listed with columns.
func (f *Formatter) writeSources(b *strings.Builder, in Input) {
	switch {
	case in.Result != nil && len(in.Result.Traceability) > 0:
		for _, src := range sortedTraceKeys(in.Result.Traceability) {
			cols := in.Result.Traceability[src]
			if len(cols) > 0 && strings.HasPrefix(cols[0], models.LoadErrorPrefix) {
				fmt.Fprintf(b, "- %s: no disponible (%s)\n", src, strings.TrimPrefix(cols[0], models.LoadErrorPrefix))
				continue
			}
			sorted := append([]string(nil), cols...)
			sort.Strings(sorted)
			fmt.Fprintf(b, "- %s: %s\n", src, strings.Join(sorted, ", "))
		}
	case in.Selection != nil && len(in.Selection.Sources) > 0:
		for _, src := range in.Selection.Sources {
			fmt.Fprintf(b, "- %s\n", src)
		}
	default:
		b.WriteString("- Ninguna fuente disponible\n")
	}

	if in.Result != nil && in.Result.Partial {
		b.WriteString("\nNota: algunas fuentes no pudieron leerse; los resultados son parciales.\n")
	}
	b.WriteString("\n")
}

func (f *Formatter) writeInsights(b *strings.Builder, in Input) {
	var insights []string

	if in.Result != nil {
		if net, ok := in.Result.SummaryMetrics["net_cash_flow"]; ok {
			if net.IsNegative() {
				insights = append(insights, fmt.Sprintf("El flujo de caja es negativo (%s MXN): las salidas superan a las entradas.", Money(net)))
			} else {
				insights = append(insights, fmt.Sprintf("El flujo de caja es positivo (%s MXN).", Money(net)))
			}
		}
		for _, entries := range in.Result.Breakdowns {
			if len(entries) > 0 && entries[0].Label != models.OthersLabel {
				insights = append(insights, fmt.Sprintf("El concepto más grande es %s con %s MXN.", entries[0].Label, Money(entries[0].Value)))
				break
			}
		}
		for _, cmp := range in.Result.Comparisons {
			switch {
			case cmp.DeltaPct == nil:
				insights = append(insights, "No hay periodo anterior comparable.")
			case cmp.Delta.IsNegative():
				insights = append(insights, fmt.Sprintf("El total bajó %s respecto al periodo anterior.", Percent(-*cmp.DeltaPct)))
			default:
				insights = append(insights, fmt.Sprintf("El total subió %s respecto al periodo anterior.", Percent(*cmp.DeltaPct)))
			}
			break
		}
		if in.Result.Partial {
			insights = append(insights, "Revisa las fuentes no disponibles antes de tomar decisiones con estas cifras.")
		}
	}

	if len(insights) == 0 {
		insights = append(insights, "Los datos analizados no muestran señales destacables.")
	}
	for _, insight := range insights {
		fmt.Fprintf(b, "- %s\n", insight)
	}
}

// Money renders a decimal with two decimals and thousands separators.
func Money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + parts[1]
	if neg {
		return "-" + out
	}
	return out
}

// Percent renders a ratio change with one decimal.
func Percent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

func metricLabel(key string) string {
	if label, ok := metricLabels[key]; ok {
		return label
	}
	if key == "rows_considered" {
		return "Registros considerados"
	}
	return key
}

func breakdownLabel(name string) string {
	switch name {
	case "expenses_by_category":
		return "Gastos por categoría"
	case "revenue_by_client":
		return "Ingresos por cliente"
	case "ranking":
		return "Ranking por monto"
	case "by_tipo":
		return "Totales por tipo"
	}
	return name
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.Contains(k, ":") || strings.HasPrefix(k, "rows_excluded") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTraceKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBreakdowns(m map[string][]models.GroupEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedComparisonKeys(m map[string]models.Comparison) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
