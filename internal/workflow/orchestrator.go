// internal/workflow/orchestrator.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victor045/Agente-financiero/internal/analyzer"
	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/common/metrics"
	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/formatter"
	"github.com/victor045/Agente-financiero/internal/interpreter"
	"github.com/victor045/Agente-financiero/internal/llm"
	"github.com/victor045/Agente-financiero/internal/memory"
	"github.com/victor045/Agente-financiero/internal/models"
)

// Stage names, used for logging and metrics labels.
const (
	StageInterpreting = "interpreting"
	StageSelecting    = "selecting"
	StageAnalyzing    = "analyzing"
	StageElaborating  = "elaborating"
	StageFormatting   = "formatting"
)

// DefaultFeedbackCap bounds how many re-analysis passes one question may
// trigger before the answer goes out with what it has.
const DefaultFeedbackCap = 2

// Interpreter parses free-text questions.
type Interpreter interface {
	Interpret(ctx context.Context, question string, catalog []dataset.SourceInfo, history []models.ConversationRecord) (*models.StructuredQuestion, error)
}

// Selector picks data sources for a structured question.
type Selector interface {
	Select(q *models.StructuredQuestion, catalog []dataset.SourceInfo, history []models.ConversationRecord) (*models.SourceSelection, error)
}

// Analyzer computes aggregates over loaded tables.
type Analyzer interface {
	Analyze(ctx context.Context, q *models.StructuredQuestion, selection *models.SourceSelection, tables map[string]*dataset.Table, loadErrs map[string]error) (*models.AnalysisResult, error)
}

// Loader discovers and reads data sources.
type Loader interface {
	Catalog(ctx context.Context) ([]dataset.SourceInfo, error)
	Load(ctx context.Context, sourceID string) (*dataset.Table, error)
}

// Completer is the model call used by the elaboration stage.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config tunes the orchestrator.
type Config struct {
	FeedbackCap       int
	ContextWindow     int
	EnableElaboration bool
}

// Answer is the final output of one question pass.
type Answer struct {
	Text          string
	Clarification bool
	Record        models.ConversationRecord
}

// Orchestrator drives a question through interpret, select, analyze,
// elaborate and format, then records the turn in conversation memory.
// A run that is cancelled mid-flight leaves no trace in the ledger.
type Orchestrator struct {
	interpreter Interpreter
	selector    Selector
	analyzer    Analyzer
	loader      Loader
	model       Completer
	formatter   *formatter.Formatter
	ledger      *memory.Ledger
	config      Config
	log         logger.Logger
}

// New wires an orchestrator from its collaborators.
func New(i Interpreter, s Selector, a Analyzer, l Loader, model Completer, f *formatter.Formatter, ledger *memory.Ledger, cfg Config, log logger.Logger) *Orchestrator {
	if cfg.FeedbackCap <= 0 {
		cfg.FeedbackCap = DefaultFeedbackCap
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 3
	}
	return &Orchestrator{
		interpreter: i,
		selector:    s,
		analyzer:    a,
		loader:      l,
		model:       model,
		formatter:   f,
		ledger:      ledger,
		config:      cfg,
		log:         log,
	}
}

// Ask answers one question end to end.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*Answer, error) {
	requestID := uuid.New().String()
	log := o.log.WithFields(map[string]interface{}{"requestId": requestID})

	catalog, err := o.loader.Catalog(ctx)
	if err != nil {
		metrics.QuestionsProcessed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("cataloging sources: %w", err)
	}
	history := o.ledger.ContextWindow(o.config.ContextWindow)

	// Interpreting
	sq, err := o.timedInterpret(ctx, question, catalog, history)
	if err != nil {
		var clarErr *interpreter.ClarificationError
		if errors.As(err, &clarErr) {
			return o.clarify(requestID, question, clarErr.Question), nil
		}
		metrics.StageFailures.WithLabelValues(StageInterpreting, errorCode(err)).Inc()
		metrics.QuestionsProcessed.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Selecting
	start := time.Now()
	selection, err := o.selector.Select(sq, catalog, history)
	metrics.StageDuration.WithLabelValues(StageSelecting).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StageFailures.WithLabelValues(StageSelecting, errorCode(err)).Inc()
		if apperrors.Normalize(err).Code == apperrors.ErrCodeSelectionFailed {
			log.Warn("No usable data sources, answering with insufficient data", map[string]interface{}{
				"error": err.Error(),
			})
			return o.insufficientData(requestID, question), nil
		}
		metrics.QuestionsProcessed.WithLabelValues("error").Inc()
		return nil, err
	}

	// Analyzing
	result, err := o.analyze(ctx, sq, selection)
	if err != nil {
		metrics.StageFailures.WithLabelValues(StageAnalyzing, errorCode(err)).Inc()
		metrics.QuestionsProcessed.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Elaborating, with a bounded re-analysis loop
	narrative, result, clarQ, err := o.elaborate(ctx, question, sq, selection, result, history)
	if err != nil {
		return nil, err
	}
	if clarQ != "" {
		return o.clarify(requestID, question, clarQ), nil
	}

	// Formatting
	start = time.Now()
	in := formatter.Input{
		Question:  question,
		Kind:      sq.Kind,
		Result:    result,
		Narrative: narrative,
		Selection: selection,
	}
	text := o.formatter.Format(in)
	metrics.StageDuration.WithLabelValues(StageFormatting).Observe(time.Since(start).Seconds())

	record := o.ledger.Append(models.ConversationRecord{
		ID:            requestID,
		Question:      question,
		AnswerSummary: o.formatter.Summary(in),
		Kind:          sq.Kind,
		Analysis:      result,
		Sources:       selection.Sources,
	})

	outcome := "success"
	if result.Partial {
		outcome = "partial"
	}
	metrics.QuestionsProcessed.WithLabelValues(outcome).Inc()

	log.Info("Question answered", map[string]interface{}{
		"kind":    string(sq.Kind),
		"sources": selection.Sources,
		"partial": result.Partial,
	})
	return &Answer{Text: text, Record: record}, nil
}

func (o *Orchestrator) timedInterpret(ctx context.Context, question string, catalog []dataset.SourceInfo, history []models.ConversationRecord) (*models.StructuredQuestion, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageInterpreting).Observe(time.Since(start).Seconds())
	}()
	return o.interpreter.Interpret(ctx, question, catalog, history)
}

// analyze loads the selected tables and runs one analysis pass. Sources
// that fail to load degrade the result instead of failing it, unless none
// load at all.
func (o *Orchestrator) analyze(ctx context.Context, sq *models.StructuredQuestion, selection *models.SourceSelection) (*models.AnalysisResult, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageAnalyzing).Observe(time.Since(start).Seconds())
	}()

	tables := make(map[string]*dataset.Table, len(selection.Sources))
	loadErrs := make(map[string]error)
	for _, source := range selection.Sources {
		table, err := o.loader.Load(ctx, source)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.log.Warn("Source failed to load", map[string]interface{}{
				"source": source,
				"error":  err.Error(),
			})
			loadErrs[source] = err
			continue
		}
		tables[source] = table
	}
	return o.analyzer.Analyze(ctx, sq, selection, tables, loadErrs)
}

// elaborate asks the model to narrate the numbers. The model may come back
// asking for more analysis; each such directive triggers a re-analysis pass
// whose result merges over the previous one, up to the feedback cap. Hitting
// the cap marks the answer partial rather than looping further.
func (o *Orchestrator) elaborate(ctx context.Context, question string, sq *models.StructuredQuestion, selection *models.SourceSelection, result *models.AnalysisResult, history []models.ConversationRecord) (string, *models.AnalysisResult, string, error) {
	if !o.config.EnableElaboration || o.model == nil {
		return "", result, "", nil
	}

	current := *sq
	for pass := 0; ; pass++ {
		start := time.Now()
		raw, err := o.model.Complete(ctx, elaborationSystemPrompt, elaborationUserPrompt(question, result, history))
		metrics.StageDuration.WithLabelValues(StageElaborating).Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, "", ctx.Err()
			}
			// The numbers stand on their own; narration is optional.
			metrics.StageFailures.WithLabelValues(StageElaborating, errorCode(err)).Inc()
			o.log.Warn("Elaboration unavailable", map[string]interface{}{"error": err.Error()})
			return "", result, "", nil
		}

		directive := llm.ParseDirective(raw)
		switch directive.Action {
		case llm.ActionClarify:
			return "", result, directive.Question, nil
		case llm.ActionRequestAnalysis:
			if pass >= o.config.FeedbackCap {
				capErr := apperrors.NewRetryBudgetExceededError(o.config.FeedbackCap)
				metrics.StageFailures.WithLabelValues(StageElaborating, string(capErr.Code)).Inc()
				o.log.Warn("Feedback cap reached, answering with current results", map[string]interface{}{
					"cap":   o.config.FeedbackCap,
					"error": capErr.Error(),
				})
				result.Partial = true
				return directive.Text, result, "", nil
			}
			metrics.FeedbackReanalyses.Inc()

			window := current.Window
			if w, ok := interpreter.ParseWindow(directive.Window, time.Now()); ok {
				window = w
			}
			current = current.WithRefinement(directive.Metric, window)

			next, err := o.analyze(ctx, &current, selection)
			if err != nil {
				if ctx.Err() != nil {
					return "", nil, "", ctx.Err()
				}
				metrics.StageFailures.WithLabelValues(StageAnalyzing, errorCode(err)).Inc()
				o.log.Warn("Re-analysis failed, keeping prior results", map[string]interface{}{
					"error": err.Error(),
				})
				return "", result, "", nil
			}
			result = analyzer.Merge(result, next)
		default:
			return directive.Text, result, "", nil
		}
	}
}

// insufficientData closes the pass with a user-visible answer when no data
// source can serve the question. The turn is still recorded.
func (o *Orchestrator) insufficientData(requestID, question string) *Answer {
	text := "No hay datos suficientes para responder. No se encontró ninguna fuente de datos utilizable; " +
		"agrega archivos de facturas, gastos o estados de cuenta al directorio de datos e intenta de nuevo."
	record := o.ledger.Append(models.ConversationRecord{
		ID:            requestID,
		Question:      question,
		AnswerSummary: text,
		Kind:          models.KindGeneral,
	})
	metrics.QuestionsProcessed.WithLabelValues("insufficient_data").Inc()
	return &Answer{Text: text, Record: record}
}

func (o *Orchestrator) clarify(requestID, question, clarification string) *Answer {
	record := o.ledger.Append(models.ConversationRecord{
		ID:            requestID,
		Question:      question,
		AnswerSummary: clarification,
		Kind:          models.KindGeneral,
		Clarification: true,
	})
	metrics.QuestionsProcessed.WithLabelValues("clarification").Inc()
	return &Answer{Text: clarification, Clarification: true, Record: record}
}

func errorCode(err error) string {
	return string(apperrors.Normalize(err).Code)
}

const elaborationSystemPrompt = `Eres un analista financiero. Recibes los resultados numéricos de un análisis y la pregunta original del usuario.
Responde con un objeto JSON:
- {"action":"answer","text":"..."} con un resumen ejecutivo breve en español.
- {"action":"request_more_analysis","metric":"...","window":"..."} si necesitas una métrica o periodo adicional para responder bien.
- {"action":"clarify","question":"..."} si la pregunta no puede responderse con estos datos.
Nunca inventes cifras: usa solo los números proporcionados.`

func elaborationUserPrompt(question string, result *models.AnalysisResult, history []models.ConversationRecord) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversación reciente:\n")
		for _, r := range history {
			fmt.Fprintf(&b, "- P: %s | R: %s\n", r.Question, r.AnswerSummary)
		}
		b.WriteString("\n")
	}
	b.WriteString("Pregunta: ")
	b.WriteString(question)
	b.WriteString("\n\nResultados:\n")
	for _, k := range sortedMetricKeys(result) {
		fmt.Fprintf(&b, "- %s = %s\n", k, result.SummaryMetrics[k].String())
	}
	for name, entries := range result.Breakdowns {
		fmt.Fprintf(&b, "- %s:\n", name)
		for _, e := range entries {
			fmt.Fprintf(&b, "    %s = %s (%d)\n", e.Label, e.Value.String(), e.Count)
		}
	}
	for name, cmp := range result.Comparisons {
		fmt.Fprintf(&b, "- %s: actual=%s anterior=%s delta=%s\n", name, cmp.Current, cmp.Baseline, cmp.Delta)
	}
	if result.Partial {
		b.WriteString("\nAdvertencia: resultados parciales, algunas fuentes no cargaron.\n")
	}
	return b.String()
}

func sortedMetricKeys(result *models.AnalysisResult) []string {
	keys := make([]string, 0, len(result.SummaryMetrics))
	for k := range result.SummaryMetrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
