// internal/interpreter/interpreter.go
package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/models"
)

// ErrNeedsClarification signals that the question is too ambiguous to
// analyze. The workflow short-circuits on it instead of failing.
var ErrNeedsClarification = errors.New("NEEDS_CLARIFICATION")

// ClarificationError carries the follow-up question to show the user.
type ClarificationError struct {
	Question string
}

func (e *ClarificationError) Error() string {
	return fmt.Sprintf("NEEDS_CLARIFICATION: %s", e.Question)
}

func (e *ClarificationError) Unwrap() error { return ErrNeedsClarification }

// Completer is the model call surface the interpreter depends on.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Interpreter turns a free-text question into a structured one using the
// model, grounded on the source catalog and recent conversation context.
type Interpreter struct {
	client Completer
	log    logger.Logger
	now    func() time.Time
}

// New creates an interpreter backed by the given model client.
func New(client Completer, log logger.Logger) *Interpreter {
	return &Interpreter{client: client, log: log, now: time.Now}
}

const responseSchema = `{
	"type": "object",
	"required": ["kind"],
	"properties": {
		"kind": {"type": "string"},
		"window": {"type": "string"},
		"metrics": {"type": "array", "items": {"type": "string"}},
		"sources": {"type": "array", "items": {"type": "string"}},
		"needs_clarification": {"type": "boolean"},
		"clarification_question": {"type": "string"}
	}
}`

var responseSchemaLoader = gojsonschema.NewStringLoader(responseSchema)

type modelInterpretation struct {
	Kind                  string   `json:"kind"`
	Window                string   `json:"window"`
	Metrics               []string `json:"metrics"`
	Sources               []string `json:"sources"`
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarificationQuestion string   `json:"clarification_question"`
}

// Interpret parses the user's question. It returns ErrNeedsClarification
// (wrapped in a ClarificationError) when the question cannot be analyzed as
// asked, and degrades to a general analysis when the model is unavailable.
func (i *Interpreter) Interpret(ctx context.Context, question string, catalog []dataset.SourceInfo, history []models.ConversationRecord) (*models.StructuredQuestion, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &ClarificationError{Question: "¿Qué te gustaría saber sobre tus finanzas?"}
	}

	raw, err := i.client.Complete(ctx, systemPrompt(catalog), userPrompt(question, history))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Model unavailable: fall back to a general analysis over
		// everything rather than refusing the question.
		degraded := apperrors.NewInterpretationFailedError(err)
		i.log.Warn("Interpretation degraded to general analysis", map[string]interface{}{
			"errorCode": string(degraded.Code),
			"error":     degraded.Details,
		})
		return &models.StructuredQuestion{Kind: models.KindGeneral}, nil
	}

	parsed, err := i.parseResponse(raw)
	if err != nil {
		degraded := apperrors.NewInterpretationFailedError(err)
		i.log.Warn("Unparseable interpretation, degrading to general", map[string]interface{}{
			"errorCode": string(degraded.Code),
			"error":     degraded.Details,
		})
		return &models.StructuredQuestion{Kind: models.KindGeneral}, nil
	}

	if parsed.NeedsClarification {
		q := parsed.ClarificationQuestion
		if q == "" {
			q = "¿Puedes dar más detalle sobre qué periodo o métrica te interesa?"
		}
		return nil, &ClarificationError{Question: q}
	}

	sq := &models.StructuredQuestion{
		Kind:             models.AnalysisKind(parsed.Kind),
		Metrics:          parsed.Metrics,
		CandidateSources: parsed.Sources,
	}
	if !models.IsValidKind(parsed.Kind) {
		sq.Kind = models.KindGeneral
	}
	if w, ok := ParseWindow(parsed.Window, i.now()); ok {
		sq.Window = w
	}
	return sq, nil
}

func (i *Interpreter) parseResponse(raw string) (*modelInterpretation, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	trimmed = strings.TrimSpace(trimmed)

	result, err := gojsonschema.Validate(responseSchemaLoader, gojsonschema.NewStringLoader(trimmed))
	if err != nil {
		return nil, fmt.Errorf("validating interpretation: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("interpretation failed schema: %v", result.Errors())
	}

	var parsed modelInterpretation
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, fmt.Errorf("decoding interpretation: %w", err)
	}
	return &parsed, nil
}

func systemPrompt(catalog []dataset.SourceInfo) string {
	var b strings.Builder
	b.WriteString("Eres un intérprete de preguntas financieras. Clasifica la pregunta del usuario ")
	b.WriteString("y responde SOLO con un objeto JSON con los campos: kind, window, metrics, sources, ")
	b.WriteString("needs_clarification, clarification_question.\n\n")
	b.WriteString("Valores de kind: ")
	for idx, k := range models.KnownKinds {
		if idx > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(k))
	}
	b.WriteString(".\nwindow acepta: este_mes, mes_pasado, este_anio, anio_pasado, YYYY-MM, YYYY o YYYY-MM-DD:YYYY-MM-DD.\n")
	b.WriteString("\nFuentes disponibles:\n")
	for _, src := range catalog {
		b.WriteString(fmt.Sprintf("- %s (columnas: %s)\n", src.ID, strings.Join(src.Columns, ", ")))
	}
	b.WriteString("\nSi la pregunta es ambigua o no trata de finanzas, marca needs_clarification.")
	return b.String()
}

func userPrompt(question string, history []models.ConversationRecord) string {
	if len(history) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Contexto de conversación reciente:\n")
	for _, r := range history {
		b.WriteString(fmt.Sprintf("- P: %s | R: %s\n", r.Question, r.AnswerSummary))
	}
	b.WriteString("\nPregunta actual: ")
	b.WriteString(question)
	return b.String()
}
