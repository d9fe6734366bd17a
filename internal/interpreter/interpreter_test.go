// internal/interpreter/interpreter_test.go
package interpreter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/models"
)

type fakeCompleter struct {
	response string
	err      error
	lastUser string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (string, error) {
	f.lastUser = user
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

var testCatalog = []dataset.SourceInfo{
	{ID: "facturas.xlsx", Columns: []string{"cliente", "monto", "tipo", "fecha"}, Tags: []string{"invoices"}},
	{ID: "gastos_fijos.xlsx", Columns: []string{"rubro", "monto", "fecha"}, Tags: []string{"expenses"}},
}

func TestInterpretStructuredQuestion(t *testing.T) {
	client := &fakeCompleter{response: `{
		"kind": "expense_breakdown",
		"window": "2025-06",
		"metrics": ["gastos"],
		"sources": ["gastos_fijos.xlsx"]
	}`}
	i := New(client, logger.NewTestLogger(t))

	sq, err := i.Interpret(context.Background(), "cuanto gaste en junio?", testCatalog, nil)
	require.NoError(t, err)

	assert.Equal(t, models.KindExpenseBreakdown, sq.Kind)
	assert.Equal(t, []string{"gastos_fijos.xlsx"}, sq.CandidateSources)
	require.NotNil(t, sq.Window)
	assert.Equal(t, time.June, sq.Window.Start.Month())
	assert.Equal(t, 30, sq.Window.End.Day())
}

func TestInterpretClarification(t *testing.T) {
	client := &fakeCompleter{response: `{
		"kind": "general",
		"needs_clarification": true,
		"clarification_question": "¿Qué periodo te interesa?"
	}`}
	i := New(client, logger.NewTestLogger(t))

	_, err := i.Interpret(context.Background(), "y eso?", testCatalog, nil)
	require.ErrorIs(t, err, ErrNeedsClarification)

	var clarErr *ClarificationError
	require.ErrorAs(t, err, &clarErr)
	assert.Equal(t, "¿Qué periodo te interesa?", clarErr.Question)
}

func TestInterpretEmptyQuestion(t *testing.T) {
	i := New(&fakeCompleter{}, logger.NewTestLogger(t))
	_, err := i.Interpret(context.Background(), "   ", testCatalog, nil)
	assert.ErrorIs(t, err, ErrNeedsClarification)
}

func TestInterpretDegradesOnModelFailure(t *testing.T) {
	client := &fakeCompleter{err: errors.New("LLM_TIMEOUT")}
	i := New(client, logger.NewTestLogger(t))

	sq, err := i.Interpret(context.Background(), "como va el negocio?", testCatalog, nil)
	require.NoError(t, err)
	assert.Equal(t, models.KindGeneral, sq.Kind)
}

func TestInterpretUnknownKindFallsBack(t *testing.T) {
	client := &fakeCompleter{response: `{"kind": "astrology"}`}
	i := New(client, logger.NewTestLogger(t))

	sq, err := i.Interpret(context.Background(), "pregunta rara", testCatalog, nil)
	require.NoError(t, err)
	assert.Equal(t, models.KindGeneral, sq.Kind)
}

func TestInterpretIncludesHistoryInPrompt(t *testing.T) {
	client := &fakeCompleter{response: `{"kind": "cash_flow"}`}
	i := New(client, logger.NewTestLogger(t))

	history := []models.ConversationRecord{
		{Question: "cuanto facturé?", AnswerSummary: "Total facturado: 45,000 MXN"},
	}
	_, err := i.Interpret(context.Background(), "y el flujo?", testCatalog, history)
	require.NoError(t, err)
	assert.Contains(t, client.lastUser, "cuanto facturé?")
	assert.Contains(t, client.lastUser, "y el flujo?")
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token string
		ok    bool
		start string
		end   string
	}{
		{"this month", "este_mes", true, "2025-07-01", "2025-07-31"},
		{"last month", "mes_pasado", true, "2025-06-01", "2025-06-30"},
		{"absolute month", "2025-02", true, "2025-02-01", "2025-02-28"},
		{"absolute year", "2024", true, "2024-01-01", "2024-12-31"},
		{"explicit range", "2025-01-10:2025-01-20", true, "2025-01-10", "2025-01-20"},
		{"inverted range", "2025-01-20:2025-01-10", false, "", ""},
		{"garbage", "mañana", false, "", ""},
		{"empty", "", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := ParseWindow(tt.token, now)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.start, w.Start.Format("2006-01-02"))
				assert.Equal(t, tt.end, w.End.Format("2006-01-02"))
			}
		})
	}
}

func TestPreviousWindow(t *testing.T) {
	w := models.TimeWindow{
		Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	prev := w.Previous()
	assert.Equal(t, "2025-02-01", prev.Start.Format("2006-01-02"))
	assert.Equal(t, "2025-02-28", prev.End.Format("2006-01-02"))
}
