// internal/selector/selector_test.go
package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/models"
)

var catalog = []dataset.SourceInfo{
	{
		ID:      "facturas.xlsx",
		Columns: []string{"cliente", "monto", "tipo", "fecha"},
		Tags:    []string{"invoices", "monetary"},
	},
	{
		ID:      "gastos_fijos.xlsx",
		Columns: []string{"rubro", "monto", "fecha"},
		Tags:    []string{"expenses", "monetary"},
	},
	{
		ID:      "estado_cuenta.xlsx",
		Columns: []string{"descripcion", "monto", "saldo", "fecha"},
		Tags:    []string{"bank", "monetary"},
	},
}

func TestSelectByKind(t *testing.T) {
	s := New(logger.NewTestLogger(t))

	tests := []struct {
		name     string
		kind     models.AnalysisKind
		contains string
	}{
		{"expenses pick the expense ledger", models.KindExpenseBreakdown, "gastos_fijos.xlsx"},
		{"revenue picks invoices", models.KindRevenueByClient, "facturas.xlsx"},
		{"cash flow picks the bank statement", models.KindCashFlow, "estado_cuenta.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := s.Select(&models.StructuredQuestion{Kind: tt.kind}, catalog, nil)
			require.NoError(t, err)
			assert.Contains(t, sel.Sources, tt.contains)
			assert.NotEmpty(t, sel.Rationale)
		})
	}
}

func TestSelectKeepsNamedSources(t *testing.T) {
	s := New(logger.NewTestLogger(t))
	q := &models.StructuredQuestion{
		Kind:             models.KindExpenseBreakdown,
		CandidateSources: []string{"facturas.xlsx"},
	}

	sel, err := s.Select(q, catalog, nil)
	require.NoError(t, err)
	assert.True(t, sel.HasSource("facturas.xlsx"))
}

func TestSelectIgnoresUnknownNamedSource(t *testing.T) {
	s := New(logger.NewTestLogger(t))
	q := &models.StructuredQuestion{
		Kind:             models.KindExpenseBreakdown,
		CandidateSources: []string{"no_existe.xlsx"},
	}

	sel, err := s.Select(q, catalog, nil)
	require.NoError(t, err)
	assert.False(t, sel.HasSource("no_existe.xlsx"))
	assert.NotEmpty(t, sel.Sources)
}

func TestSelectGeneralReadsEverything(t *testing.T) {
	s := New(logger.NewTestLogger(t))
	sel, err := s.Select(&models.StructuredQuestion{Kind: models.KindGeneral}, catalog, nil)
	require.NoError(t, err)
	assert.Len(t, sel.Sources, 3)
}

func TestSelectEmptyCatalog(t *testing.T) {
	s := New(logger.NewTestLogger(t))
	_, err := s.Select(&models.StructuredQuestion{Kind: models.KindGeneral}, nil, nil)
	assert.ErrorIs(t, err, ErrNoSources)
	assert.Equal(t, apperrors.ErrCodeSelectionFailed, apperrors.Normalize(err).Code)
}

func TestSelectPriorUsageBonus(t *testing.T) {
	// With history pointing at the bank statement, a near-tie resolves
	// toward the previously used source. Only records from the same
	// analysis kind count.
	scorer := &KeywordScorer{}
	q := &models.StructuredQuestion{Kind: models.KindPeriodComparison}

	sameKind := []models.ConversationRecord{
		{Question: "saldo?", Kind: models.KindPeriodComparison, Sources: []string{"estado_cuenta.xlsx"}},
	}
	otherKind := []models.ConversationRecord{
		{Question: "gastos?", Kind: models.KindExpenseBreakdown, Sources: []string{"estado_cuenta.xlsx"}},
	}

	without := scorer.Score(q, catalog[2], nil)
	assert.Greater(t, scorer.Score(q, catalog[2], sameKind), without)
	assert.Equal(t, without, scorer.Score(q, catalog[2], otherKind))
}

func TestRelevantColumns(t *testing.T) {
	cols := relevantColumns(models.KindExpenseBreakdown, catalog[1])
	assert.ElementsMatch(t, []string{"rubro", "monto", "fecha"}, cols)

	cols = relevantColumns(models.KindRevenueByClient, catalog[0])
	assert.ElementsMatch(t, []string{"cliente", "monto", "tipo", "fecha"}, cols)

	// General keeps the full schema.
	cols = relevantColumns(models.KindGeneral, catalog[2])
	assert.Equal(t, catalog[2].Columns, cols)
}
