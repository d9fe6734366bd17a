// internal/llm/client_test.go
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
)

func chatReply(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestClient(t *testing.T, baseURL string, retries int) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "gpt-4o-mini",
		Timeout:    2 * time.Second,
		MaxRetries: retries,
	}, logger.NewTestLogger(t))
}

func TestClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatReply("El flujo de caja neto es positivo.")))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	content, err := client.Complete(context.Background(), "eres un analista", "cual es el flujo de caja?")
	require.NoError(t, err)
	assert.Equal(t, "El flujo de caja neto es positivo.", content)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(chatReply("ok")))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	content, err := client.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
	assert.Equal(t, 2, calls)
}

func TestClientExhaustsRetryBudget(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	_, err := client.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, apperrors.ErrCodeLLMTimeout, apperrors.Normalize(err).Code)
	assert.Equal(t, 2, calls)
}

func TestClientDoesNotRetryInvalidResponse(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	_, err := client.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, 1, calls)
}

func TestClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(chatReply("late")))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := newTestClient(t, server.URL, 0)
	_, err := client.Complete(ctx, "s", "u")
	assert.Error(t, err)
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected DirectiveAction
	}{
		{"plain prose is an answer", "El total de gastos fue 12,950.75 MXN.", ActionAnswer},
		{"answer directive", `{"action":"answer","text":"listo"}`, ActionAnswer},
		{"re-analysis request", `{"action":"request_more_analysis","metric":"gastos","window":"2025-05"}`, ActionRequestAnalysis},
		{"clarify", `{"action":"clarify","question":"que periodo?"}`, ActionClarify},
		{"unknown action falls back to answer", `{"action":"explode"}`, ActionAnswer},
		{"invalid json falls back to answer", `{"action":`, ActionAnswer},
		{"re-analysis without metric falls back", `{"action":"request_more_analysis"}`, ActionAnswer},
		{"fenced json", "```json\n{\"action\":\"clarify\",\"question\":\"cual mes?\"}\n```", ActionClarify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ParseDirective(tt.raw)
			assert.Equal(t, tt.expected, d.Action)
		})
	}

	d := ParseDirective(`{"action":"request_more_analysis","metric":"ingresos","window":"2025-06"}`)
	assert.Equal(t, "ingresos", d.Metric)
	assert.Equal(t, "2025-06", d.Window)
}
