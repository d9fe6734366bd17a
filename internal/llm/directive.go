// internal/llm/directive.go
package llm

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// DirectiveAction enumerates what the elaboration step may request.
type DirectiveAction string

const (
	ActionAnswer          DirectiveAction = "answer"
	ActionRequestAnalysis DirectiveAction = "request_more_analysis"
	ActionClarify         DirectiveAction = "clarify"
)

// Directive is the structured control signal embedded in an elaboration
// response. Anything that fails validation collapses to ActionAnswer so a
// malformed model reply can never drive the workflow.
type Directive struct {
	Action   DirectiveAction `json:"action"`
	Metric   string          `json:"metric,omitempty"`
	Window   string          `json:"window,omitempty"`
	Question string          `json:"question,omitempty"`
	Text     string          `json:"text,omitempty"`
}

const directiveSchema = `{
	"type": "object",
	"required": ["action"],
	"properties": {
		"action": {"type": "string", "enum": ["answer", "request_more_analysis", "clarify"]},
		"metric": {"type": "string"},
		"window": {"type": "string"},
		"question": {"type": "string"},
		"text": {"type": "string"}
	}
}`

var directiveSchemaLoader = gojsonschema.NewStringLoader(directiveSchema)

// ParseDirective extracts a control directive from raw model output. The
// model is asked to reply with a JSON object; plain prose or invalid JSON is
// treated as a final answer carrying the raw text.
func ParseDirective(raw string) Directive {
	trimmed := strings.TrimSpace(stripFences(raw))

	if !strings.HasPrefix(trimmed, "{") {
		return Directive{Action: ActionAnswer, Text: trimmed}
	}

	result, err := gojsonschema.Validate(directiveSchemaLoader, gojsonschema.NewStringLoader(trimmed))
	if err != nil || !result.Valid() {
		return Directive{Action: ActionAnswer, Text: trimmed}
	}

	var d Directive
	if err := json.Unmarshal([]byte(trimmed), &d); err != nil {
		return Directive{Action: ActionAnswer, Text: trimmed}
	}

	if d.Action == ActionRequestAnalysis && d.Metric == "" {
		// A re-analysis request without a metric carries no signal.
		return Directive{Action: ActionAnswer, Text: d.Text}
	}
	return d
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
