// internal/models/record.go
package models

import "time"

// ConversationRecord archives one completed question/answer exchange.
// Records are never mutated; the ledger only appends or evicts them.
type ConversationRecord struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	AnswerSummary string          `json:"answerSummary"`
	Kind          AnalysisKind    `json:"kind"`
	Analysis      *AnalysisResult `json:"analysis,omitempty"`
	Clarification bool            `json:"clarification,omitempty"`
	Sources       []string        `json:"sources,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
