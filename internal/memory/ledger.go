// internal/memory/ledger.go
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victor045/Agente-financiero/internal/common/metrics"
	"github.com/victor045/Agente-financiero/internal/models"
)

// DefaultCapacity bounds the ledger when no explicit capacity is configured.
const DefaultCapacity = 10

// Ledger is a bounded, ordered record of past conversation turns. When full,
// appending evicts the oldest record in the same operation.
type Ledger struct {
	mu       sync.RWMutex
	capacity int
	records  []models.ConversationRecord
}

// Stats summarizes ledger state without exposing the records themselves.
type Stats struct {
	Size           int            `json:"size"`
	Capacity       int            `json:"capacity"`
	Clarifications int            `json:"clarifications"`
	Kinds          map[string]int `json:"kinds,omitempty"`
	TopKind        string         `json:"topKind,omitempty"`
	OldestAt       time.Time      `json:"oldestAt,omitempty"`
	NewestAt       time.Time      `json:"newestAt,omitempty"`
}

// ExportedTurn is one question/answer pair in an export.
type ExportedTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NewLedger creates a ledger holding at most capacity records.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		capacity: capacity,
		records:  make([]models.ConversationRecord, 0, capacity),
	}
}

// Append adds a record, evicting the oldest one if the ledger is full. The
// record gets an ID and timestamp if the caller did not set them.
func (l *Ledger) Append(record models.ConversationRecord) models.ConversationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	if len(l.records) >= l.capacity {
		l.records = l.records[1:]
	}
	l.records = append(l.records, record)
	metrics.LedgerSize.Set(float64(len(l.records)))
	return record
}

// ContextWindow returns the most recent k records, oldest first. Fewer than
// k records returns them all.
func (l *Ledger) ContextWindow(k int) []models.ConversationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if k <= 0 {
		return nil
	}
	start := len(l.records) - k
	if start < 0 {
		start = 0
	}
	out := make([]models.ConversationRecord, len(l.records)-start)
	copy(out, l.records[start:])
	return out
}

// Size returns the current record count.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear removes every record.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = l.records[:0]
	metrics.LedgerSize.Set(0)
}

// Export returns every retained turn as question/answer pairs, oldest first.
func (l *Ledger) Export() []ExportedTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	turns := make([]ExportedTurn, len(l.records))
	for i, r := range l.records {
		turns[i] = ExportedTurn{Question: r.Question, Answer: r.AnswerSummary}
	}
	return turns
}

// GetStats reports ledger occupancy and the retained time range.
func (l *Ledger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{Size: len(l.records), Capacity: l.capacity, Kinds: make(map[string]int)}
	for _, r := range l.records {
		if r.Clarification {
			stats.Clarifications++
			continue
		}
		stats.Kinds[string(r.Kind)]++
		if stats.Kinds[string(r.Kind)] > stats.Kinds[stats.TopKind] {
			stats.TopKind = string(r.Kind)
		}
	}
	if len(l.records) > 0 {
		stats.OldestAt = l.records[0].Timestamp
		stats.NewestAt = l.records[len(l.records)-1].Timestamp
	}
	return stats
}
