// Package audit records significant pipeline occurrences.
package audit

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"
)

const (
	// CategoryPipeline marks run lifecycle events (started, completed, failed).
	CategoryPipeline = "etl_pipeline"
	// CategoryETL marks stage events such as loader query logs and notifications.
	CategoryETL = "etl"
)

// Auditor is fire-and-forget: implementations handle their own transport
// errors and never fail the caller.
type Auditor interface {
	Audit(ctx context.Context, category, message string, data map[string]any)
}

// Event is the stored shape of one audit call.
type Event struct {
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Void struct{}

func (Void) Audit(context.Context, string, string, map[string]any) {}

// Log writes audit events to slog.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Audit(ctx context.Context, category, message string, data map[string]any) {
	attrs := []any{"category", category}
	if len(data) > 0 {
		attrs = append(attrs, "data", data)
	}
	l.logger.InfoContext(ctx, message, attrs...)
}

// Multi fans an event out to several auditors.
type Multi []Auditor

func (m Multi) Audit(ctx context.Context, category, message string, data map[string]any) {
	for _, a := range m {
		a.Audit(ctx, category, message, data)
	}
}

// Memory keeps events in memory, for tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Audit(_ context.Context, category, message string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{
		Category:  category,
		Message:   message,
		Data:      maps.Clone(data),
		CreatedAt: time.Now(),
	})
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByCategory returns the events recorded under category.
func (m *Memory) ByCategory(category string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}
