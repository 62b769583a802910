package ecoguardian

import (
	"log/slog"
	"sync"
	"time"
)

// Event categories emitted through the observability sink.
const (
	EventMemory     = "memory"
	EventBus        = "bus"
	EventWorkflow   = "workflow"
	EventEvaluation = "evaluation"
)

// Event is a structured observability record. Every bank operation, bus
// publish, workflow stage transition and evaluation result produces one.
// Payload values are never included; only keys and metadata.
type Event struct {
	Category  string         `json:"category"`
	EntityID  string         `json:"entity_id"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives observability events. Implementations must not block for long;
// the core emits synchronously to preserve ordering.
type Sink interface {
	Emit(event Event)
}

// SlogSink forwards events to a slog logger.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(event Event) {
	attrs := make([]any, 0, 2+2*len(event.Fields))
	attrs = append(attrs, "entity", event.EntityID)
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}
	s.logger.Info(event.Category, attrs...)
}

// RecordingSink collects events in memory. Used by tests and by hosts that
// want to inspect a run after the fact.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything emitted so far, in emission order.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByCategory filters recorded events.
func (s *RecordingSink) ByCategory(category string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

func sinkOrDefault(sink Sink) Sink {
	if sink == nil {
		return NewSlogSink(slog.Default())
	}
	return sink
}

func emit(sink Sink, category, entityID string, fields map[string]any) {
	sink.Emit(Event{
		Category:  category,
		EntityID:  entityID,
		Fields:    fields,
		Timestamp: time.Now(),
	})
}
