// Package ecoguardian - message.go
// The A2A message bus: typed messages, a per-run append-only log, cursor
// subscriptions and replayable history.

package ecoguardian

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MessageType identifies the kind of message exchanged between agents.
type MessageType string

const (
	MsgDataReady       MessageType = "data_ready"
	MsgPredictionReady MessageType = "prediction_ready"
	MsgDeployComplete  MessageType = "deploy_complete"
	MsgReadingUpdate   MessageType = "reading_update"
	MsgBranchFailed    MessageType = "branch_failed"
)

// Broadcast as a receiver delivers the message to every subscriber of the run.
const Broadcast = "*"

// AgentMessage is the unit of communication on the bus. Immutable once
// published; the bus owns the canonical copy for the lifetime of a run.
type AgentMessage struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewAgentMessage builds a message with a marshalled payload. The bus assigns
// ID, sequence number and timestamp on publish.
func NewAgentMessage(sender, receiver string, t MessageType, payload any) (*AgentMessage, error) {
	if sender == "" {
		return nil, &ValidationError{Field: "sender", Reason: "empty"}
	}
	if receiver == "" {
		return nil, &ValidationError{Field: "receiver", Reason: "empty"}
	}
	if t == "" {
		return nil, &ValidationError{Field: "type", Reason: "empty"}
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &ValidationError{Field: "payload", Reason: err.Error()}
		}
		raw = data
	}
	return &AgentMessage{
		Sender:   sender,
		Receiver: receiver,
		Type:     t,
		Payload:  raw,
	}, nil
}

// Bus is the in-process A2A layer. Each workflow run gets its own append-only
// log with a single global sequence, so subscribers observe messages in exact
// publish order.
type Bus struct {
	mu     sync.RWMutex
	runs   map[string][]*AgentMessage
	seq    map[string]uint64
	sink   Sink
	logger *slog.Logger
}

func NewBus(sink Sink, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		runs:   make(map[string][]*AgentMessage),
		seq:    make(map[string]uint64),
		sink:   sinkOrDefault(sink),
		logger: logger,
	}
}

// Publish appends the message to the run's log and returns its assigned ID.
// The publish itself is an observability event; the payload is not exposed.
func (b *Bus) Publish(runID string, msg *AgentMessage) (string, error) {
	if runID == "" {
		return "", &ValidationError{Field: "run_id", Reason: "empty"}
	}
	if msg == nil {
		return "", &ValidationError{Field: "message", Reason: "nil"}
	}
	if msg.Sender == "" || msg.Receiver == "" || msg.Type == "" {
		return "", &ValidationError{Field: "message", Reason: "sender, receiver and type are required"}
	}

	stored := *msg
	stored.ID = gonanoid.Must()
	stored.RunID = runID
	stored.Timestamp = time.Now()

	b.mu.Lock()
	b.seq[runID]++
	stored.Seq = b.seq[runID]
	b.runs[runID] = append(b.runs[runID], &stored)
	b.mu.Unlock()

	emit(b.sink, EventBus, runID, map[string]any{
		"message_id": stored.ID,
		"sender":     stored.Sender,
		"receiver":   stored.Receiver,
		"type":       string(stored.Type),
		"seq":        stored.Seq,
	})
	return stored.ID, nil
}

// History returns the run's full message log in publish order.
func (b *Bus) History(runID string) []*AgentMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	log := b.runs[runID]
	out := make([]*AgentMessage, len(log))
	copy(out, log)
	return out
}

// Reset drops the log for a run. A new run always starts empty; Reset exists
// for hosts that reuse run identifiers.
func (b *Bus) Reset(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.runs, runID)
	delete(b.seq, runID)
}

// Subscribe returns a cursor over the run's log for the given receiver.
// Messages addressed to the receiver or to Broadcast match; an empty type
// filter matches every type. Each subscription delivers a message at most
// once; replay requires History or a fresh subscription.
func (b *Bus) Subscribe(runID, receiver string, types ...MessageType) *Subscription {
	filter := make(map[MessageType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	return &Subscription{
		bus:      b,
		runID:    runID,
		receiver: receiver,
		filter:   filter,
	}
}

// Subscription is a per-subscriber cursor into a run's log.
type Subscription struct {
	bus      *Bus
	runID    string
	receiver string
	filter   map[MessageType]bool
	cursor   int
}

// Next returns the next undelivered matching message, or false when the
// cursor has reached the end of the log.
func (s *Subscription) Next() (*AgentMessage, bool) {
	s.bus.mu.RLock()
	log := s.bus.runs[s.runID]
	s.bus.mu.RUnlock()

	for s.cursor < len(log) {
		msg := log[s.cursor]
		s.cursor++
		if msg.Receiver != s.receiver && msg.Receiver != Broadcast {
			continue
		}
		if len(s.filter) > 0 && !s.filter[msg.Type] {
			continue
		}
		return msg, true
	}
	return nil, false
}
