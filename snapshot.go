// Package ecoguardian - snapshot.go
// Export/import for the bank and the bus log. Round-tripping a snapshot
// reproduces the source exactly, except that the export itself counts as a
// read and refreshes last_accessed_at.

package ecoguardian

import (
	"encoding/json"
	"os"
	"sort"
	"time"
)

// BankSnapshot is the serializable form of a MemoryBank.
type BankSnapshot struct {
	ExportedAt string        `json:"exported_at"`
	Entries    []MemoryEntry `json:"entries"`
}

// Export snapshots every entry, ordered by key. The read stamps
// last_accessed_at on the live entries (but does not bump access counts), so
// the snapshot and the live bank stay identical after the export.
func (b *MemoryBank) Export() BankSnapshot {
	b.mu.Lock()
	now := b.now()
	entries := make([]MemoryEntry, 0, len(b.entries))
	for _, entry := range b.entries {
		entry.LastAccessedAt = now
		entries = append(entries, *entry)
	}
	b.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return BankSnapshot{ExportedAt: now.UTC().Format(time.RFC3339Nano), Entries: entries}
}

// Import restores entries verbatim. With merge false the bank is cleared
// first; with merge true snapshot entries replace same-key entries.
func (b *MemoryBank) Import(snap BankSnapshot, merge bool) error {
	for _, entry := range snap.Entries {
		if entry.Key == "" {
			return &ValidationError{Field: "entries", Reason: "entry with empty key"}
		}
	}

	b.mu.Lock()
	if !merge {
		b.entries = make(map[string]*MemoryEntry, len(snap.Entries))
	}
	for _, entry := range snap.Entries {
		copied := entry
		b.entries[entry.Key] = &copied
	}
	b.mu.Unlock()

	emit(b.sink, EventMemory, "import", map[string]any{
		"op":      "import",
		"entries": len(snap.Entries),
		"merge":   merge,
	})
	return nil
}

// WriteFile persists the snapshot as an indented JSON document.
func (s BankSnapshot) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadBankSnapshotFile reads a snapshot previously written with WriteFile.
func LoadBankSnapshotFile(path string) (BankSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BankSnapshot{}, err
	}
	var snap BankSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return BankSnapshot{}, &ValidationError{Field: path, Reason: err.Error()}
	}
	return snap, nil
}

// BusSnapshot is the serializable form of one run's message log.
type BusSnapshot struct {
	RunID    string         `json:"run_id"`
	Messages []AgentMessage `json:"messages"`
}

// Export copies the run's log in publish order.
func (b *Bus) Export(runID string) BusSnapshot {
	history := b.History(runID)
	messages := make([]AgentMessage, len(history))
	for i, msg := range history {
		messages[i] = *msg
	}
	return BusSnapshot{RunID: runID, Messages: messages}
}

// Import restores a run's log, replacing any existing log under the same run
// ID. The sequence counter resumes after the highest imported value.
func (b *Bus) Import(snap BusSnapshot) error {
	if snap.RunID == "" {
		return &ValidationError{Field: "run_id", Reason: "empty"}
	}
	for i := 1; i < len(snap.Messages); i++ {
		if snap.Messages[i].Seq <= snap.Messages[i-1].Seq {
			return &ValidationError{Field: "messages", Reason: "sequence numbers not strictly increasing"}
		}
	}

	log := make([]*AgentMessage, len(snap.Messages))
	var maxSeq uint64
	for i, msg := range snap.Messages {
		copied := msg
		copied.RunID = snap.RunID
		log[i] = &copied
		if copied.Seq > maxSeq {
			maxSeq = copied.Seq
		}
	}

	b.mu.Lock()
	b.runs[snap.RunID] = log
	b.seq[snap.RunID] = maxSeq
	b.mu.Unlock()
	return nil
}
