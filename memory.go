// Package ecoguardian - memory.go
// The Memory Bank: a bounded key/value store with access statistics and
// recency/frequency compaction.

package ecoguardian

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryEntry is a stored value plus the access metadata compaction scores on.
type MemoryEntry struct {
	Key            string          `json:"key"`
	Value          json.RawMessage `json:"value"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	AccessCount    int             `json:"access_count"`
}

// KeyAccess pairs a key with its access count, for the statistics report.
type KeyAccess struct {
	Key         string `json:"key"`
	AccessCount int    `json:"access_count"`
}

// BankStats is a point-in-time summary of the bank.
type BankStats struct {
	Entries        int         `json:"entries"`
	Capacity       int         `json:"capacity"`
	UtilizationPct float64     `json:"utilization_percent"`
	TotalAccesses  int         `json:"total_accesses"`
	Compactions    int         `json:"compactions"`
	MostAccessed   []KeyAccess `json:"most_accessed"`
}

// MemoryBank is a bounded associative store. Reads and writes refresh access
// metadata; Compact evicts the lowest-value fraction of entries by the score
// access_count / (age_in_days + 1), oldest-created first on ties.
type MemoryBank struct {
	mu          sync.RWMutex
	entries     map[string]*MemoryEntry
	capacity    int
	compactions int
	sink        Sink
	logger      *slog.Logger
	now         func() time.Time
}

func NewMemoryBank(capacity int, sink Sink, logger *slog.Logger) *MemoryBank {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBank{
		entries:  make(map[string]*MemoryEntry),
		capacity: capacity,
		sink:     sinkOrDefault(sink),
		logger:   logger,
		now:      time.Now,
	}
}

// Put stores or replaces a value. Replacing preserves created_at and the
// access count; only the value and last_accessed_at change.
func (b *MemoryBank) Put(key string, value any) error {
	if key == "" {
		return &ValidationError{Field: "key", Reason: "empty"}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return &ValidationError{Field: "value", Reason: err.Error()}
	}

	b.mu.Lock()
	now := b.now()
	if entry, ok := b.entries[key]; ok {
		entry.Value = data
		entry.LastAccessedAt = now
	} else {
		b.entries[key] = &MemoryEntry{
			Key:            key,
			Value:          data,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
	}
	b.mu.Unlock()

	emit(b.sink, EventMemory, key, map[string]any{"op": "put"})
	return nil
}

// Get returns the stored value and refreshes the entry's access metadata.
func (b *MemoryBank) Get(key string) (json.RawMessage, error) {
	b.mu.Lock()
	entry, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("memory %q: %w", key, ErrNotFound)
	}
	entry.AccessCount++
	entry.LastAccessedAt = b.now()
	value := entry.Value
	b.mu.Unlock()
	return value, nil
}

// GetJSON unmarshals the stored value into out.
func (b *MemoryBank) GetJSON(key string, out any) error {
	data, err := b.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ValidationError{Field: key, Reason: err.Error()}
	}
	return nil
}

// Delete removes an entry. Returns ErrNotFound when the key is absent.
func (b *MemoryBank) Delete(key string) error {
	b.mu.Lock()
	if _, ok := b.entries[key]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("memory %q: %w", key, ErrNotFound)
	}
	delete(b.entries, key)
	b.mu.Unlock()

	emit(b.sink, EventMemory, key, map[string]any{"op": "delete"})
	return nil
}

// Len returns the current entry count.
func (b *MemoryBank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Keys returns all keys in lexical order.
func (b *MemoryBank) Keys() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	b.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Capacity returns the configured entry bound.
func (b *MemoryBank) Capacity() int { return b.capacity }

type scoredKey struct {
	key       string
	score     float64
	createdAt time.Time
}

// Compact deletes the lowest-scoring targetReduction fraction of entries
// (rounded down). The victim set is snapshotted before any deletion, and
// entries are removed one key at a time so concurrent reads of unaffected
// keys never wait on the whole sweep.
func (b *MemoryBank) Compact(targetReduction float64) (int, error) {
	if targetReduction < 0 || targetReduction > 1 {
		return 0, &ValidationError{Field: "target_reduction", Reason: "must be within [0,1]"}
	}

	b.mu.RLock()
	before := len(b.entries)
	now := b.now()
	scored := make([]scoredKey, 0, before)
	for key, entry := range b.entries {
		ageDays := int(now.Sub(entry.CreatedAt).Hours() / 24)
		scored = append(scored, scoredKey{
			key:       key,
			score:     float64(entry.AccessCount) / float64(ageDays+1),
			createdAt: entry.CreatedAt,
		})
	}
	b.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score < scored[j].score
		}
		if !scored[i].createdAt.Equal(scored[j].createdAt) {
			return scored[i].createdAt.Before(scored[j].createdAt)
		}
		return scored[i].key < scored[j].key
	})

	victims := int(math.Floor(float64(before) * targetReduction))
	removed := 0
	for _, sk := range scored[:victims] {
		b.mu.Lock()
		if _, ok := b.entries[sk.key]; ok {
			delete(b.entries, sk.key)
			removed++
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	b.compactions++
	after := len(b.entries)
	b.mu.Unlock()

	emit(b.sink, EventMemory, "compact", map[string]any{
		"op":      "compact",
		"removed": removed,
		"before":  before,
		"after":   after,
	})
	return removed, nil
}

// EnsureUnderCapacity compacts with the given reduction when the entry count
// exceeds capacity. It returns ErrCapacityExceeded when the reduction was not
// enough to restore the bound; the caller must request a larger reduction.
func (b *MemoryBank) EnsureUnderCapacity(targetReduction float64) error {
	if b.capacity <= 0 || b.Len() <= b.capacity {
		return nil
	}
	if _, err := b.Compact(targetReduction); err != nil {
		return err
	}
	if b.Len() > b.capacity {
		return fmt.Errorf("%w: %d entries after compaction, capacity %d",
			ErrCapacityExceeded, b.Len(), b.capacity)
	}
	return nil
}

// Stats summarises the bank without touching access metadata.
func (b *MemoryBank) Stats() BankStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	accessed := make([]KeyAccess, 0, len(b.entries))
	for key, entry := range b.entries {
		total += entry.AccessCount
		accessed = append(accessed, KeyAccess{Key: key, AccessCount: entry.AccessCount})
	}
	sort.Slice(accessed, func(i, j int) bool {
		if accessed[i].AccessCount != accessed[j].AccessCount {
			return accessed[i].AccessCount > accessed[j].AccessCount
		}
		return accessed[i].Key < accessed[j].Key
	})
	if len(accessed) > 5 {
		accessed = accessed[:5]
	}

	utilization := 0.0
	if b.capacity > 0 {
		utilization = float64(len(b.entries)) / float64(b.capacity) * 100
	}
	return BankStats{
		Entries:        len(b.entries),
		Capacity:       b.capacity,
		UtilizationPct: utilization,
		TotalAccesses:  total,
		Compactions:    b.compactions,
		MostAccessed:   accessed,
	}
}
