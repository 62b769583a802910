package ecoguardian

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankSnapshotRoundTrip(t *testing.T) {
	bank := newTestBank(t, 100)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	bank.now = func() time.Time { return base }

	for i := 0; i < 10; i++ {
		require.NoError(t, bank.Put(fmt.Sprintf("key-%02d", i), map[string]int{"n": i}))
	}
	_, err := bank.Get("key-03")
	require.NoError(t, err)

	exportedAt := base.Add(time.Minute)
	bank.now = func() time.Time { return exportedAt }
	snap := bank.Export()
	require.Len(t, snap.Entries, 10)

	restored := newTestBank(t, 100)
	require.NoError(t, restored.Import(snap, false))
	require.Equal(t, 10, restored.Len())

	// Everything round-trips verbatim; the export stamped last_accessed_at
	// on source and snapshot alike.
	for _, entry := range snap.Entries {
		got := restored.entries[entry.Key]
		require.NotNil(t, got)
		assert.Equal(t, entry.Value, got.Value)
		assert.Equal(t, entry.CreatedAt, got.CreatedAt)
		assert.Equal(t, entry.AccessCount, got.AccessCount)
		assert.Equal(t, exportedAt, got.LastAccessedAt)
	}
	assert.Equal(t, 1, restored.entries["key-03"].AccessCount)
	assert.Equal(t, 0, restored.entries["key-04"].AccessCount,
		"export must not bump access counts")
}

func TestBankSnapshotMerge(t *testing.T) {
	bank := newTestBank(t, 100)
	require.NoError(t, bank.Put("keep", "old"))
	require.NoError(t, bank.Put("replace", "old"))

	snap := BankSnapshot{Entries: []MemoryEntry{
		{Key: "replace", Value: []byte(`"new"`), CreatedAt: time.Now()},
		{Key: "added", Value: []byte(`"new"`), CreatedAt: time.Now()},
	}}
	require.NoError(t, bank.Import(snap, true))

	assert.Equal(t, 3, bank.Len())
	var got string
	require.NoError(t, bank.GetJSON("replace", &got))
	assert.Equal(t, "new", got)
	require.NoError(t, bank.GetJSON("keep", &got))
	assert.Equal(t, "old", got)
}

func TestBankSnapshotFile(t *testing.T) {
	bank := newTestBank(t, 100)
	require.NoError(t, bank.Put("a", 1))
	snap := bank.Export()

	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, snap.WriteFile(path))

	loaded, err := LoadBankSnapshotFile(path)
	require.NoError(t, err)
	assert.Equal(t, snap.ExportedAt, loaded.ExportedAt)
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, snap.Entries[0].Key, loaded.Entries[0].Key)
}

func TestBusSnapshotRoundTrip(t *testing.T) {
	bus := NewBus(NewRecordingSink(), testLogger())
	for i := 0; i < 4; i++ {
		msg, err := NewAgentMessage("collector", "predictor", MsgDataReady, map[string]int{"n": i})
		require.NoError(t, err)
		_, err = bus.Publish("run-1", msg)
		require.NoError(t, err)
	}

	snap := bus.Export("run-1")
	require.Len(t, snap.Messages, 4)

	restored := NewBus(NewRecordingSink(), testLogger())
	require.NoError(t, restored.Import(snap))

	history := restored.History("run-1")
	require.Len(t, history, 4)
	for i, msg := range history {
		assert.Equal(t, snap.Messages[i].ID, msg.ID)
		assert.Equal(t, snap.Messages[i].Seq, msg.Seq)
	}

	// The sequence counter resumes after the import.
	msg, err := NewAgentMessage("collector", "predictor", MsgDataReady, nil)
	require.NoError(t, err)
	_, err = restored.Publish("run-1", msg)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), restored.History("run-1")[4].Seq)
}

func TestBusSnapshotRejectsBrokenOrder(t *testing.T) {
	bus := NewBus(NewRecordingSink(), testLogger())
	snap := BusSnapshot{RunID: "run-1", Messages: []AgentMessage{
		{ID: "a", Seq: 2}, {ID: "b", Seq: 1},
	}}
	var verr *ValidationError
	assert.ErrorAs(t, bus.Import(snap), &verr)
}
