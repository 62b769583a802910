package ecoguardian

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "archive.db")

	storage, err := NewSQLiteStorage(dbFile)
	require.NoError(t, err)
	defer storage.Close()

	run := &WorkflowRun{
		ID:      "run-1",
		Pattern: PatternSequential,
		Status:  StatusRunning,
		Stages: []StageResult{
			{Name: "collect", AgentID: "eco-collector", Input: "Oslo"},
		},
		StartedAt: time.Now().UTC(),
	}

	t.Run("SaveAndGetRun", func(t *testing.T) {
		require.NoError(t, storage.SaveRun(run))

		got, err := storage.GetRun("run-1")
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, PatternSequential, got.Pattern)
		require.Len(t, got.Stages, 1)
		assert.Equal(t, "collect", got.Stages[0].Name)

		_, err = storage.GetRun("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SaveRunUpdatesStatus", func(t *testing.T) {
		run.Status = StatusCompleted
		require.NoError(t, storage.SaveRun(run))

		got, err := storage.GetRun("run-1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
	})

	t.Run("ListRuns", func(t *testing.T) {
		require.NoError(t, storage.SaveRun(&WorkflowRun{
			ID: "run-2", Pattern: PatternParallel, Status: StatusCompleted,
		}))
		runs, err := storage.ListRuns(10)
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})

	t.Run("Messages", func(t *testing.T) {
		msgs := []*AgentMessage{
			{ID: "m1", RunID: "run-1", Sender: "collector", Receiver: "predictor", Type: MsgDataReady, Seq: 1},
			{ID: "m2", RunID: "run-1", Sender: "predictor", Receiver: "deployer", Type: MsgPredictionReady, Seq: 2},
		}
		require.NoError(t, storage.SaveMessages("run-1", msgs))

		got, err := storage.LoadMessages("run-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "m1", got[0].ID)
		assert.Equal(t, uint64(2), got[1].Seq)

		_, err = storage.LoadMessages("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("BankSnapshots", func(t *testing.T) {
		bank := newTestBank(t, 100)
		require.NoError(t, bank.Put("reading:oslo", map[string]int{"aqi": 2}))
		snap := bank.Export()

		require.NoError(t, storage.SaveBankSnapshot("nightly", &snap))

		got, err := storage.LoadBankSnapshot("nightly")
		require.NoError(t, err)
		assert.Equal(t, snap.ExportedAt, got.ExportedAt)
		require.Len(t, got.Entries, 1)
		assert.Equal(t, "reading:oslo", got.Entries[0].Key)

		_, err = storage.LoadBankSnapshot("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCoordinatorArchivesCompletedRuns(t *testing.T) {
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer storage.Close()

	src := &cityStubSource{readings: map[string]Reading{"Oslo": unhealthyReading}}
	h := newHarness(t, src, goodPredictor(), fastConfig())
	h.coordinator.SetArchive(storage)

	run, err := h.coordinator.RunSequential(context.Background(), "Oslo")
	require.NoError(t, err)

	archived, err := storage.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, archived.Status)
	assert.Len(t, archived.Stages, 3)

	msgs, err := storage.LoadMessages(run.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}
