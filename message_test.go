package ecoguardian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishTestMessage(t *testing.T, bus *Bus, runID, sender, receiver string, mt MessageType) string {
	t.Helper()
	msg, err := NewAgentMessage(sender, receiver, mt, nil)
	require.NoError(t, err)
	id, err := bus.Publish(runID, msg)
	require.NoError(t, err)
	return id
}

func TestBusPublishAssignsOrderedSequence(t *testing.T) {
	bus := NewBus(NewRecordingSink(), testLogger())

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, publishTestMessage(t, bus, "run-1", "collector", "predictor", MsgDataReady))
	}

	history := bus.History("run-1")
	require.Len(t, history, 5)
	for i, msg := range history {
		assert.Equal(t, uint64(i+1), msg.Seq)
		assert.Equal(t, ids[i], msg.ID)
		assert.Equal(t, "run-1", msg.RunID)
	}
}

func TestBusValidatesMessages(t *testing.T) {
	bus := NewBus(NewRecordingSink(), testLogger())
	var verr *ValidationError

	_, err := NewAgentMessage("", "predictor", MsgDataReady, nil)
	assert.ErrorAs(t, err, &verr)
	_, err = NewAgentMessage("collector", "", MsgDataReady, nil)
	assert.ErrorAs(t, err, &verr)
	_, err = NewAgentMessage("collector", "predictor", "", nil)
	assert.ErrorAs(t, err, &verr)

	_, err = bus.Publish("", &AgentMessage{Sender: "a", Receiver: "b", Type: MsgDataReady})
	assert.ErrorAs(t, err, &verr)
	_, err = bus.Publish("run-1", nil)
	assert.ErrorAs(t, err, &verr)
}

func TestSubscriptionDeliversAtMostOnce(t *testing.T) {
	bus := NewBus(NewRecordingSink(), testLogger())
	sub := bus.Subscribe("run-1", "predictor")

	publishTestMessage(t, bus, "run-1", "collector", "predictor", MsgDataReady)
	publishTestMessage(t, bus, "run-1", "collector", "predictor", MsgDataReady)

	first, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(1), first.Seq)

	second, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(2), second.Seq)

	_, ok = sub.Next()
	assert.False(t, ok, "each message is delivered at most once per subscription")

	// Messages published after the cursor drained are still delivered.
	publishTestMessage(t, bus, "run-1", "collector", "predictor", MsgDataReady)
	third, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(3), third.Seq)
}

func TestSubscriptionFiltersReceiverAndType(t *testing.T) {
	bus := NewBus(NewRecordingSink(), testLogger())

	publishTestMessage(t, bus, "run-1", "collector", "predictor", MsgDataReady)
	publishTestMessage(t, bus, "run-1", "predictor", "deployer", MsgPredictionReady)
	publishTestMessage(t, bus, "run-1", "coordinator", Broadcast, MsgReadingUpdate)
	publishTestMessage(t, bus, "run-1", "deployer", "coordinator", MsgDeployComplete)

	sub := bus.Subscribe("run-1", "deployer", MsgPredictionReady)
	msg, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, MsgPredictionReady, msg.Type)
	_, ok = sub.Next()
	assert.False(t, ok, "the broadcast does not match the type filter")

	// Without a type filter the broadcast is delivered too.
	all := bus.Subscribe("run-1", "deployer")
	var types []MessageType
	for {
		msg, ok := all.Next()
		if !ok {
			break
		}
		types = append(types, msg.Type)
	}
	assert.Equal(t, []MessageType{MsgPredictionReady, MsgReadingUpdate}, types)
}

func TestBusIsolatesRunsAndResets(t *testing.T) {
	bus := NewBus(NewRecordingSink(), testLogger())
	publishTestMessage(t, bus, "run-1", "collector", "predictor", MsgDataReady)
	publishTestMessage(t, bus, "run-2", "collector", "predictor", MsgDataReady)

	assert.Len(t, bus.History("run-1"), 1)
	assert.Len(t, bus.History("run-2"), 1)
	assert.Equal(t, uint64(1), bus.History("run-2")[0].Seq,
		"each run gets its own sequence")

	bus.Reset("run-1")
	assert.Empty(t, bus.History("run-1"))
	assert.Len(t, bus.History("run-2"), 1)

	// A reused run id starts a fresh log from seq 1.
	publishTestMessage(t, bus, "run-1", "collector", "predictor", MsgDataReady)
	assert.Equal(t, uint64(1), bus.History("run-1")[0].Seq)
}
