package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	data := LotStatusChangedEvent{LotID: 7, MedicationID: "AMOX500", Status: "blocked"}

	event, err := NewEvent(EventLotStatusChanged, "pharmacy-service", "corr-1", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventLotStatusChanged, event.Type)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.False(t, event.Timestamp.IsZero())

	var decoded LotStatusChangedEvent
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestCorrelationID(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
	assert.Equal(t, "abc", CorrelationID(WithCorrelationID(context.Background(), "abc")))
}
