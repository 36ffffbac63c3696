package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/events"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
	"github.com/saludmunicipal/farmacia-backend/pkg/messaging"
	"github.com/saludmunicipal/farmacia-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDispenseCommitted(t *testing.T) {
	mock := testutil.NewMockPublisher()
	p := events.New(mock, logger.New("test", "test"))

	p.PublishDispenseCommitted(context.Background(), &repository.Dispense{
		ID:         "B-1",
		PatientID:  "11.111.111-1",
		OperatorID: "op-1",
		TotalValue: decimal.RequireFromString("700.5"),
	}, []repository.DispenseLine{{
		MedicationID: "AMOX",
		Quantity:     7,
		Allocations: []repository.Allocation{
			{LotID: 1, Quantity: 5},
			{LotID: 2, Quantity: 2},
		},
	}})

	e, ok := mock.Find(messaging.EventDispenseCommitted)
	require.True(t, ok)
	data := e.Payload.(messaging.DispenseCommittedEvent)
	assert.Equal(t, "700.50", data.TotalValue)
	require.Len(t, data.Lines, 1)
	assert.Equal(t, []messaging.DispenseAllocation{{LotID: 1, Quantity: 5}, {LotID: 2, Quantity: 2}}, data.Lines[0].Allocations)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *events.PharmacyEventPublisher

	assert.NotPanics(t, func() {
		p.PublishLotStatusChanged(context.Background(), &repository.Lot{ID: 1}, "op-1")
		p.PublishImportCompleted(context.Background(), messaging.ImportCompletedEvent{})
	})
}

func TestPublisher_FailureIsSwallowed(t *testing.T) {
	mock := testutil.NewMockPublisher()
	mock.Err = errors.New("channel closed")
	p := events.New(mock, logger.New("test", "test"))

	p.PublishLotsExpired(context.Background(), []repository.ExpiredLot{{ID: 4, MedicationID: "AMOX"}}, []string{"AMOX"})

	e, ok := mock.Find(messaging.EventLotExpired)
	require.True(t, ok)
	assert.Equal(t, []int64{4}, e.Payload.(messaging.LotExpiredEvent).LotIDs)
}
