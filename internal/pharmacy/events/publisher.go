package events

import (
	"context"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
	"github.com/saludmunicipal/farmacia-backend/pkg/messaging"
)

// Sender is satisfied by *messaging.Publisher
type Sender interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// PharmacyEventPublisher publishes ledger events after commit. A nil
// publisher drops every event, which is how RabbitMQ is disabled.
type PharmacyEventPublisher struct {
	sender Sender
	logger *logger.Logger
}

// NewPharmacyEventPublisher declares the exchange and returns a publisher
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, exchange string, log *logger.Logger) (*PharmacyEventPublisher, error) {
	if exchange == "" {
		exchange = messaging.ExchangePharmacyEvents
	}
	publisher, err := messaging.NewPublisher(rmq, exchange, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}
	return New(publisher, log), nil
}

// New wraps an existing sender
func New(sender Sender, log *logger.Logger) *PharmacyEventPublisher {
	return &PharmacyEventPublisher{
		sender: sender,
		logger: log,
	}
}

func (p *PharmacyEventPublisher) publish(ctx context.Context, eventType string, data interface{}, key, value string) {
	if p == nil || p.sender == nil {
		return
	}
	if err := p.sender.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Str(key, value).Msg("failed to publish event")
	}
}

// PublishDispenseCommitted publishes a committed sale with its lot draws
func (p *PharmacyEventPublisher) PublishDispenseCommitted(ctx context.Context, d *repository.Dispense, lines []repository.DispenseLine) {
	data := messaging.DispenseCommittedEvent{
		DispenseID: d.ID,
		PatientID:  d.PatientID,
		OperatorID: d.OperatorID,
		TotalValue: d.TotalValue.StringFixed(2),
		Lines:      make([]messaging.DispenseLineEvent, 0, len(lines)),
	}
	for _, l := range lines {
		le := messaging.DispenseLineEvent{
			MedicationID: l.MedicationID,
			Quantity:     l.Quantity,
			Allocations:  make([]messaging.DispenseAllocation, 0, len(l.Allocations)),
		}
		for _, a := range l.Allocations {
			le.Allocations = append(le.Allocations, messaging.DispenseAllocation{LotID: a.LotID, Quantity: a.Quantity})
		}
		data.Lines = append(data.Lines, le)
	}

	p.publish(ctx, messaging.EventDispenseCommitted, data, "dispense_id", d.ID)
}

// PublishReceiptRecorded publishes a committed manual receipt
func (p *PharmacyEventPublisher) PublishReceiptRecorded(ctx context.Context, data messaging.ReceiptRecordedEvent) {
	p.publish(ctx, messaging.EventReceiptRecorded, data, "receipt_id", data.ReceiptID)
}

// PublishImportCompleted publishes the summary of a bulk import
func (p *PharmacyEventPublisher) PublishImportCompleted(ctx context.Context, data messaging.ImportCompletedEvent) {
	p.publish(ctx, messaging.EventImportCompleted, data, "operator_id", data.OperatorID)
}

// PublishLotsExpired publishes the lots retired by the expiry sweeper
func (p *PharmacyEventPublisher) PublishLotsExpired(ctx context.Context, lots []repository.ExpiredLot, medicationIDs []string) {
	data := messaging.LotExpiredEvent{
		LotIDs:        make([]int64, 0, len(lots)),
		MedicationIDs: medicationIDs,
	}
	for _, l := range lots {
		data.LotIDs = append(data.LotIDs, l.ID)
	}
	p.publish(ctx, messaging.EventLotExpired, data, "component", "expiry-sweeper")
}

// PublishLotStatusChanged publishes a manual block or unblock
func (p *PharmacyEventPublisher) PublishLotStatusChanged(ctx context.Context, lot *repository.Lot, operatorID string) {
	p.publish(ctx, messaging.EventLotStatusChanged, messaging.LotStatusChangedEvent{
		LotID:        lot.ID,
		MedicationID: lot.MedicationID,
		Status:       lot.Status,
		OperatorID:   operatorID,
	}, "medication_id", lot.MedicationID)
}
