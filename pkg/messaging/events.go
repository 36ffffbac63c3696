package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types, used as routing keys
const (
	EventDispenseCommitted = "pharmacy.dispense.committed"
	EventReceiptRecorded   = "pharmacy.receipt.recorded"
	EventImportCompleted   = "pharmacy.import.completed"
	EventLotExpired        = "pharmacy.lot.expired"
	EventLotStatusChanged  = "pharmacy.lot.status_changed"
)

// ExchangePharmacyEvents is the default topic exchange
const ExchangePharmacyEvents = "pharmacy.events"

// Event is the envelope of every published message
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// DispenseAllocation is one lot drawn by a dispense line
type DispenseAllocation struct {
	LotID    int64 `json:"lot_id"`
	Quantity int   `json:"quantity"`
}

// DispenseLineEvent summarises one dispensed medication
type DispenseLineEvent struct {
	MedicationID string               `json:"medication_id"`
	Quantity     int                  `json:"quantity"`
	Allocations  []DispenseAllocation `json:"allocations"`
}

// DispenseCommittedEvent is published after a sale commits
type DispenseCommittedEvent struct {
	DispenseID string              `json:"dispense_id"`
	PatientID  string              `json:"patient_id"`
	OperatorID string              `json:"operator_id"`
	TotalValue string              `json:"total_value"`
	Lines      []DispenseLineEvent `json:"lines"`
}

// ReceiptRecordedEvent is published after a manual goods receipt commits
type ReceiptRecordedEvent struct {
	ReceiptID     string   `json:"receipt_id,omitempty"`
	ItemsCount    int      `json:"items_count"`
	MedicationIDs []string `json:"medication_ids"`
	OperatorID    string   `json:"operator_id,omitempty"`
}

// ImportCompletedEvent is published after a bulk import commits
type ImportCompletedEvent struct {
	RowsTotal    int    `json:"rows_total"`
	GroupedRows  int    `json:"grouped_rows"`
	Inserted     int    `json:"inserted"`
	Skipped      int    `json:"skipped"`
	AffectedMeds int    `json:"affected_meds"`
	OperatorID   string `json:"operator_id,omitempty"`
}

// LotExpiredEvent is published when the sweeper retires lots
type LotExpiredEvent struct {
	LotIDs        []int64  `json:"lot_ids"`
	MedicationIDs []string `json:"medication_ids"`
}

// LotStatusChangedEvent is published on manual block/unblock
type LotStatusChangedEvent struct {
	LotID        int64  `json:"lot_id"`
	MedicationID string `json:"medication_id"`
	Status       string `json:"status"`
	OperatorID   string `json:"operator_id,omitempty"`
}
