package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/messaging"
	"github.com/saludmunicipal/farmacia-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispenseRequest(qty int) service.DispenseRequest {
	return service.DispenseRequest{
		ID:        "B-100",
		PatientID: "11.111.111-1",
		Items: []service.DispenseItem{{
			MedicationID: "AMOX",
			Quantity:     qty,
			UnitPrice:    decimal.NewFromInt(150),
		}},
	}
}

func expectDispenseStart(mockDB *testutil.MockDB) {
	mockDB.ExpectBegin()
	mockDB.ExpectLockTimeout("5000ms")
	mockDB.ExpectQuery("SELECT id FROM medications WHERE id = ANY($1)").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(testutil.MockRows("id").AddRow("AMOX"))
	mockDB.ExpectQuery("INSERT INTO dispenses").
		WithArgs("B-100", nil, "active", nil, testutil.AnyTime{}, "11.111.111-1", "op-1").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
}

func expectFEFOLots(mockDB *testutil.MockDB) {
	now := time.Now()
	mockDB.ExpectQuery("AND expiry_date >= $2").
		WithArgs("AMOX", "2025-03-01").
		WillReturnRows(testutil.MockRows(lotCols...).
			AddRow(int64(1), "AMOX", "L1", "2025-04-10", 5, nil, "ok", now, now).
			AddRow(int64(2), "AMOX", "L2", "2025-05-01", 10, nil, "ok", now, now))
}

func TestDispenseService_Record_DrawsEarliestExpiryFirst(t *testing.T) {
	svc, mockDB := newMockServices(t)

	expectDispenseStart(mockDB)
	expectFEFOLots(mockDB)
	mockDB.ExpectQuery("INSERT INTO dispense_lines").
		WithArgs("B-100", 1, "AMOX", 7, "150", "1050").
		WillReturnRows(testutil.MockRows("id").AddRow(int64(11)))
	mockDB.ExpectQuery("INSERT INTO dispense_allocations").
		WithArgs(int64(11), int64(1), 5).
		WillReturnRows(testutil.MockRows("id").AddRow(int64(21)))
	mockDB.ExpectExec("UPDATE lots SET quantity = quantity - $2").
		WithArgs(int64(1), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO dispense_allocations").
		WithArgs(int64(11), int64(2), 2).
		WillReturnRows(testutil.MockRows("id").AddRow(int64(22)))
	mockDB.ExpectExec("UPDATE lots SET quantity = quantity - $2").
		WithArgs(int64(2), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectRefreshAggregates("2025-03-01", "AMOX")
	mockDB.ExpectExec("UPDATE dispenses SET net_value = $2, total_value = $3 WHERE id = $1").
		WithArgs("B-100", "1050", "1050").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	result, err := svc.dispense.Record(operatorCtx(), dispenseRequest(7))

	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "B-100", result.ID)
	assert.True(t, decimal.NewFromInt(1050).Equal(result.TotalValue))
	assert.True(t, result.NetValue.Equal(result.TotalValue))
	mockDB.ExpectationsWereMet(t)

	e, ok := svc.publisher.Find(messaging.EventDispenseCommitted)
	require.True(t, ok)
	data := e.Payload.(messaging.DispenseCommittedEvent)
	require.Len(t, data.Lines, 1)
	assert.Equal(t, []messaging.DispenseAllocation{{LotID: 1, Quantity: 5}, {LotID: 2, Quantity: 2}}, data.Lines[0].Allocations)
}

func TestDispenseService_Record_InsufficientStockRollsBack(t *testing.T) {
	svc, mockDB := newMockServices(t)

	expectDispenseStart(mockDB)
	expectFEFOLots(mockDB)
	mockDB.ExpectRollback()

	_, err := svc.dispense.Record(operatorCtx(), dispenseRequest(20))

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "AMOX", appErr.Details["medication_id"])
	assert.Equal(t, "5", appErr.Details["missing"])

	mockDB.ExpectationsWereMet(t)
	svc.publisher.AssertNoEventsPublished(t)
}

func TestDispenseService_Record_LockTimeoutIsRetryable(t *testing.T) {
	svc, mockDB := newMockServices(t)

	expectDispenseStart(mockDB)
	mockDB.ExpectQuery("FOR UPDATE").WillReturnError(pqCode("55P03"))
	mockDB.ExpectRollback()

	_, err := svc.dispense.Record(operatorCtx(), dispenseRequest(1))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errors.CodeContendedResource, appErr.Code)
	assert.True(t, appErr.Retryable)
	mockDB.ExpectationsWereMet(t)
}

func TestDispenseService_Record_UnknownMedication(t *testing.T) {
	svc, mockDB := newMockServices(t)

	mockDB.ExpectBegin()
	mockDB.ExpectLockTimeout("5000ms")
	mockDB.ExpectQuery("SELECT id FROM medications").
		WillReturnRows(testutil.MockRows("id"))
	mockDB.ExpectRollback()

	_, err := svc.dispense.Record(operatorCtx(), dispenseRequest(1))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errors.CodeValidation, appErr.Code)
	assert.Contains(t, appErr.Details, "items[0].medication_id")
	mockDB.ExpectationsWereMet(t)
}

func TestDispenseService_Record_RejectsBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		mutate   func(*service.DispenseRequest)
		wantCode string
		wantKey  string
	}{
		{
			name:     "no operator",
			ctx:      context.Background(),
			mutate:   func(*service.DispenseRequest) {},
			wantCode: errors.CodeUnauthorized,
		},
		{
			name:     "missing patient",
			ctx:      operatorCtx(),
			mutate:   func(r *service.DispenseRequest) { r.PatientID = "  " },
			wantCode: errors.CodeValidation,
			wantKey:  "patient_id",
		},
		{
			name:     "no items",
			ctx:      operatorCtx(),
			mutate:   func(r *service.DispenseRequest) { r.Items = nil },
			wantCode: errors.CodeValidation,
			wantKey:  "items",
		},
		{
			name:     "zero quantity",
			ctx:      operatorCtx(),
			mutate:   func(r *service.DispenseRequest) { r.Items[0].Quantity = 0 },
			wantCode: errors.CodeValidation,
			wantKey:  "items[0].quantity",
		},
		{
			name:     "negative price",
			ctx:      operatorCtx(),
			mutate:   func(r *service.DispenseRequest) { r.Items[0].UnitPrice = decimal.NewFromInt(-1) },
			wantCode: errors.CodeValidation,
			wantKey:  "items[0].unit_price",
		},
		{
			name:     "price finer than cents",
			ctx:      operatorCtx(),
			mutate:   func(r *service.DispenseRequest) { r.Items[0].UnitPrice = decimal.RequireFromString("150.005") },
			wantCode: errors.CodeValidation,
			wantKey:  "items[0].unit_price",
		},
		{
			name:     "unparseable issue date",
			ctx:      operatorCtx(),
			mutate:   func(r *service.DispenseRequest) { r.IssueDate = "ayer" },
			wantCode: errors.CodeValidation,
			wantKey:  "issue_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mockDB := newMockServices(t)
			req := dispenseRequest(1)
			tt.mutate(&req)

			_, err := svc.dispense.Record(tt.ctx, req)

			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantCode, appErr.Code)
			if tt.wantKey != "" {
				assert.Contains(t, appErr.Details, tt.wantKey)
			}
			mockDB.ExpectationsWereMet(t)
		})
	}
}

func TestDispenseService_Get(t *testing.T) {
	svc, mockDB := newMockServices(t)
	now := time.Now()

	mockDB.ExpectQuery("FROM dispenses WHERE id = $1").
		WithArgs("B-100").
		WillReturnRows(testutil.MockRows("id", "cash_register_id", "state", "description", "issue_date",
			"patient_id", "operator_id", "net_value", "total_value", "created_at").
			AddRow("B-100", nil, "active", nil, now, "11.111.111-1", "op-1", "1050.00", "1050.00", now))
	mockDB.ExpectQuery("FROM dispense_lines dl").
		WithArgs("B-100").
		WillReturnRows(testutil.MockRows("id", "dispense_id", "line_no", "medication_id", "medication_name",
			"active_ingredient", "quantity", "unit_price", "subtotal").
			AddRow(int64(11), "B-100", 1, "AMOX", "Amoxicilina", "amoxicilina", 7, "150.00", "1050.00"))
	mockDB.ExpectQuery("FROM dispense_allocations da").
		WithArgs("B-100").
		WillReturnRows(testutil.MockRows("id", "line_id", "lot_id", "lot_code", "expiry_date", "quantity").
			AddRow(int64(21), int64(11), int64(1), "L1", "2025-04-10", 5).
			AddRow(int64(22), int64(11), int64(2), "L2", "2025-05-01", 2))

	detail, err := svc.dispense.Get(context.Background(), "B-100")

	require.NoError(t, err)
	assert.Equal(t, "B-100", detail.ID)
	require.Len(t, detail.Lines, 1)
	require.Len(t, detail.Lines[0].Allocations, 2)
	assert.Equal(t, "L1", detail.Lines[0].Allocations[0].LotCode)
	mockDB.ExpectationsWereMet(t)
}
