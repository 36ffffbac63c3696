package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/messaging"
	"github.com/saludmunicipal/farmacia-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiptItem(medID, name string) service.ReceiptItem {
	return service.ReceiptItem{
		Medication: service.ReceiptMedication{ID: medID, Name: name},
		LotCode:    "L1",
		ExpiryDate: repository.MustParseDate("2030-01-01"),
		Quantity:   10,
	}
}

func TestReceiptService_ReceiveManual_HeaderLess(t *testing.T) {
	svc, mockDB := newMockServices(t)

	mockDB.ExpectBegin()
	mockDB.ExpectLockTimeout("5000ms")
	mockDB.ExpectQuery("SELECT id FROM medications WHERE id = ANY($1)").
		WillReturnRows(testutil.MockRows("id"))
	mockDB.ExpectExec("INSERT INTO medications (id,name,active_ingredient,status) VALUES ($1,$2,$3,$4) ON CONFLICT (id)").
		WithArgs("NEW", "Nuevo", "", "visible").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO lots").
		WithArgs("NEW", "L1", "2030-01-01", 10, "", "ok").
		WillReturnRows(testutil.MockRows("id").AddRow(int64(7)))
	mockDB.ExpectRefreshAggregates("2025-03-01", "NEW")
	mockDB.ExpectCommit()

	result, err := svc.receipt.ReceiveManual(context.Background(), service.ReceiptRequest{
		Items: []service.ReceiptItem{receiptItem(" NEW ", "Nuevo")},
	})

	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Nil(t, result.ReceiptID)
	assert.Equal(t, 1, result.ItemsCount)
	mockDB.ExpectationsWereMet(t)

	e, ok := svc.publisher.Find(messaging.EventReceiptRecorded)
	require.True(t, ok)
	assert.Equal(t, []string{"NEW"}, e.Payload.(messaging.ReceiptRecordedEvent).MedicationIDs)
}

func TestReceiptService_ReceiveManual_WithHeaderStoresLines(t *testing.T) {
	svc, mockDB := newMockServices(t)
	price := decimal.RequireFromString("120.50")
	item := receiptItem("AMOX", "")
	item.UnitPrice = &price
	item.Provider = "Cenabast"

	mockDB.ExpectBegin()
	mockDB.ExpectLockTimeout("5000ms")
	mockDB.ExpectQuery("SELECT id FROM medications").
		WillReturnRows(testutil.MockRows("id").AddRow("AMOX"))
	mockDB.ExpectQuery("INSERT INTO goods_receipts").
		WithArgs("GE-1", testutil.AnyTime{}, "active", nil, "F-778", nil, nil, nil, "op-1").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectExec("INSERT INTO medications").
		WithArgs("AMOX", "", "", "visible").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO lots").
		WithArgs("AMOX", "L1", "2030-01-01", 10, "Cenabast", "ok").
		WillReturnRows(testutil.MockRows("id").AddRow(int64(3)))
	mockDB.ExpectQuery("INSERT INTO goods_receipt_lines").
		WithArgs("GE-1", 1, "AMOX", int64(3), "L1", "2030-01-01", 10, "120.5", "Cenabast").
		WillReturnRows(testutil.MockRows("id").AddRow(int64(1)))
	mockDB.ExpectRefreshAggregates("2025-03-01", "AMOX")
	mockDB.ExpectCommit()

	invoice := "F-778"
	result, err := svc.receipt.ReceiveManual(operatorCtx(), service.ReceiptRequest{
		Header: &service.ReceiptHeader{ID: "GE-1", InvoiceNumber: &invoice},
		Items:  []service.ReceiptItem{item},
	})

	require.NoError(t, err)
	require.NotNil(t, result.ReceiptID)
	assert.Equal(t, "GE-1", *result.ReceiptID)
	mockDB.ExpectationsWereMet(t)
}

func TestReceiptService_ReceiveManual_UnknownMedicationWithoutName(t *testing.T) {
	svc, mockDB := newMockServices(t)

	mockDB.ExpectBegin()
	mockDB.ExpectLockTimeout("5000ms")
	mockDB.ExpectQuery("SELECT id FROM medications").
		WillReturnRows(testutil.MockRows("id"))
	mockDB.ExpectRollback()

	_, err := svc.receipt.ReceiveManual(context.Background(), service.ReceiptRequest{
		Items: []service.ReceiptItem{receiptItem("GHOST", "")},
	})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errors.CodeValidation, appErr.Code)
	assert.Contains(t, appErr.Details, "items[0].medication.name")
	mockDB.ExpectationsWereMet(t)
	svc.publisher.AssertNoEventsPublished(t)
}

func TestReceiptService_ReceiveManual_ValidatesBeforeAnyWrite(t *testing.T) {
	negative := decimal.NewFromInt(-5)
	subCent := decimal.RequireFromString("120.505")

	tests := []struct {
		name    string
		mutate  func(*service.ReceiptItem)
		wantKey string
	}{
		{"missing medication id", func(i *service.ReceiptItem) { i.Medication.ID = "" }, "items[0].medication.id"},
		{"missing lot code", func(i *service.ReceiptItem) { i.LotCode = " " }, "items[0].lot_code"},
		{"missing expiry", func(i *service.ReceiptItem) { i.ExpiryDate = repository.Date{} }, "items[0].expiry_date"},
		{"zero quantity", func(i *service.ReceiptItem) { i.Quantity = 0 }, "items[0].quantity"},
		{"negative price", func(i *service.ReceiptItem) { i.UnitPrice = &negative }, "items[0].unit_price"},
		{"price finer than cents", func(i *service.ReceiptItem) { i.UnitPrice = &subCent }, "items[0].unit_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mockDB := newMockServices(t)
			item := receiptItem("AMOX", "Amoxicilina")
			tt.mutate(&item)

			_, err := svc.receipt.ReceiveManual(context.Background(), service.ReceiptRequest{
				Items: []service.ReceiptItem{item},
			})

			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, errors.CodeValidation, appErr.Code)
			assert.Contains(t, appErr.Details, tt.wantKey)
			mockDB.ExpectationsWereMet(t)
		})
	}
}
