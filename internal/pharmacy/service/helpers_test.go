package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/events"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/actor"
	"github.com/saludmunicipal/farmacia-backend/pkg/config"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
	"github.com/saludmunicipal/farmacia-backend/pkg/testutil"
)

var (
	lotCols = []string{"id", "medication_id", "lot_code", "expiry_date", "quantity", "provider", "status", "received_at", "updated_at"}

	// 2025-03-01 09:30 in Santiago
	fixedNow = time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
)

// services bundles every service over one database
type services struct {
	db        *database.DB
	publisher *testutil.MockPublisher
	dispense  *service.DispenseService
	receipt   *service.ReceiptService
	imports   *service.ImportService
	lots      *service.LotService
	sweeper   *service.ExpirySweeper
	meds      *service.MedicationService
}

func testOptions() service.Options {
	loc, _ := time.LoadLocation("America/Santiago")
	return service.Options{
		Location:      loc,
		LockTimeout:   5 * time.Second,
		ImportLockTTL: time.Minute,
		DateOrder:     config.DateOrderDMY,
		Now:           func() time.Time { return fixedNow },
	}
}

func newServices(db *database.DB, opts service.Options, locker service.Locker) *services {
	log := logger.New("test", "test")
	mock := testutil.NewMockPublisher()
	publisher := events.New(mock, log)

	lotRepo := repository.NewLotRepository(db)
	medRepo := repository.NewMedicationRepository(db)
	dispenseRepo := repository.NewDispenseRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)

	return &services{
		db:        db,
		publisher: mock,
		dispense:  service.NewDispenseService(db, dispenseRepo, lotRepo, medRepo, publisher, opts, log),
		receipt:   service.NewReceiptService(db, receiptRepo, lotRepo, medRepo, publisher, opts, log),
		imports:   service.NewImportService(db, lotRepo, medRepo, locker, publisher, opts, log),
		lots:      service.NewLotService(db, lotRepo, medRepo, publisher, opts, log),
		sweeper:   service.NewExpirySweeper(db, lotRepo, medRepo, publisher, time.Hour, opts, log),
		meds:      service.NewMedicationService(medRepo, lotRepo),
	}
}

// newMockServices wires the services over sqlmock
func newMockServices(t *testing.T) (*services, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })
	db := database.Wrap(mockDB.DB, logger.New("test", "test"))
	return newServices(db, testOptions(), nil), mockDB
}

func operatorCtx() context.Context {
	return actor.WithActor(context.Background(), &actor.Actor{ID: "op-1", Name: "Químico Farmacéutico"})
}

func pqCode(code string) *pq.Error {
	return &pq.Error{Code: pq.ErrorCode(code), Message: "simulated"}
}
