package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
)

// FixtureFactory seeds ledger rows directly, bypassing the services under test
type FixtureFactory struct {
	db       *sqlx.DB
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

// NextID returns a unique identifier with the given prefix
func (f *FixtureFactory) NextID(prefix string) string {
	f.sequence++
	return fmt.Sprintf("%s-%03d", prefix, f.sequence)
}

// Medication inserts a visible catalog entry with zeroed aggregates
func (f *FixtureFactory) Medication(t *testing.T, id, name string) {
	t.Helper()
	_, err := f.db.ExecContext(context.Background(),
		`INSERT INTO medications (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		t.Fatalf("failed to insert medication %s: %v", id, err)
	}
}

// LotFixture describes a lot to seed. Expiry is formatted as YYYY-MM-DD.
type LotFixture struct {
	MedicationID string
	LotCode      string
	Expiry       string
	Quantity     int
	Status       string
}

// Lot inserts a lot and returns its id. Status defaults to ok.
func (f *FixtureFactory) Lot(t *testing.T, l LotFixture) int64 {
	t.Helper()
	if l.Status == "" {
		l.Status = "ok"
	}
	if l.LotCode == "" {
		l.LotCode = f.NextID("L")
	}

	var id int64
	err := f.db.GetContext(context.Background(), &id,
		`INSERT INTO lots (medication_id, lot_code, expiry_date, quantity, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		l.MedicationID, l.LotCode, l.Expiry, l.Quantity, l.Status)
	if err != nil {
		t.Fatalf("failed to insert lot %s/%s: %v", l.MedicationID, l.LotCode, err)
	}
	return id
}

// LotQuantity reads the current quantity of a lot
func (f *FixtureFactory) LotQuantity(t *testing.T, id int64) int {
	t.Helper()
	var qty int
	if err := f.db.GetContext(context.Background(), &qty, `SELECT quantity FROM lots WHERE id = $1`, id); err != nil {
		t.Fatalf("failed to read lot %d: %v", id, err)
	}
	return qty
}

// LotStatus reads the current status of a lot
func (f *FixtureFactory) LotStatus(t *testing.T, id int64) string {
	t.Helper()
	var status string
	if err := f.db.GetContext(context.Background(), &status, `SELECT status FROM lots WHERE id = $1`, id); err != nil {
		t.Fatalf("failed to read lot %d: %v", id, err)
	}
	return status
}

// Aggregates reads the cached stock_total and next_expiry of a medication.
// next_expiry is "" when NULL.
func (f *FixtureFactory) Aggregates(t *testing.T, medicationID string) (int, string) {
	t.Helper()
	var row struct {
		StockTotal int            `db:"stock_total"`
		NextExpiry sql.NullString `db:"next_expiry"`
	}
	err := f.db.GetContext(context.Background(), &row,
		`SELECT stock_total, to_char(next_expiry, 'YYYY-MM-DD') AS next_expiry FROM medications WHERE id = $1`,
		medicationID)
	if err != nil {
		t.Fatalf("failed to read medication %s: %v", medicationID, err)
	}
	return row.StockTotal, row.NextExpiry.String
}

// Count returns the number of rows in table matching the optional where clause
func (f *FixtureFactory) Count(t *testing.T, table, where string, args ...interface{}) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := f.db.GetContext(context.Background(), &n, query, args...); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}
