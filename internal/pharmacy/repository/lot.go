package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
)

// Lot lifecycle status
const (
	LotOK      = "ok"
	LotExpired = "expired"
	LotBlocked = "blocked"
)

// Lot is a batch of one medication sharing lot code and expiry date
type Lot struct {
	ID           int64     `db:"id" json:"id"`
	MedicationID string    `db:"medication_id" json:"medication_id"`
	LotCode      string    `db:"lot_code" json:"lot_code"`
	ExpiryDate   Date      `db:"expiry_date" json:"expiry_date"`
	Quantity     int       `db:"quantity" json:"quantity"`
	Provider     *string   `db:"provider" json:"provider,omitempty"`
	Status       string    `db:"status" json:"status"`
	ReceivedAt   time.Time `db:"received_at" json:"received_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// LotInput is one unit of incoming stock
type LotInput struct {
	MedicationID string
	LotCode      string
	ExpiryDate   Date
	Quantity     int
	Provider     string
}

// LotFilter narrows ListByMedication
type LotFilter struct {
	Status        string
	OnlyAvailable bool
}

// ExpiredLot identifies a lot moved to expired by the sweeper
type ExpiredLot struct {
	ID           int64  `db:"id"`
	MedicationID string `db:"medication_id"`
}

const lotColumns = "id, medication_id, lot_code, expiry_date, quantity, provider, status, received_at, updated_at"

// upsertLotQuery merges into the lot with the same (medication, lot code,
// expiry). The conflict target includes the expiry, so a merge never moves
// the stored date: a different expiry is a different lot.
const upsertLotQuery = `
	INSERT INTO lots (medication_id, lot_code, expiry_date, quantity, provider, status)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	ON CONFLICT (medication_id, lot_code, expiry_date) DO UPDATE SET
		quantity = lots.quantity + EXCLUDED.quantity,
		provider = COALESCE(EXCLUDED.provider, lots.provider),
		status = CASE
			WHEN lots.status = 'blocked' THEN lots.status
			WHEN EXCLUDED.status = 'expired' THEN 'expired'
			ELSE lots.status
		END,
		updated_at = NOW()
	RETURNING id
`

// LotRepository handles lot persistence
type LotRepository struct {
	db      *database.DB
	builder sq.StatementBuilderType
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// UpsertLot adds quantity to the lot identified by (medication, lot code,
// expiry), creating it when absent. A lot whose expiry precedes today is
// stored as expired.
func (r *LotRepository) UpsertLot(ctx context.Context, in LotInput, today Date) (int64, error) {
	status := LotOK
	if in.ExpiryDate.Before(today) {
		status = LotExpired
	}

	var id int64
	err := r.db.Querier(ctx).GetContext(ctx, &id, upsertLotQuery,
		in.MedicationID, in.LotCode, in.ExpiryDate, in.Quantity, in.Provider, status)
	if err != nil {
		return 0, database.MapError(err)
	}
	return id, nil
}

// LockAvailableLots returns the dispensable lots of a medication in FEFO
// order, holding row locks until the surrounding transaction ends. Lots whose
// expiry precedes today are excluded whether or not the sweeper has marked
// them expired yet.
func (r *LotRepository) LockAvailableLots(ctx context.Context, medicationID string, today Date) ([]Lot, error) {
	var lots []Lot
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE medication_id = $1 AND status = 'ok' AND quantity > 0 AND expiry_date >= $2
		ORDER BY expiry_date ASC, id ASC
		FOR UPDATE
	`
	if err := r.db.Querier(ctx).SelectContext(ctx, &lots, query, medicationID, today); err != nil {
		return nil, database.MapError(err)
	}
	return lots, nil
}

// DecrementLot removes amount units from a lot. The lot must hold at least
// amount units.
func (r *LotRepository) DecrementLot(ctx context.Context, lotID int64, amount int) error {
	result, err := r.db.Querier(ctx).ExecContext(ctx,
		`UPDATE lots SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1 AND quantity >= $2`,
		lotID, amount)
	if err != nil {
		return database.MapError(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.InvariantViolation(fmt.Sprintf("lot %d cannot release %d units", lotID, amount))
	}
	return nil
}

// ListByMedication lists the lots of a medication ordered by expiry, id
func (r *LotRepository) ListByMedication(ctx context.Context, medicationID string, filter LotFilter) ([]Lot, error) {
	q := r.builder.Select(lotColumns).
		From("lots").
		Where(sq.Eq{"medication_id": medicationID}).
		OrderBy("expiry_date ASC", "id ASC")

	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.OnlyAvailable {
		q = q.Where(sq.Gt{"quantity": 0})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lot query: %w", err)
	}

	lots := []Lot{}
	if err := r.db.Querier(ctx).SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return lots, nil
}

// GetByID gets a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, id int64) (*Lot, error) {
	return r.get(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id)
}

// LockByID gets a lot by ID holding its row lock
func (r *LotRepository) LockByID(ctx context.Context, id int64) (*Lot, error) {
	return r.get(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1 FOR UPDATE`, id)
}

func (r *LotRepository) get(ctx context.Context, query string, id int64) (*Lot, error) {
	var lot Lot
	if err := r.db.Querier(ctx).GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, database.MapError(err)
	}
	return &lot, nil
}

// SetStatus changes the lifecycle status of a lot
func (r *LotRepository) SetStatus(ctx context.Context, id int64, status string) error {
	result, err := r.db.Querier(ctx).ExecContext(ctx,
		`UPDATE lots SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return database.MapError(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}
	return nil
}

// MarkExpired moves every ok lot expiring before today to expired and
// returns the lots it touched.
func (r *LotRepository) MarkExpired(ctx context.Context, today Date) ([]ExpiredLot, error) {
	var expired []ExpiredLot
	query := `
		UPDATE lots SET status = 'expired', updated_at = NOW()
		WHERE status = 'ok' AND expiry_date < $1
		RETURNING id, medication_id
	`
	if err := r.db.Querier(ctx).SelectContext(ctx, &expired, query, today); err != nil {
		return nil, database.MapError(err)
	}
	return expired, nil
}
