package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Dispense is the header of a committed sale
type Dispense struct {
	ID             string          `db:"id" json:"id"`
	CashRegisterID *string         `db:"cash_register_id" json:"cash_register_id,omitempty"`
	State          string          `db:"state" json:"state"`
	Description    *string         `db:"description" json:"description,omitempty"`
	IssueDate      time.Time       `db:"issue_date" json:"issue_date"`
	PatientID      string          `db:"patient_id" json:"patient_id"`
	OperatorID     string          `db:"operator_id" json:"operator_id"`
	NetValue       decimal.Decimal `db:"net_value" json:"net_value"`
	TotalValue     decimal.Decimal `db:"total_value" json:"total_value"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// DispenseLine is one medication of a sale
type DispenseLine struct {
	ID               int64           `db:"id" json:"id"`
	DispenseID       string          `db:"dispense_id" json:"-"`
	LineNo           int             `db:"line_no" json:"line_no"`
	MedicationID     string          `db:"medication_id" json:"medication_id"`
	MedicationName   *string         `db:"medication_name" json:"medication_name,omitempty"`
	ActiveIngredient *string         `db:"active_ingredient" json:"active_ingredient,omitempty"`
	Quantity         int             `db:"quantity" json:"quantity"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal         decimal.Decimal `db:"subtotal" json:"subtotal"`
	Allocations      []Allocation    `db:"-" json:"allocations"`
}

// Allocation records how many units of a line came from one lot
type Allocation struct {
	ID         int64  `db:"id" json:"-"`
	LineID     int64  `db:"line_id" json:"-"`
	LotID      int64  `db:"lot_id" json:"lot_id"`
	LotCode    string `db:"lot_code" json:"lot_code"`
	ExpiryDate Date   `db:"expiry_date" json:"expiry_date"`
	Quantity   int    `db:"quantity" json:"quantity"`
}

// DispenseRepository handles dispense persistence
type DispenseRepository struct {
	db      *database.DB
	builder sq.StatementBuilderType
}

// NewDispenseRepository creates a new dispense repository
func NewDispenseRepository(db *database.DB) *DispenseRepository {
	return &DispenseRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a dispense header with zero totals
func (r *DispenseRepository) Create(ctx context.Context, d *Dispense) error {
	if d.State == "" {
		d.State = StateActive
	}
	d.NetValue = decimal.Zero
	d.TotalValue = decimal.Zero

	query := `
		INSERT INTO dispenses (
			id, cash_register_id, state, description, issue_date,
			patient_id, operator_id, net_value, total_value
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0)
		RETURNING created_at
	`
	err := r.db.Querier(ctx).QueryRowxContext(ctx, query,
		d.ID, d.CashRegisterID, d.State, d.Description, d.IssueDate,
		d.PatientID, d.OperatorID,
	).Scan(&d.CreatedAt)
	return database.MapError(err)
}

// AddLine inserts a dispense line
func (r *DispenseRepository) AddLine(ctx context.Context, line *DispenseLine) error {
	query := `
		INSERT INTO dispense_lines (dispense_id, line_no, medication_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.Querier(ctx).QueryRowxContext(ctx, query,
		line.DispenseID, line.LineNo, line.MedicationID, line.Quantity, line.UnitPrice, line.Subtotal,
	).Scan(&line.ID)
	return database.MapError(err)
}

// AddAllocation records the units a line took from a lot
func (r *DispenseRepository) AddAllocation(ctx context.Context, a *Allocation) error {
	query := `
		INSERT INTO dispense_allocations (line_id, lot_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := r.db.Querier(ctx).QueryRowxContext(ctx, query, a.LineID, a.LotID, a.Quantity).Scan(&a.ID)
	return database.MapError(err)
}

// UpdateTotals sets the header totals once every line is written
func (r *DispenseRepository) UpdateTotals(ctx context.Context, id string, net, total decimal.Decimal) error {
	result, err := r.db.Querier(ctx).ExecContext(ctx,
		`UPDATE dispenses SET net_value = $2, total_value = $3 WHERE id = $1`, id, net, total)
	if err != nil {
		return database.MapError(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("dispense")
	}
	return nil
}

// GetByID gets a dispense header by ID
func (r *DispenseRepository) GetByID(ctx context.Context, id string) (*Dispense, error) {
	var d Dispense
	query := `
		SELECT id, cash_register_id, state, description, issue_date,
		       patient_id, operator_id, net_value, total_value, created_at
		FROM dispenses WHERE id = $1
	`
	if err := r.db.Querier(ctx).GetContext(ctx, &d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("dispense")
		}
		return nil, database.MapError(err)
	}
	return &d, nil
}

// ListLines lists the lines of a dispense with their allocations joined to
// lot code and expiry
func (r *DispenseRepository) ListLines(ctx context.Context, dispenseID string) ([]DispenseLine, error) {
	query, args, err := r.builder.Select(
		"dl.id", "dl.dispense_id", "dl.line_no", "dl.medication_id",
		"m.name AS medication_name", "m.active_ingredient",
		"dl.quantity", "dl.unit_price", "dl.subtotal",
	).
		From("dispense_lines dl").
		LeftJoin("medications m ON m.id = dl.medication_id").
		Where(sq.Eq{"dl.dispense_id": dispenseID}).
		OrderBy("dl.line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build dispense lines query: %w", err)
	}

	lines := []DispenseLine{}
	if err := r.db.Querier(ctx).SelectContext(ctx, &lines, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	if len(lines) == 0 {
		return lines, nil
	}

	allocations, err := r.listAllocations(ctx, dispenseID)
	if err != nil {
		return nil, err
	}

	byLine := make(map[int64]int, len(lines))
	for i := range lines {
		lines[i].Allocations = []Allocation{}
		byLine[lines[i].ID] = i
	}
	for _, a := range allocations {
		if i, ok := byLine[a.LineID]; ok {
			lines[i].Allocations = append(lines[i].Allocations, a)
		}
	}
	return lines, nil
}

func (r *DispenseRepository) listAllocations(ctx context.Context, dispenseID string) ([]Allocation, error) {
	query, args, err := r.builder.Select(
		"da.id", "da.line_id", "da.lot_id", "l.lot_code", "l.expiry_date", "da.quantity",
	).
		From("dispense_allocations da").
		Join("dispense_lines dl ON dl.id = da.line_id").
		Join("lots l ON l.id = da.lot_id").
		Where(sq.Eq{"dl.dispense_id": dispenseID}).
		OrderBy("l.expiry_date", "l.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build allocation query: %w", err)
	}

	var allocations []Allocation
	if err := r.db.Querier(ctx).SelectContext(ctx, &allocations, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return allocations, nil
}
