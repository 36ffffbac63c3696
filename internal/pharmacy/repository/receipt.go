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

// Document states shared by receipts and dispenses
const (
	StateActive     = "active"
	StateRestricted = "restricted"
)

// GoodsReceipt is the optional header of a manual receipt
type GoodsReceipt struct {
	ID            string    `db:"id" json:"id"`
	IssueDate     time.Time `db:"issue_date" json:"issue_date"`
	State         string    `db:"state" json:"state"`
	Description   *string   `db:"description" json:"description,omitempty"`
	InvoiceNumber *string   `db:"invoice_number" json:"invoice_number,omitempty"`
	InvoiceDate   *Date     `db:"invoice_date" json:"invoice_date,omitempty"`
	ConceptID     *string   `db:"concept_id" json:"concept_id,omitempty"`
	ProviderID    *string   `db:"provider_id" json:"provider_id,omitempty"`
	OperatorID    *string   `db:"operator_id" json:"operator_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ReceiptLine records one line of a receipt and the lot it merged into
type ReceiptLine struct {
	ID               int64               `db:"id" json:"id"`
	ReceiptID        string              `db:"receipt_id" json:"receipt_id"`
	LineNo           int                 `db:"line_no" json:"line_no"`
	MedicationID     string              `db:"medication_id" json:"medication_id"`
	MedicationName   *string             `db:"medication_name" json:"medication_name,omitempty"`
	ActiveIngredient *string             `db:"active_ingredient" json:"active_ingredient,omitempty"`
	LotID            int64               `db:"lot_id" json:"lot_id"`
	LotCode          string              `db:"lot_code" json:"lot_code"`
	ExpiryDate       Date                `db:"expiry_date" json:"expiry_date"`
	Quantity         int                 `db:"quantity" json:"quantity"`
	UnitPrice        decimal.NullDecimal `db:"unit_price" json:"unit_price"`
	Provider         *string             `db:"provider" json:"provider,omitempty"`
}

// ReceiptRepository handles goods receipt persistence
type ReceiptRepository struct {
	db      *database.DB
	builder sq.StatementBuilderType
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *database.DB) *ReceiptRepository {
	return &ReceiptRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a receipt header
func (r *ReceiptRepository) Create(ctx context.Context, g *GoodsReceipt) error {
	if g.State == "" {
		g.State = StateActive
	}

	query := `
		INSERT INTO goods_receipts (
			id, issue_date, state, description, invoice_number, invoice_date,
			concept_id, provider_id, operator_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.Querier(ctx).QueryRowxContext(ctx, query,
		g.ID, g.IssueDate, g.State, g.Description, g.InvoiceNumber, g.InvoiceDate,
		g.ConceptID, g.ProviderID, g.OperatorID,
	).Scan(&g.CreatedAt)
	return database.MapError(err)
}

// AddLine inserts a receipt line
func (r *ReceiptRepository) AddLine(ctx context.Context, line *ReceiptLine) error {
	query := `
		INSERT INTO goods_receipt_lines (
			receipt_id, line_no, medication_id, lot_id, lot_code, expiry_date,
			quantity, unit_price, provider
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := r.db.Querier(ctx).QueryRowxContext(ctx, query,
		line.ReceiptID, line.LineNo, line.MedicationID, line.LotID, line.LotCode, line.ExpiryDate,
		line.Quantity, line.UnitPrice, line.Provider,
	).Scan(&line.ID)
	return database.MapError(err)
}

// GetByID gets a receipt header by ID
func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*GoodsReceipt, error) {
	var g GoodsReceipt
	query := `
		SELECT id, issue_date, state, description, invoice_number, invoice_date,
		       concept_id, provider_id, operator_id, created_at
		FROM goods_receipts WHERE id = $1
	`
	if err := r.db.Querier(ctx).GetContext(ctx, &g, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("receipt")
		}
		return nil, database.MapError(err)
	}
	return &g, nil
}

// ListLines lists the lines of a receipt with their medication names
func (r *ReceiptRepository) ListLines(ctx context.Context, receiptID string) ([]ReceiptLine, error) {
	query, args, err := r.builder.Select(
		"i.id", "i.receipt_id", "i.line_no", "i.medication_id",
		"m.name AS medication_name", "m.active_ingredient",
		"i.lot_id", "i.lot_code", "i.expiry_date", "i.quantity", "i.unit_price", "i.provider",
	).
		From("goods_receipt_lines i").
		LeftJoin("medications m ON m.id = i.medication_id").
		Where(sq.Eq{"i.receipt_id": receiptID}).
		OrderBy("i.line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build receipt lines query: %w", err)
	}

	lines := []ReceiptLine{}
	if err := r.db.Querier(ctx).SelectContext(ctx, &lines, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return lines, nil
}
