package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
)

// Medication visibility in the catalog
const (
	MedicationVisible = "visible"
	MedicationHidden  = "hidden"
)

// Medication is a catalog row with its cached stock aggregates
type Medication struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	ActiveIngredient string    `db:"active_ingredient" json:"active_ingredient"`
	Status           string    `db:"status" json:"status"`
	ImageRef         *string   `db:"image_ref" json:"image_ref,omitempty"`
	StockTotal       int       `db:"stock_total" json:"stock_total"`
	NextExpiry       *Date     `db:"next_expiry" json:"next_expiry"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// CatalogEntry is what a receipt knows about a medication. Empty fields
// never overwrite stored values.
type CatalogEntry struct {
	ID               string
	Name             string
	ActiveIngredient string
	Status           string
}

// MedicationRepository handles the catalog and its aggregates
type MedicationRepository struct {
	db      *database.DB
	builder sq.StatementBuilderType
}

// NewMedicationRepository creates a new medication repository
func NewMedicationRepository(db *database.DB) *MedicationRepository {
	return &MedicationRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureCatalog creates missing catalog rows and fills empty name and
// active ingredient on existing ones. A non-empty Status is applied as is.
func (r *MedicationRepository) EnsureCatalog(ctx context.Context, entries ...CatalogEntry) error {
	entries = mergeEntries(entries)
	if len(entries) == 0 {
		return nil
	}

	q := r.builder.Insert("medications").Columns("id", "name", "active_ingredient", "status")
	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = MedicationVisible
		}
		q = q.Values(e.ID, e.Name, e.ActiveIngredient, status)
	}
	q = q.Suffix(`ON CONFLICT (id) DO UPDATE SET
		name = CASE WHEN medications.name = '' THEN EXCLUDED.name ELSE medications.name END,
		active_ingredient = CASE WHEN medications.active_ingredient = '' THEN EXCLUDED.active_ingredient ELSE medications.active_ingredient END,
		updated_at = NOW()`)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build catalog upsert: %w", err)
	}
	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, args...); err != nil {
		return database.MapError(err)
	}

	return r.applyStatus(ctx, entries)
}

// mergeEntries collapses repeated ids, since one INSERT ... ON CONFLICT
// cannot touch the same row twice. The first non-empty value wins.
func mergeEntries(entries []CatalogEntry) []CatalogEntry {
	index := make(map[string]int, len(entries))
	merged := make([]CatalogEntry, 0, len(entries))
	for _, e := range entries {
		i, seen := index[e.ID]
		if !seen {
			index[e.ID] = len(merged)
			merged = append(merged, e)
			continue
		}
		m := &merged[i]
		if m.Name == "" {
			m.Name = e.Name
		}
		if m.ActiveIngredient == "" {
			m.ActiveIngredient = e.ActiveIngredient
		}
		if m.Status == "" {
			m.Status = e.Status
		}
	}
	return merged
}

// applyStatus sets explicit visibility carried by a receipt; the upsert
// above only applies it to new rows.
func (r *MedicationRepository) applyStatus(ctx context.Context, entries []CatalogEntry) error {
	for _, e := range entries {
		if e.Status == "" {
			continue
		}
		_, err := r.db.Querier(ctx).ExecContext(ctx,
			`UPDATE medications SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> $2`,
			e.ID, e.Status)
		if err != nil {
			return database.MapError(err)
		}
	}
	return nil
}

// RefreshAggregates recomputes stock_total and next_expiry from the
// dispensable lots of the given medications. Call it inside the transaction
// that moved stock.
//
// The medication rows are locked by a statement of their own so that the
// recompute, a separate statement, runs on a snapshot taken after any
// concurrent writer of the same medications has committed.
func (r *MedicationRepository) RefreshAggregates(ctx context.Context, ids []string, today Date) error {
	if len(ids) == 0 {
		return nil
	}

	q := r.db.Querier(ctx)
	var locked []string
	if err := q.SelectContext(ctx, &locked,
		`SELECT id FROM medications WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(ids)); err != nil {
		return database.MapError(err)
	}

	query := `
		UPDATE medications m SET
			stock_total = COALESCE((
				SELECT SUM(l.quantity) FROM lots l
				WHERE l.medication_id = m.id AND l.status = 'ok' AND l.expiry_date >= $2
			), 0),
			next_expiry = (
				SELECT MIN(l.expiry_date) FROM lots l
				WHERE l.medication_id = m.id AND l.status = 'ok' AND l.quantity > 0 AND l.expiry_date >= $2
			),
			updated_at = NOW()
		WHERE m.id = ANY($1)
	`
	if _, err := q.ExecContext(ctx, query, pq.Array(ids), today); err != nil {
		return database.MapError(err)
	}
	return nil
}

// GetByID gets a medication by ID
func (r *MedicationRepository) GetByID(ctx context.Context, id string) (*Medication, error) {
	var m Medication
	query := `
		SELECT id, name, active_ingredient, status, image_ref, stock_total, next_expiry, created_at, updated_at
		FROM medications WHERE id = $1
	`
	if err := r.db.Querier(ctx).GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medication")
		}
		return nil, database.MapError(err)
	}
	return &m, nil
}

// ExistingIDs returns which of ids are present in the catalog
func (r *MedicationRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var existing []string
	if err := r.db.Querier(ctx).SelectContext(ctx, &existing,
		`SELECT id FROM medications WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, database.MapError(err)
	}
	for _, id := range existing {
		found[id] = true
	}
	return found, nil
}
