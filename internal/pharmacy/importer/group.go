package importer

import (
	"fmt"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
)

// Group is the stock of one lot identity summed across sheet rows
type Group struct {
	MedicationID     string
	Name             string
	ActiveIngredient string
	Provider         string
	LotCode          string
	Expiry           repository.Date
	Quantity         int
}

// Batch is a sheet reduced to one entry per lot identity
type Batch struct {
	RowsTotal int
	Skipped   int
	Groups    []Group
}

type groupKey struct {
	medicationID string
	lotCode      string
	expiry       string
}

// GroupRows drops rows without medication id, lot code or a valid expiry
// and sums the rest by (medication, lot code, expiry). Groups keep the order
// in which their identity first appeared; descriptive fields take the first
// non-empty value seen. A row or group quantity above MaxQuantity fails the
// whole batch with a validation error.
func GroupRows(rows []Row) (Batch, error) {
	b := Batch{RowsTotal: len(rows)}
	index := make(map[groupKey]int)

	for _, r := range rows {
		if r.MedicationID == "" || r.LotCode == "" || r.Expiry.IsZero() {
			b.Skipped++
			continue
		}

		if r.Quantity > MaxQuantity {
			return Batch{}, quantityTooLarge(r)
		}

		key := groupKey{r.MedicationID, r.LotCode, r.Expiry.String()}
		i, seen := index[key]
		if !seen {
			index[key] = len(b.Groups)
			b.Groups = append(b.Groups, Group{
				MedicationID:     r.MedicationID,
				Name:             r.Name,
				ActiveIngredient: r.ActiveIngredient,
				Provider:         r.Provider,
				LotCode:          r.LotCode,
				Expiry:           r.Expiry,
				Quantity:         r.Quantity,
			})
			continue
		}

		g := &b.Groups[i]
		if g.Quantity > MaxQuantity-r.Quantity {
			return Batch{}, quantityTooLarge(r)
		}
		g.Quantity += r.Quantity
		if g.Name == "" {
			g.Name = r.Name
		}
		if g.ActiveIngredient == "" {
			g.ActiveIngredient = r.ActiveIngredient
		}
		if g.Provider == "" {
			g.Provider = r.Provider
		}
	}
	return b, nil
}

func quantityTooLarge(r Row) error {
	return errors.ValidationField("quantity",
		fmt.Sprintf("line %d: lot %s of %s exceeds %d units", r.Line, r.LotCode, r.MedicationID, MaxQuantity)).
		WithMessageKey("errors.quantity_too_large")
}

// MedicationIDs lists the distinct medications of the batch in order
func (b Batch) MedicationIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, g := range b.Groups {
		if !seen[g.MedicationID] {
			seen[g.MedicationID] = true
			ids = append(ids, g.MedicationID)
		}
	}
	return ids
}
