// Package handler exposes the pharmacy ledger over HTTP.
package handler

import "github.com/go-chi/chi/v5"

// Handlers groups the pharmacy HTTP handlers
type Handlers struct {
	Dispense   *DispenseHandler
	Receipt    *ReceiptHandler
	Inventory  *InventoryHandler
	Medication *MedicationHandler
	Lot        *LotHandler
}

// Mount registers the pharmacy API on r
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		r.Route("/dispenses", func(r chi.Router) {
			r.Post("/", h.Dispense.Create)
			r.Get("/{id}", h.Dispense.Get)
			r.Get("/{id}/voucher.pdf", h.Dispense.Voucher)
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Post("/", h.Receipt.Create)
			r.Get("/{id}", h.Receipt.Get)
		})

		r.Post("/inventory/import", h.Inventory.Import)

		r.Get("/medications/{id}", h.Medication.Get)

		r.Route("/lots", func(r chi.Router) {
			r.Get("/{id}", h.Lot.Get)
			r.Post("/{id}/block", h.Lot.Block)
			r.Post("/{id}/unblock", h.Lot.Unblock)
		})
	})
}
