package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/events"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/actor"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/httputil"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
	"github.com/saludmunicipal/farmacia-backend/pkg/messaging"
	"github.com/shopspring/decimal"
)

// ReceiptHeader is the optional document header of a manual receipt
type ReceiptHeader struct {
	ID            string           `json:"id,omitempty"`
	IssueDate     string           `json:"issue_date,omitempty"`
	State         string           `json:"state,omitempty" validate:"omitempty,oneof=active restricted"`
	Description   *string          `json:"description,omitempty"`
	InvoiceNumber *string          `json:"invoice_number,omitempty"`
	InvoiceDate   *repository.Date `json:"invoice_date,omitempty"`
	ConceptID     *string          `json:"concept_id,omitempty"`
	ProviderID    *string          `json:"provider_id,omitempty"`
}

// ReceiptMedication identifies the medication of a receipt line. Name and
// active ingredient are only needed for medications not yet in the catalog.
type ReceiptMedication struct {
	ID               string `json:"id" validate:"required"`
	Name             string `json:"name,omitempty"`
	ActiveIngredient string `json:"active_ingredient,omitempty"`
	State            string `json:"state,omitempty" validate:"omitempty,oneof=visible hidden"`
}

// ReceiptItem is one lot of incoming stock
type ReceiptItem struct {
	Medication ReceiptMedication `json:"medication"`
	LotCode    string            `json:"lot_code" validate:"required"`
	ExpiryDate repository.Date   `json:"expiry_date"`
	Quantity   int               `json:"quantity" validate:"gt=0"`
	UnitPrice  *decimal.Decimal  `json:"unit_price,omitempty"`
	Provider   string            `json:"provider,omitempty"`
}

// ReceiptRequest is the payload of a manual goods receipt
type ReceiptRequest struct {
	Header *ReceiptHeader `json:"header,omitempty"`
	Items  []ReceiptItem  `json:"items" validate:"required,min=1,dive"`
}

func (r *ReceiptRequest) validate() error {
	for i := range r.Items {
		item := &r.Items[i]
		item.Medication.ID = strings.TrimSpace(item.Medication.ID)
		item.Medication.Name = strings.TrimSpace(item.Medication.Name)
		item.Medication.ActiveIngredient = strings.TrimSpace(item.Medication.ActiveIngredient)
		item.LotCode = strings.TrimSpace(item.LotCode)
		item.Provider = strings.TrimSpace(item.Provider)
	}
	if err := httputil.Validate(r); err != nil {
		return err
	}
	for i, item := range r.Items {
		if item.ExpiryDate.IsZero() {
			return errors.ValidationField(fmt.Sprintf("items[%d].expiry_date", i), "this field is required")
		}
		if item.UnitPrice == nil {
			continue
		}
		if item.UnitPrice.IsNegative() {
			return errors.ValidationField(fmt.Sprintf("items[%d].unit_price", i), "must be greater than or equal to 0")
		}
		if !item.UnitPrice.Equal(item.UnitPrice.Round(2)) {
			return errors.ValidationField(fmt.Sprintf("items[%d].unit_price", i), "must have at most 2 decimals")
		}
	}
	return nil
}

func (r *ReceiptRequest) catalogEntries() []repository.CatalogEntry {
	entries := make([]repository.CatalogEntry, len(r.Items))
	for i, item := range r.Items {
		entries[i] = repository.CatalogEntry{
			ID:               item.Medication.ID,
			Name:             item.Medication.Name,
			ActiveIngredient: item.Medication.ActiveIngredient,
			Status:           item.Medication.State,
		}
	}
	return entries
}

// checkNewMedications rejects medications that are neither in the catalog
// nor named anywhere in the request
func (r *ReceiptRequest) checkNewMedications(known map[string]bool) error {
	named := make(map[string]bool)
	for _, item := range r.Items {
		if item.Medication.Name != "" {
			named[item.Medication.ID] = true
		}
	}
	for i, item := range r.Items {
		id := item.Medication.ID
		if !known[id] && !named[id] {
			return errors.ValidationField(fmt.Sprintf("items[%d].medication.name", i), "required for a new medication")
		}
	}
	return nil
}

// ReceiptResult is returned after a receipt commits. ReceiptID is null for
// header-less receipts.
type ReceiptResult struct {
	OK         bool    `json:"ok"`
	ReceiptID  *string `json:"receipt_id"`
	ItemsCount int     `json:"items_count"`
}

// ReceiptDetail is a stored receipt with its lines
type ReceiptDetail struct {
	*repository.GoodsReceipt
	Lines []repository.ReceiptLine `json:"lines"`
}

// ReceiptService records manual goods receipts into the lot ledger
type ReceiptService struct {
	db          *database.DB
	receiptRepo *repository.ReceiptRepository
	lotRepo     *repository.LotRepository
	medRepo     *repository.MedicationRepository
	publisher   *events.PharmacyEventPublisher
	opts        Options
	logger      *logger.Logger
}

// NewReceiptService creates a new receipt service
func NewReceiptService(
	db *database.DB,
	receiptRepo *repository.ReceiptRepository,
	lotRepo *repository.LotRepository,
	medRepo *repository.MedicationRepository,
	publisher *events.PharmacyEventPublisher,
	opts Options,
	log *logger.Logger,
) *ReceiptService {
	return &ReceiptService{
		db:          db,
		receiptRepo: receiptRepo,
		lotRepo:     lotRepo,
		medRepo:     medRepo,
		publisher:   publisher,
		opts:        opts,
		logger:      log.WithComponent("receipt"),
	}
}

// ReceiveManual merges every item into its lot and, when a header is given,
// stores the receipt document with one line per item. All items commit or
// none do.
func (s *ReceiptService) ReceiveManual(ctx context.Context, req ReceiptRequest) (*ReceiptResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.opts.now()
	var operatorID *string
	if a := actor.FromContext(ctx); a != nil {
		operatorID = &a.ID
	}

	var receipt *repository.GoodsReceipt
	if h := req.Header; h != nil {
		issueDate, err := ParseIssueDate(h.IssueDate, s.opts.location(), now)
		if err != nil {
			return nil, err
		}
		receipt = &repository.GoodsReceipt{
			ID:            strings.TrimSpace(h.ID),
			IssueDate:     issueDate,
			State:         h.State,
			Description:   h.Description,
			InvoiceNumber: h.InvoiceNumber,
			InvoiceDate:   h.InvoiceDate,
			ConceptID:     h.ConceptID,
			ProviderID:    h.ProviderID,
			OperatorID:    operatorID,
		}
		if receipt.ID == "" {
			receipt.ID = NewReceiptID(now, s.opts.location())
		}
	}

	entries := req.catalogEntries()
	medicationIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		medicationIDs = append(medicationIDs, e.ID)
	}
	medicationIDs = distinct(medicationIDs)
	today := s.opts.today()

	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		known, err := s.medRepo.ExistingIDs(ctx, medicationIDs)
		if err != nil {
			return err
		}
		if err := req.checkNewMedications(known); err != nil {
			return err
		}

		if receipt != nil {
			if err := s.receiptRepo.Create(ctx, receipt); err != nil {
				return err
			}
		}
		if err := s.medRepo.EnsureCatalog(ctx, entries...); err != nil {
			return err
		}

		for i, item := range req.Items {
			lotID, err := s.lotRepo.UpsertLot(ctx, repository.LotInput{
				MedicationID: item.Medication.ID,
				LotCode:      item.LotCode,
				ExpiryDate:   item.ExpiryDate,
				Quantity:     item.Quantity,
				Provider:     item.Provider,
			}, today)
			if err != nil {
				return err
			}
			if receipt == nil {
				continue
			}

			line := &repository.ReceiptLine{
				ReceiptID:    receipt.ID,
				LineNo:       i + 1,
				MedicationID: item.Medication.ID,
				LotID:        lotID,
				LotCode:      item.LotCode,
				ExpiryDate:   item.ExpiryDate,
				Quantity:     item.Quantity,
			}
			if item.UnitPrice != nil {
				line.UnitPrice = decimal.NewNullDecimal(*item.UnitPrice)
			}
			if item.Provider != "" {
				line.Provider = &item.Provider
			}
			if err := s.receiptRepo.AddLine(ctx, line); err != nil {
				return err
			}
		}

		return s.medRepo.RefreshAggregates(ctx, medicationIDs, today)
	}, database.WithLockTimeout(s.opts.LockTimeout))
	if err != nil {
		return nil, err
	}

	result := &ReceiptResult{OK: true, ItemsCount: len(req.Items)}
	event := messaging.ReceiptRecordedEvent{
		ItemsCount:    len(req.Items),
		MedicationIDs: medicationIDs,
	}
	if receipt != nil {
		result.ReceiptID = &receipt.ID
		event.ReceiptID = receipt.ID
	}
	if operatorID != nil {
		event.OperatorID = *operatorID
	}

	s.logger.Info().
		Str("receipt_id", event.ReceiptID).
		Int("items", len(req.Items)).
		Msg("goods receipt recorded")
	s.publisher.PublishReceiptRecorded(ctx, event)

	return result, nil
}

// Get returns a stored receipt with its lines
func (s *ReceiptService) Get(ctx context.Context, id string) (*ReceiptDetail, error) {
	receipt, err := s.receiptRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.receiptRepo.ListLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ReceiptDetail{GoodsReceipt: receipt, Lines: lines}, nil
}

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
