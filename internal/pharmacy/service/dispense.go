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
	"github.com/shopspring/decimal"
)

// DispenseItem is one requested medication of a sale
type DispenseItem struct {
	MedicationID string          `json:"medication_id" validate:"required"`
	Quantity     int             `json:"quantity" validate:"gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// DispenseRequest is the payload of a sale
type DispenseRequest struct {
	ID             string         `json:"id,omitempty"`
	CashRegisterID *string        `json:"cash_register_id,omitempty"`
	State          string         `json:"state,omitempty" validate:"omitempty,oneof=active restricted"`
	Description    *string        `json:"description,omitempty"`
	IssueDate      string         `json:"issue_date,omitempty"`
	PatientID      string         `json:"patient_id" validate:"required"`
	Items          []DispenseItem `json:"items" validate:"required,min=1,dive"`
}

func (r *DispenseRequest) validate() error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	for i := range r.Items {
		r.Items[i].MedicationID = strings.TrimSpace(r.Items[i].MedicationID)
	}
	if err := httputil.Validate(r); err != nil {
		return err
	}
	for i, item := range r.Items {
		if item.UnitPrice.IsNegative() {
			return errors.ValidationField(fmt.Sprintf("items[%d].unit_price", i), "must be greater than or equal to 0")
		}
		if !item.UnitPrice.Equal(item.UnitPrice.Round(2)) {
			return errors.ValidationField(fmt.Sprintf("items[%d].unit_price", i), "must have at most 2 decimals")
		}
	}
	return nil
}

func (r *DispenseRequest) medicationIDs() []string {
	ids := make([]string, len(r.Items))
	for i, item := range r.Items {
		ids[i] = item.MedicationID
	}
	return distinct(ids)
}

// DispenseResult is returned after a sale commits
type DispenseResult struct {
	OK         bool            `json:"ok"`
	ID         string          `json:"id"`
	NetValue   decimal.Decimal `json:"net_value"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// DispenseDetail is a committed sale with its lines and lot draws
type DispenseDetail struct {
	*repository.Dispense
	Lines []repository.DispenseLine `json:"lines"`
}

// DispenseService records sales against the lot ledger, drawing stock
// first-expired-first-out
type DispenseService struct {
	db           *database.DB
	dispenseRepo *repository.DispenseRepository
	lotRepo      *repository.LotRepository
	medRepo      *repository.MedicationRepository
	publisher    *events.PharmacyEventPublisher
	opts         Options
	logger       *logger.Logger
}

// NewDispenseService creates a new dispense service
func NewDispenseService(
	db *database.DB,
	dispenseRepo *repository.DispenseRepository,
	lotRepo *repository.LotRepository,
	medRepo *repository.MedicationRepository,
	publisher *events.PharmacyEventPublisher,
	opts Options,
	log *logger.Logger,
) *DispenseService {
	return &DispenseService{
		db:           db,
		dispenseRepo: dispenseRepo,
		lotRepo:      lotRepo,
		medRepo:      medRepo,
		publisher:    publisher,
		opts:         opts,
		logger:       log.WithComponent("dispense"),
	}
}

// Record commits a sale atomically. Every line locks the available lots of
// its medication, takes units in expiry order and decrements them; any
// shortage aborts the whole sale with InsufficientStock.
func (s *DispenseService) Record(ctx context.Context, req DispenseRequest) (*DispenseResult, error) {
	operator := actor.FromContext(ctx)
	if operator == nil {
		return nil, errors.Unauthorized("operator identity required")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.opts.now()
	today := s.opts.today()
	issueDate, err := ParseIssueDate(req.IssueDate, s.opts.location(), now)
	if err != nil {
		return nil, err
	}

	d := &repository.Dispense{
		ID:             strings.TrimSpace(req.ID),
		CashRegisterID: req.CashRegisterID,
		State:          req.State,
		Description:    req.Description,
		IssueDate:      issueDate,
		PatientID:      req.PatientID,
		OperatorID:     operator.ID,
	}
	if d.ID == "" {
		d.ID = NewDispenseID(now)
	}
	log := s.logger.WithDispenseID(d.ID).WithOperator(operator.ID)
	medicationIDs := req.medicationIDs()

	var lines []repository.DispenseLine
	err = s.db.RunInTx(ctx, func(ctx context.Context) error {
		lines = lines[:0]

		known, err := s.medRepo.ExistingIDs(ctx, medicationIDs)
		if err != nil {
			return err
		}
		for i, item := range req.Items {
			if !known[item.MedicationID] {
				return errors.ValidationField(fmt.Sprintf("items[%d].medication_id", i), "unknown medication")
			}
		}

		if err := s.dispenseRepo.Create(ctx, d); err != nil {
			return err
		}

		total := decimal.Zero
		for i, item := range req.Items {
			line, err := s.dispenseLine(ctx, log, d.ID, i+1, item, today)
			if err != nil {
				return err
			}
			total = total.Add(line.Subtotal)
			lines = append(lines, *line)
		}

		if err := s.medRepo.RefreshAggregates(ctx, medicationIDs, today); err != nil {
			return err
		}
		if err := s.dispenseRepo.UpdateTotals(ctx, d.ID, total, total); err != nil {
			return err
		}
		d.NetValue = total
		d.TotalValue = total
		return nil
	}, database.WithLockTimeout(s.opts.LockTimeout))
	if err != nil {
		log.Warn().Err(err).Str("code", errors.CodeOf(err)).Msg("dispense aborted")
		return nil, err
	}

	log.Info().
		Str("patient_id", d.PatientID).
		Int("lines", len(lines)).
		Str("total_value", d.TotalValue.StringFixed(2)).
		Msg("dispense committed")
	s.publisher.PublishDispenseCommitted(ctx, d, lines)

	return &DispenseResult{
		OK:         true,
		ID:         d.ID,
		NetValue:   d.NetValue,
		TotalValue: d.TotalValue,
	}, nil
}

// dispenseLine allocates one line against the locked lots and writes the
// line, its allocations and the lot decrements
func (s *DispenseService) dispenseLine(ctx context.Context, log *logger.Logger, dispenseID string, lineNo int, item DispenseItem, today repository.Date) (*repository.DispenseLine, error) {
	lots, err := s.lotRepo.LockAvailableLots(ctx, item.MedicationID, today)
	if err != nil {
		return nil, err
	}

	plan, missing := Allocate(lots, item.Quantity)
	if missing > 0 {
		return nil, errors.InsufficientStock(item.MedicationID, missing)
	}

	line := &repository.DispenseLine{
		DispenseID:   dispenseID,
		LineNo:       lineNo,
		MedicationID: item.MedicationID,
		Quantity:     item.Quantity,
		UnitPrice:    item.UnitPrice,
		Subtotal:     item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		Allocations:  make([]repository.Allocation, 0, len(plan)),
	}
	if err := s.dispenseRepo.AddLine(ctx, line); err != nil {
		return nil, err
	}

	for _, take := range plan {
		a := repository.Allocation{
			LineID:     line.ID,
			LotID:      take.LotID,
			LotCode:    take.LotCode,
			ExpiryDate: take.ExpiryDate,
			Quantity:   take.Quantity,
		}
		if err := s.dispenseRepo.AddAllocation(ctx, &a); err != nil {
			return nil, err
		}
		if err := s.lotRepo.DecrementLot(ctx, take.LotID, take.Quantity); err != nil {
			if errors.Is(err, errors.ErrInvariantViolation) {
				log.Error().
					Err(err).
					Str("medication_id", item.MedicationID).
					Int("requested", item.Quantity).
					Int64("lot_id", take.LotID).
					Interface("plan", plan).
					Msg("lot decrement broke stock invariant")
			}
			return nil, err
		}
		line.Allocations = append(line.Allocations, a)
	}
	return line, nil
}

// Get returns a committed sale with its lines and allocations
func (s *DispenseService) Get(ctx context.Context, id string) (*DispenseDetail, error) {
	d, err := s.dispenseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.dispenseRepo.ListLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DispenseDetail{Dispense: d, Lines: lines}, nil
}
