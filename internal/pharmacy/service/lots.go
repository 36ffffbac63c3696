package service

import (
	"context"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/events"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/actor"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
)

// LotService handles manual quarantine of lots
type LotService struct {
	db        *database.DB
	lotRepo   *repository.LotRepository
	medRepo   *repository.MedicationRepository
	publisher *events.PharmacyEventPublisher
	opts      Options
	logger    *logger.Logger
}

// NewLotService creates a new lot service
func NewLotService(
	db *database.DB,
	lotRepo *repository.LotRepository,
	medRepo *repository.MedicationRepository,
	publisher *events.PharmacyEventPublisher,
	opts Options,
	log *logger.Logger,
) *LotService {
	return &LotService{
		db:        db,
		lotRepo:   lotRepo,
		medRepo:   medRepo,
		publisher: publisher,
		opts:      opts,
		logger:    log.WithComponent("lots"),
	}
}

// Block removes a lot from dispensing
func (s *LotService) Block(ctx context.Context, lotID int64) (*repository.Lot, error) {
	return s.setStatus(ctx, lotID, func(*repository.Lot) string {
		return repository.LotBlocked
	})
}

// Unblock returns a blocked lot to ok, or to expired when its expiry has
// passed meanwhile
func (s *LotService) Unblock(ctx context.Context, lotID int64) (*repository.Lot, error) {
	today := s.opts.today()
	return s.setStatus(ctx, lotID, func(lot *repository.Lot) string {
		if lot.Status != repository.LotBlocked {
			return lot.Status
		}
		if lot.ExpiryDate.Before(today) {
			return repository.LotExpired
		}
		return repository.LotOK
	})
}

func (s *LotService) setStatus(ctx context.Context, lotID int64, next func(*repository.Lot) string) (*repository.Lot, error) {
	var lot *repository.Lot
	changed := false

	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		lot, err = s.lotRepo.LockByID(ctx, lotID)
		if err != nil {
			return err
		}

		status := next(lot)
		if status == lot.Status {
			return nil
		}
		if err := s.lotRepo.SetStatus(ctx, lot.ID, status); err != nil {
			return err
		}
		lot.Status = status
		changed = true
		return s.medRepo.RefreshAggregates(ctx, []string{lot.MedicationID}, s.opts.today())
	}, database.WithLockTimeout(s.opts.LockTimeout))
	if err != nil {
		return nil, err
	}
	if !changed {
		return lot, nil
	}

	operatorID := actor.SystemID
	if a := actor.FromContext(ctx); !a.IsSystem() {
		operatorID = a.ID
	}
	s.logger.Info().
		Int64("lot_id", lot.ID).
		Str("medication_id", lot.MedicationID).
		Str("status", lot.Status).
		Str("operator_id", operatorID).
		Msg("lot status changed")
	s.publisher.PublishLotStatusChanged(ctx, lot, operatorID)

	return lot, nil
}

// Get returns a lot by id
func (s *LotService) Get(ctx context.Context, lotID int64) (*repository.Lot, error) {
	return s.lotRepo.GetByID(ctx, lotID)
}
