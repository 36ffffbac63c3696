package service

import (
	"context"
	"time"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/events"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/actor"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
)

// ExpirySweeper periodically moves ok lots past their expiry date to
// expired so they drop out of stock totals and FEFO allocation.
type ExpirySweeper struct {
	db        *database.DB
	lotRepo   *repository.LotRepository
	medRepo   *repository.MedicationRepository
	publisher *events.PharmacyEventPublisher
	interval  time.Duration
	opts      Options
	logger    *logger.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(
	db *database.DB,
	lotRepo *repository.LotRepository,
	medRepo *repository.MedicationRepository,
	publisher *events.PharmacyEventPublisher,
	interval time.Duration,
	opts Options,
	log *logger.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		db:        db,
		lotRepo:   lotRepo,
		medRepo:   medRepo,
		publisher: publisher,
		interval:  interval,
		opts:      opts,
		logger:    log.WithComponent("expiry-sweeper"),
	}
}

// Start runs a sweep immediately and then on every tick until Stop
func (s *ExpirySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(actor.WithActor(ctx, actor.SystemActor()))
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

		s.sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry sweeper stopped")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop stops the sweeper and waits for a running sweep to finish
func (s *ExpirySweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
	}
}

// RunOnce expires the lots whose expiry date is before today and refreshes
// the aggregates of their medications in the same transaction. It returns
// the number of lots expired.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	today := s.opts.today()
	var expired []repository.ExpiredLot
	var medicationIDs []string

	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		expired, err = s.lotRepo.MarkExpired(ctx, today)
		if err != nil || len(expired) == 0 {
			return err
		}

		ids := make([]string, len(expired))
		for i, l := range expired {
			ids[i] = l.MedicationID
		}
		medicationIDs = distinct(ids)
		return s.medRepo.RefreshAggregates(ctx, medicationIDs, today)
	}, database.WithLockTimeout(s.opts.LockTimeout))
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	s.logger.Info().
		Int("lots", len(expired)).
		Int("medications", len(medicationIDs)).
		Str("today", today.String()).
		Msg("expired lots retired")
	s.publisher.PublishLotsExpired(ctx, expired, medicationIDs)

	return len(expired), nil
}
