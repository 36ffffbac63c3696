package service

import (
	"context"
	"io"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/events"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/importer"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/actor"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
	"github.com/saludmunicipal/farmacia-backend/pkg/messaging"
)

// ImportResult summarises a bulk import
type ImportResult struct {
	OK           bool `json:"ok"`
	RowsTotal    int  `json:"rows_total"`
	GroupedRows  int  `json:"grouped_rows"`
	Inserted     int  `json:"inserted"`
	Skipped      int  `json:"skipped"`
	AffectedMeds int  `json:"affected_meds"`
}

// ImportService loads stock counts from spreadsheets
type ImportService struct {
	db        *database.DB
	lotRepo   *repository.LotRepository
	medRepo   *repository.MedicationRepository
	locker    Locker
	publisher *events.PharmacyEventPublisher
	opts      Options
	logger    *logger.Logger
}

// NewImportService creates a new import service. A nil locker disables
// cross-instance serialisation.
func NewImportService(
	db *database.DB,
	lotRepo *repository.LotRepository,
	medRepo *repository.MedicationRepository,
	locker Locker,
	publisher *events.PharmacyEventPublisher,
	opts Options,
	log *logger.Logger,
) *ImportService {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &ImportService{
		db:        db,
		lotRepo:   lotRepo,
		medRepo:   medRepo,
		locker:    locker,
		publisher: publisher,
		opts:      opts,
		logger:    log.WithComponent("import"),
	}
}

// ImportFile parses an uploaded xlsx or csv file and imports its rows
func (s *ImportService) ImportFile(ctx context.Context, r io.Reader, filename string) (*ImportResult, error) {
	rows, err := importer.Read(r, filename, importer.Options{DateOrder: s.opts.DateOrder})
	if err != nil {
		return nil, err
	}
	return s.ImportBulk(ctx, rows)
}

// ImportBulk groups rows by lot identity and merges each group into the
// ledger in one transaction. Imports never create receipt documents.
func (s *ImportService) ImportBulk(ctx context.Context, rows []importer.Row) (*ImportResult, error) {
	batch, err := importer.GroupRows(rows)
	if err != nil {
		return nil, err
	}
	if len(batch.Groups) == 0 {
		return nil, errors.BadRequest("no valid rows to import").WithMessageKey("errors.no_valid_rows")
	}

	release, err := s.locker.Obtain(ctx, ImportLockKey, s.opts.ImportLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	medicationIDs := batch.MedicationIDs()
	entries := make([]repository.CatalogEntry, 0, len(batch.Groups))
	for _, g := range batch.Groups {
		name := g.Name
		if name == "" {
			name = g.MedicationID
		}
		entries = append(entries, repository.CatalogEntry{
			ID:               g.MedicationID,
			Name:             name,
			ActiveIngredient: g.ActiveIngredient,
		})
	}
	today := s.opts.today()

	inserted := 0
	err = s.db.RunInTx(ctx, func(ctx context.Context) error {
		inserted = 0
		if err := s.medRepo.EnsureCatalog(ctx, entries...); err != nil {
			return err
		}
		for _, g := range batch.Groups {
			if _, err := s.lotRepo.UpsertLot(ctx, repository.LotInput{
				MedicationID: g.MedicationID,
				LotCode:      g.LotCode,
				ExpiryDate:   g.Expiry,
				Quantity:     g.Quantity,
				Provider:     g.Provider,
			}, today); err != nil {
				return err
			}
			inserted++
		}
		return s.medRepo.RefreshAggregates(ctx, medicationIDs, today)
	}, database.WithLockTimeout(s.opts.LockTimeout))
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		OK:           true,
		RowsTotal:    batch.RowsTotal,
		GroupedRows:  len(batch.Groups),
		Inserted:     inserted,
		Skipped:      batch.Skipped,
		AffectedMeds: len(medicationIDs),
	}

	operatorID := ""
	if a := actor.FromContext(ctx); a != nil {
		operatorID = a.ID
	}
	s.logger.Info().
		Int("rows_total", result.RowsTotal).
		Int("grouped_rows", result.GroupedRows).
		Int("skipped", result.Skipped).
		Int("affected_meds", result.AffectedMeds).
		Str("operator_id", operatorID).
		Msg("inventory import committed")
	s.publisher.PublishImportCompleted(ctx, messaging.ImportCompletedEvent{
		RowsTotal:    result.RowsTotal,
		GroupedRows:  result.GroupedRows,
		Inserted:     result.Inserted,
		Skipped:      result.Skipped,
		AffectedMeds: result.AffectedMeds,
		OperatorID:   operatorID,
	})

	return result, nil
}
