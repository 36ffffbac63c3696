package service

import (
	"context"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
)

// MedicationDetail is a catalog row with every lot it owns
type MedicationDetail struct {
	*repository.Medication
	Lots []repository.Lot `json:"lots"`
}

// MedicationService reads the catalog
type MedicationService struct {
	medRepo *repository.MedicationRepository
	lotRepo *repository.LotRepository
}

// NewMedicationService creates a new medication service
func NewMedicationService(medRepo *repository.MedicationRepository, lotRepo *repository.LotRepository) *MedicationService {
	return &MedicationService{
		medRepo: medRepo,
		lotRepo: lotRepo,
	}
}

// Get returns a medication and its lots ordered by expiry, then id
func (s *MedicationService) Get(ctx context.Context, id string, filter repository.LotFilter) (*MedicationDetail, error) {
	med, err := s.medRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lots, err := s.lotRepo.ListByMedication(ctx, id, filter)
	if err != nil {
		return nil, err
	}
	return &MedicationDetail{Medication: med, Lots: lots}, nil
}
