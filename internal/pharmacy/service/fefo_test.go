package service_test

import (
	"testing"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/stretchr/testify/assert"
)

func lot(id int64, code, expiry string, qty int) repository.Lot {
	return repository.Lot{
		ID:         id,
		LotCode:    code,
		ExpiryDate: repository.MustParseDate(expiry),
		Quantity:   qty,
		Status:     repository.LotOK,
	}
}

func TestAllocate(t *testing.T) {
	twoLots := []repository.Lot{
		lot(1, "L1", "2025-01-10", 5),
		lot(2, "L2", "2025-02-01", 10),
	}

	tests := []struct {
		name        string
		lots        []repository.Lot
		need        int
		wantTakes   map[int64]int
		wantMissing int
	}{
		{
			name:      "earliest lot drained first",
			lots:      twoLots,
			need:      7,
			wantTakes: map[int64]int{1: 5, 2: 2},
		},
		{
			name:      "exact fit in first lot",
			lots:      twoLots,
			need:      5,
			wantTakes: map[int64]int{1: 5},
		},
		{
			name:        "shortage reports missing units",
			lots:        twoLots,
			need:        20,
			wantTakes:   map[int64]int{1: 5, 2: 10},
			wantMissing: 5,
		},
		{
			name:        "no lots",
			need:        3,
			wantTakes:   map[int64]int{},
			wantMissing: 3,
		},
		{
			name: "empty lots are passed over",
			lots: []repository.Lot{
				lot(1, "L1", "2025-01-10", 0),
				lot(2, "L2", "2025-02-01", 4),
			},
			need:      4,
			wantTakes: map[int64]int{2: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, missing := service.Allocate(tt.lots, tt.need)

			got := map[int64]int{}
			sum := 0
			for _, take := range plan {
				got[take.LotID] = take.Quantity
				sum += take.Quantity
			}
			assert.Equal(t, tt.wantTakes, got)
			assert.Equal(t, tt.wantMissing, missing)
			assert.Equal(t, tt.need, sum+missing)
		})
	}
}

func TestAllocate_KeepsLotOrder(t *testing.T) {
	// same expiry: the caller orders by id, Allocate must not reorder
	lots := []repository.Lot{
		lot(3, "A", "2025-05-01", 2),
		lot(8, "B", "2025-05-01", 2),
	}

	plan, missing := service.Allocate(lots, 3)

	assert.Zero(t, missing)
	if assert.Len(t, plan, 2) {
		assert.Equal(t, int64(3), plan[0].LotID)
		assert.Equal(t, 2, plan[0].Quantity)
		assert.Equal(t, int64(8), plan[1].LotID)
		assert.Equal(t, 1, plan[1].Quantity)
		assert.Equal(t, "2025-05-01", plan[1].ExpiryDate.String())
	}
}
