package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDispenseID_UniqueForSameInstant(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := service.NewDispenseID(now)
		require.True(t, strings.HasPrefix(id, "B-"))
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewReceiptID_UsesPharmacyZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	// far enough ahead of any id handed out by other tests
	id := service.NewReceiptID(time.Date(2031, 1, 15, 3, 4, 5, 0, time.UTC), loc)

	assert.Equal(t, "GE-20310115-000405", id)
}

func TestParseIssueDate(t *testing.T) {
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"", now},
		{"2025-02-10", time.Date(2025, 2, 10, 0, 0, 0, 0, loc)},
		{"2025-02-10T14:30", time.Date(2025, 2, 10, 14, 30, 0, 0, loc)},
		{"2025-02-10 14:30:15", time.Date(2025, 2, 10, 14, 30, 15, 0, loc)},
		{"2025-02-10T14:30:00Z", time.Date(2025, 2, 10, 14, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := service.ParseIssueDate(tt.in, loc, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}

	_, err = service.ParseIssueDate("10/02/2025", loc, now)
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
}
