package repository_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_JSON(t *testing.T) {
	var v struct {
		Expiry  repository.Date  `json:"expiry"`
		Invoice *repository.Date `json:"invoice"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"expiry":"2025-01-10","invoice":null}`), &v))
	assert.Equal(t, "2025-01-10", v.Expiry.String())
	assert.Nil(t, v.Invoice)

	require.NoError(t, json.Unmarshal([]byte(`{"expiry":"2025-01-10T15:04:05Z"}`), &v))
	assert.Equal(t, "2025-01-10", v.Expiry.String())

	assert.Error(t, json.Unmarshal([]byte(`{"expiry":"10/01/2025"}`), &v))

	out, err := json.Marshal(struct {
		D repository.Date `json:"d"`
		Z repository.Date `json:"z"`
	}{D: repository.NewDate(2025, time.February, 1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-02-01","z":null}`, string(out))
}

func TestDate_ScanKeepsCalendarDay(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	var d repository.Date
	// late evening in Santiago is already the next day in UTC
	require.NoError(t, d.Scan(time.Date(2025, 1, 10, 23, 30, 0, 0, santiago)))
	assert.Equal(t, "2025-01-10", d.String())

	require.NoError(t, d.Scan([]byte("2025-03-04")))
	assert.Equal(t, "2025-03-04", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}

func TestDate_Compare(t *testing.T) {
	a := repository.MustParseDate("2025-01-10")
	b := repository.MustParseDate("2025-02-01")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.AddDays(22).Equal(b))

	v, err := a.Value()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10", v)

	v, err = repository.Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
