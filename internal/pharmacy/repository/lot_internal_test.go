package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpsertLotQuery(t *testing.T) {
	assert.Contains(t, upsertLotQuery, "ON CONFLICT (medication_id, lot_code, expiry_date)")
	assert.Contains(t, upsertLotQuery, "quantity = lots.quantity + EXCLUDED.quantity")
	assert.Contains(t, upsertLotQuery, "WHEN lots.status = 'blocked' THEN lots.status")
	assert.NotContains(t, upsertLotQuery, "expiry_date =")
}
