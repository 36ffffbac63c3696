package service

import "github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"

// Take is the quantity a dispense line draws from one lot
type Take struct {
	LotID      int64           `json:"lot_id"`
	LotCode    string          `json:"lot_code"`
	ExpiryDate repository.Date `json:"expiry_date"`
	Quantity   int             `json:"quantity"`
}

// Allocate walks lots in the order given, which must be FEFO (expiry
// ascending, id ascending), and takes min(need, lot quantity) from each
// until need is met. missing is the demand left uncovered; when it is
// positive the plan must not be applied.
func Allocate(lots []repository.Lot, need int) (plan []Take, missing int) {
	for _, lot := range lots {
		if need <= 0 {
			break
		}
		take := lot.Quantity
		if take > need {
			take = need
		}
		if take <= 0 {
			continue
		}
		plan = append(plan, Take{
			LotID:      lot.ID,
			LotCode:    lot.LotCode,
			ExpiryDate: lot.ExpiryDate,
			Quantity:   take,
		})
		need -= take
	}
	if need < 0 {
		need = 0
	}
	return plan, need
}
