package service

import (
	"time"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/config"
)

// Options carries the pharmacy settings shared by the services
type Options struct {
	Location      *time.Location
	LockTimeout   time.Duration
	ImportLockTTL time.Duration
	DateOrder     string
	Now           func() time.Time
}

// OptionsFromConfig builds Options from the pharmacy config section
func OptionsFromConfig(cfg *config.PharmacyConfig) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Location:      loc,
		LockTimeout:   cfg.LockTimeout,
		ImportLockTTL: cfg.ImportLockTTL,
		DateOrder:     cfg.ImportDateOrder,
	}, nil
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// today is the calendar date in the pharmacy timezone
func (o Options) today() repository.Date {
	return repository.DateOf(o.now().In(o.location()))
}
