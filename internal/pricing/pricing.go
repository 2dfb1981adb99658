package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/adboard-backend/pkg/config"
)

// ErrInvalidDuration is returned when a listing runs for less than one day.
var ErrInvalidDuration = errors.New("duration must be at least one day")

// Schedule holds the tariff in the payment token's smallest unit.
type Schedule struct {
	BaseUnits   int64
	PerDayUnits int64
	MediaUnits  int64
}

// DefaultSchedule is the published tariff: 100000 for the first day, 50000 per
// additional day and a flat 50000 media surcharge.
var DefaultSchedule = Schedule{
	BaseUnits:   100000,
	PerDayUnits: 50000,
	MediaUnits:  50000,
}

// ScheduleFromConfig builds a schedule, keeping defaults for unset values.
func ScheduleFromConfig(cfg config.PricingConfig) Schedule {
	s := DefaultSchedule
	if cfg.BaseUnits > 0 {
		s.BaseUnits = cfg.BaseUnits
	}
	if cfg.PerDayUnits >= 0 {
		s.PerDayUnits = cfg.PerDayUnits
	}
	if cfg.MediaUnits >= 0 {
		s.MediaUnits = cfg.MediaUnits
	}
	return s
}

// Price returns the amount owed for a listing. It is a pure function of its inputs.
func (s Schedule) Price(durationDays int, hasMedia bool) (int64, error) {
	if durationDays < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidDuration, durationDays)
	}
	amount := s.BaseUnits + int64(durationDays-1)*s.PerDayUnits
	if hasMedia {
		amount += s.MediaUnits
	}
	return amount, nil
}

// Quote describes a price in both smallest units and display units.
type Quote struct {
	DurationDays int             `json:"duration_days"`
	HasMedia     bool            `json:"has_media"`
	AmountUnits  int64           `json:"amount_units"`
	Amount       decimal.Decimal `json:"amount"`
	Decimals     int32           `json:"decimals"`
}

// Quote prices the listing and renders the display amount for a token with the given decimals.
func (s Schedule) Quote(durationDays int, hasMedia bool, decimals int32) (Quote, error) {
	units, err := s.Price(durationDays, hasMedia)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		DurationDays: durationDays,
		HasMedia:     hasMedia,
		AmountUnits:  units,
		Amount:       decimal.New(units, -decimals),
		Decimals:     decimals,
	}, nil
}
