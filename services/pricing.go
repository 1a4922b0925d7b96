package services

import (
	"math"
	"time"
)

// RentalDays returns the number of chargeable days between start and end,
// rounding any partial day up. The range must span at least part of a day.
func RentalDays(start, end time.Time) (int, error) {
	if !end.After(start) {
		return 0, ErrInvalidDateRange
	}
	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 1 {
		return 0, ErrInvalidDateRange
	}
	return days, nil
}

// ComputeTotal prices a rental: day rate times days, plus the per-day driver
// charge when a driver is requested. Pure; the result is fixed on the booking
// at creation and never recomputed.
func ComputeTotal(dayRate float64, days int, requiresDriver bool, driverDayRate float64) (float64, error) {
	if dayRate <= 0 {
		return 0, ErrInvalidInput
	}
	if days < 1 {
		return 0, ErrInvalidDateRange
	}
	total := float64(days) * dayRate
	if requiresDriver {
		total += float64(days) * driverDayRate
	}
	return total, nil
}
