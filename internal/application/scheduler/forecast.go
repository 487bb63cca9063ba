package scheduler

import (
	"fmt"
	"time"

	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// Oracle is the Forecast/Slot Oracle (C2): a pure function over
// configuration and the set of currently non-terminal PublishLogs for a
// partition (spec.md §4.2).
type Oracle struct {
	windows map[domain.Platform]domain.PlatformWindow
}

func NewOracle(windows map[domain.Platform]domain.PlatformWindow) *Oracle {
	return &Oracle{windows: windows}
}

func (o *Oracle) Window(platform domain.Platform) (domain.PlatformWindow, bool) {
	w, ok := o.windows[platform]
	return w, ok
}

// windowBounds returns the UTC instants for a platform's window on the
// calendar day containing `day`.
func windowBounds(window domain.PlatformWindow, day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, window.WindowStartHour, 0, 0, 0, time.UTC)
	end := time.Date(y, m, d, window.WindowEndHour, 0, 0, 0, time.UTC)
	return start, end
}

// Forecast computes slots_remaining_today, utilization, risk and
// next_available_slot for one (platform, account) partition, given that
// partition's current non-terminal logs (spec.md §4.2).
func (o *Oracle) Forecast(platform domain.Platform, accountID *string, nonTerminal []*domain.PublishLog, now time.Time) (domain.ForecastWindow, error) {
	window, ok := o.windows[platform]
	if !ok {
		return domain.ForecastWindow{}, domainerrors.NewValidationError("platform", fmt.Sprintf("platform %q not configured", platform))
	}

	maxSlots := window.MaxSlotsPerDay()
	todayStart, todayEnd := windowBounds(window, now)

	scheduledToday := 0
	var lastScheduled time.Time
	for _, log := range nonTerminal {
		sf := log.ScheduledFor()
		if sf == nil {
			continue
		}
		if !sf.Before(todayStart) && sf.Before(todayEnd) {
			scheduledToday++
		}
		if sf.After(lastScheduled) {
			lastScheduled = *sf
		}
	}

	slotsRemaining := maxSlots - scheduledToday
	if slotsRemaining < 0 {
		slotsRemaining = 0
	}

	var utilization float64
	if maxSlots > 0 {
		utilization = float64(scheduledToday) / float64(maxSlots)
	}

	risk := domain.RiskLow
	switch {
	case utilization >= 0.8:
		risk = domain.RiskHigh
	case utilization >= 0.5:
		risk = domain.RiskMedium
	}

	nextSlot, err := o.nextAvailableSlot(window, lastScheduled, now)
	if err != nil {
		return domain.ForecastWindow{}, err
	}

	return domain.ForecastWindow{
		Platform:            platform,
		AccountID:           accountID,
		MaxSlotsPerDay:      maxSlots,
		ScheduledToday:      scheduledToday,
		SlotsRemainingToday: slotsRemaining,
		Utilization:         utilization,
		Risk:                risk,
		NextAvailableSlot:   nextSlot,
	}, nil
}

// nextAvailableSlot implements spec.md §4.2's slot search: the first
// instant >= now, inside today's (or a future day's) window, and at least
// min_gap after the partition's latest non-terminal scheduled_for.
func (o *Oracle) nextAvailableSlot(window domain.PlatformWindow, lastScheduled, now time.Time) (time.Time, error) {
	candidate := now
	if !lastScheduled.IsZero() {
		gapFloor := lastScheduled.Add(time.Duration(window.MinGapMinutes) * time.Minute)
		if gapFloor.After(candidate) {
			candidate = gapFloor
		}
	}

	const horizonDays = 366
	for i := 0; i < horizonDays; i++ {
		start, end := windowBounds(window, candidate)
		if candidate.Before(start) {
			candidate = start
		}
		if candidate.Before(end) {
			return candidate, nil
		}
		candidate = start.AddDate(0, 0, 1)
	}
	return time.Time{}, domainerrors.NewGuardRailError("no_slot_within_horizon", "no available slot found within the scheduling horizon")
}
