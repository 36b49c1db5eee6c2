// Package calendar resolves day counts, due dates, and accounting period
// boundaries. Everything here is pure and safe to call concurrently.
package calendar

import (
	"errors"
	"time"
)

// PolicyKind selects how consecutive due dates are derived.
type PolicyKind string

const (
	// PolicyIntervalDays advances due dates by a fixed number of days.
	PolicyIntervalDays PolicyKind = "INTERVAL_DAYS"
	// PolicyMonthlyCalendar snaps due dates to a calendar anchor day each month.
	PolicyMonthlyCalendar PolicyKind = "MONTHLY_CALENDAR"
	// PolicySemiMonthly alternates due dates between the 1st and the 15th.
	PolicySemiMonthly PolicyKind = "SEMI_MONTHLY"
)

// WeekendAdjustment controls how due dates landing on weekends are shifted.
type WeekendAdjustment string

const (
	// AdjustNone leaves weekend due dates untouched.
	AdjustNone WeekendAdjustment = "NONE"
	// AdjustForward moves weekend due dates to the next business day.
	AdjustForward WeekendAdjustment = "FORWARD"
	// AdjustBackward moves weekend due dates to the previous business day,
	// never crossing backward into a prior accounting period.
	AdjustBackward WeekendAdjustment = "BACKWARD"
)

// DueDatePolicy bundles the frequency configuration of a loan.
type DueDatePolicy struct {
	Kind         PolicyKind
	IntervalDays int
	AnchorDay    int
}

// ErrInvalidPolicy indicates an unusable due date policy.
var ErrInvalidPolicy = errors.New("calendar: invalid due date policy")

// Validate ensures the policy can produce due dates.
func (p DueDatePolicy) Validate() error {
	switch p.Kind {
	case PolicyIntervalDays:
		if p.IntervalDays <= 0 {
			return ErrInvalidPolicy
		}
	case PolicyMonthlyCalendar:
		if p.AnchorDay < 1 || p.AnchorDay > 31 {
			return ErrInvalidPolicy
		}
	case PolicySemiMonthly:
	default:
		return ErrInvalidPolicy
	}
	return nil
}

// PeriodLengthDays returns the nominal period length implied by the policy,
// used to derive per-period interest rates.
func (p DueDatePolicy) PeriodLengthDays() int {
	switch p.Kind {
	case PolicyIntervalDays:
		return p.IntervalDays
	case PolicySemiMonthly:
		return 15
	default:
		return 30
	}
}

// DaysBetween counts actual calendar days from a to b. Negative when b
// precedes a.
func DaysBetween(a, b time.Time) int {
	ad := truncate(a)
	bd := truncate(b)
	return int(bd.Sub(ad).Hours() / 24)
}

// PeriodBounds returns the first and last day of the given month.
func PeriodBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// ResolveDueDate computes the due date for installment seq (1-based) relative
// to the base date.
func ResolveDueDate(base time.Time, policy DueDatePolicy, seq int) time.Time {
	base = truncate(base)
	switch policy.Kind {
	case PolicyIntervalDays:
		return base.AddDate(0, 0, policy.IntervalDays*seq)
	case PolicySemiMonthly:
		return semiMonthlyDue(base, seq)
	default:
		target := base.AddDate(0, seq, 0)
		return snapToAnchor(target, policy.AnchorDay)
	}
}

// AdjustBusinessDay shifts a weekend due date per the adjustment policy. A
// backward shift that would land before periodStart is turned into a forward
// shift so the date never moves into an already-closed period.
func AdjustBusinessDay(d time.Time, adj WeekendAdjustment, periodStart time.Time) time.Time {
	d = truncate(d)
	if adj == AdjustNone || !isWeekend(d) {
		return d
	}
	if adj == AdjustBackward {
		shifted := d
		for isWeekend(shifted) {
			shifted = shifted.AddDate(0, 0, -1)
		}
		if !shifted.Before(truncate(periodStart)) {
			return shifted
		}
	}
	shifted := d
	for isWeekend(shifted) {
		shifted = shifted.AddDate(0, 0, 1)
	}
	return shifted
}

// snapToAnchor clamps the anchor day to the target month's length.
func snapToAnchor(target time.Time, anchor int) time.Time {
	if anchor < 1 {
		anchor = 1
	}
	last := lastDayOfMonth(target.Year(), target.Month())
	if anchor > last {
		anchor = last
	}
	return time.Date(target.Year(), target.Month(), anchor, 0, 0, 0, 0, time.UTC)
}

// semiMonthlyDue walks seq half-month steps forward, alternating between the
// 1st and 15th anchors.
func semiMonthlyDue(base time.Time, seq int) time.Time {
	y, m := base.Year(), base.Month()
	onFirst := base.Day() < 15
	for i := 0; i < seq; i++ {
		if onFirst {
			onFirst = false
			continue
		}
		onFirst = true
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	day := 15
	if onFirst {
		day = 1
	}
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
