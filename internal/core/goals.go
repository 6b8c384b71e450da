package core

import "fmt"

type (
	GoalType      string
	GoalFrequency string
)

const (
	GoalTargetDate GoalType = "target_date"
	GoalRecurring  GoalType = "recurring"

	FrequencyMonthly   GoalFrequency = "monthly"
	FrequencyQuarterly GoalFrequency = "quarterly"
	FrequencyYearly    GoalFrequency = "yearly"
)

// Goal is a funding target attached to an envelope category. A target-date
// goal saves AmountMinor by TargetDate. A recurring goal needs AmountMinor
// every Frequency; its TargetDate, when set, is the next due date.
type Goal struct {
	Type        GoalType
	AmountMinor int64
	TargetDate  Date
	Frequency   GoalFrequency
}

// GoalProgress is how a category stands against its goal in one month.
type GoalProgress struct {
	Goal Goal
	// MonthlyTargetMinor is what the month should receive to stay on track.
	MonthlyTargetMinor int64
	// NeededMinor is the part of the monthly target not yet allocated.
	NeededMinor int64
}

func (g Goal) Validate() error {
	if g.AmountMinor <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidGoal)
	}
	switch g.Type {
	case GoalTargetDate:
		if g.TargetDate.IsZero() {
			return fmt.Errorf("%w: target_date goals need a target date", ErrInvalidGoal)
		}
		if g.Frequency != "" {
			return fmt.Errorf("%w: target_date goals take no frequency", ErrInvalidGoal)
		}
	case GoalRecurring:
		if g.Frequency.Months() == 0 {
			return fmt.Errorf("%w: unknown frequency %q", ErrInvalidGoal, g.Frequency)
		}
	default:
		return fmt.Errorf("%w: unknown goal type %q", ErrInvalidGoal, g.Type)
	}
	return nil
}

// Months returns the length of one recurrence, 0 for an unknown frequency.
func (f GoalFrequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	}
	return 0
}

// MonthsRemaining counts the months from the month of from through the month
// of target, both included. It is zero or negative once target has passed.
func MonthsRemaining(from, target Date) int {
	return (target.Year()-from.Year())*12 + int(target.Month()) - int(from.Month()) + 1
}

// TargetDateMonthlyAmount spreads what is still missing from goalMinor evenly
// over monthsRemaining months, rounding down.
func TargetDateMonthlyAmount(goalMinor int64, monthsRemaining int, currentAvailableMinor int64) (int64, error) {
	if monthsRemaining <= 0 {
		return 0, fmt.Errorf("%w: months remaining must be positive, got %d", ErrInvalidGoal, monthsRemaining)
	}
	missing := goalMinor - currentAvailableMinor
	if missing <= 0 {
		return 0, nil
	}
	return missing / int64(monthsRemaining), nil
}

// CatchUpMonthlyAmount is the contribution needed after fundedMinor has been
// saved so far, typically raised by a skipped month.
func CatchUpMonthlyAmount(goalMinor, fundedMinor int64, monthsRemaining int) (int64, error) {
	return TargetDateMonthlyAmount(goalMinor, monthsRemaining, fundedMinor)
}

// RecurringShortfall is how much of targetMinor the month's own allocations
// leave uncovered. Money rolled over from earlier months does not count.
func RecurringShortfall(targetMinor, allocatedMinor int64) int64 {
	return max(0, targetMinor-allocatedMinor)
}

// RecurringIntervalMonthlyAmount normalizes an amount due every
// intervalMonths into an even monthly target, rounding down.
func RecurringIntervalMonthlyAmount(amountMinor int64, intervalMonths int) (int64, error) {
	if intervalMonths <= 0 {
		return 0, fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidGoal, intervalMonths)
	}
	return amountMinor / int64(intervalMonths), nil
}

// Progress evaluates the goal for month against the category's state there.
// An overdue target-date goal asks for everything still missing.
func (g Goal) Progress(month Date, st MonthlyState) GoalProgress {
	p := GoalProgress{Goal: g}
	switch g.Type {
	case GoalTargetDate:
		months := MonthsRemaining(month, g.TargetDate)
		if months <= 0 {
			p.MonthlyTargetMinor = max(0, g.AmountMinor-st.LastMonthAvailableMinor)
			break
		}
		p.MonthlyTargetMinor, _ = CatchUpMonthlyAmount(g.AmountMinor, st.LastMonthAvailableMinor, months)
	case GoalRecurring:
		p.MonthlyTargetMinor, _ = RecurringIntervalMonthlyAmount(g.AmountMinor, g.Frequency.Months())
	}
	p.NeededMinor = RecurringShortfall(p.MonthlyTargetMinor, st.AllocatedMinor)
	return p
}
