package core

import "time"

// StartOfDay truncates t to midnight in its own location. Occurrence
// comparisons are always done on calendar days, never on clock times.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// NextOccurrence computes the occurrence that follows last for the given
// rule. It returns ok=false when the rule is None or when last is still in
// the future relative to today: a future-dated template is not yet due for
// its first recurrence.
//
// Monthly and Yearly keep the day of month and clip it to the length of the
// target month, so Jan 31 + 1 month is Feb 29 in a leap year and Feb 28
// otherwise.
func NextOccurrence(last time.Time, rule RecurrenceRule, today time.Time) (time.Time, bool) {
	today = StartOfDay(today)
	last = StartOfDay(last)

	if today.Before(last) {
		return time.Time{}, false
	}

	switch rule {
	case Daily:
		return last.AddDate(0, 0, 1), true
	case Weekly:
		return last.AddDate(0, 0, 7), true
	case Monthly:
		return addMonthsClipped(last, 1), true
	case Yearly:
		return addMonthsClipped(last, 12), true
	default:
		return time.Time{}, false
	}
}

// addMonthsClipped advances t by whole calendar months. Unlike
// time.AddDate it never rolls over into the following month: the day of
// month is clipped to the last day of the target month instead.
func addMonthsClipped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	day := t.Day()
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}
