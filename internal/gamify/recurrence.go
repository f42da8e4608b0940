package gamify

import "time"

// FullWeekMask schedules a habit on every weekday.
const FullWeekMask = 1<<7 - 1

// ValidMask reports whether mask selects at least one weekday and nothing
// outside the 7-bit range.
func ValidMask(mask int) bool {
	return mask >= 1 && mask <= FullWeekMask
}

// DecodeMask lists the weekdays whose bit is set. Bit 0 is Sunday.
func DecodeMask(mask int) []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if ScheduledOn(mask, d) {
			days = append(days, d)
		}
	}
	return days
}

// EncodeMask is the inverse of DecodeMask.
func EncodeMask(days ...time.Weekday) int {
	mask := 0
	for _, d := range days {
		mask |= 1 << uint(d)
	}
	return mask
}

func ScheduledOn(mask int, day time.Weekday) bool {
	return mask&(1<<uint(day)) != 0
}

// IsActive reports whether a habit can be completed on today's calendar day:
// the day must be scheduled and the habit must not already be completed on it.
// A mask of 0 is never active.
func IsActive(mask int, lastCompletedAt *time.Time, today time.Time) bool {
	if !ScheduledOn(mask, today.Weekday()) {
		return false
	}
	return lastCompletedAt == nil || !SameDay(*lastCompletedAt, today)
}

// NextActiveAt returns the moment IsActive next becomes true, or now itself
// when it already is. ok is false for masks with no scheduled day.
func NextActiveAt(mask int, lastCompletedAt *time.Time, now time.Time) (next time.Time, ok bool) {
	if mask&FullWeekMask == 0 {
		return time.Time{}, false
	}
	if IsActive(mask, lastCompletedAt, now) {
		return now, true
	}
	start := StartOfDay(now)
	for i := 1; i <= 7; i++ {
		day := start.AddDate(0, 0, i)
		if ScheduledOn(mask, day.Weekday()) {
			return day, true
		}
	}
	return time.Time{}, false
}

// PreviousScheduledDay returns the start of the latest scheduled day strictly
// before day's calendar date.
func PreviousScheduledDay(mask int, day time.Time) (time.Time, bool) {
	start := StartOfDay(day)
	for i := 1; i <= 7; i++ {
		prev := start.AddDate(0, 0, -i)
		if ScheduledOn(mask, prev.Weekday()) {
			return prev, true
		}
	}
	return time.Time{}, false
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay compares calendar dates, reading a in b's location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween counts calendar days from a to b (negative when a is later),
// reading a in b's location. DST transitions do not skew the count.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
