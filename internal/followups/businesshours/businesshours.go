// Package businesshours computes when a follow-up may be sent given a rule's
// local business-hours window. All functions are pure.
package businesshours

import (
	"time"

	"followup_backend/internal/followups/domain"
)

const (
	// scanDays bounds the forward search. Weekday sets repeat weekly, so day 7
	// is the last one that can hold a window not already seen.
	scanDays = 7
	fallback = 7 * 24 * time.Hour
)

// NextSendTime returns the earliest instant at or after qualifiedAt that lies
// inside the schedule's window. The result is in UTC unless qualifiedAt is
// returned unchanged.
func NextSendTime(s domain.Schedule, qualifiedAt time.Time) time.Time {
	if !s.RestrictToBusinessHours {
		return qualifiedAt
	}
	if s.AllowedWeekdays.IsEmpty() {
		return qualifiedAt.Add(fallback)
	}
	if InWindow(s, qualifiedAt) {
		return qualifiedAt
	}

	loc := location(s)
	year, month, day := qualifiedAt.In(loc).Date()
	for i := 0; i <= scanDays; i++ {
		// Noon UTC keeps the civil date stable while normalizing day overflow.
		date := time.Date(year, month, day+i, 12, 0, 0, 0, time.UTC)
		if !s.AllowedWeekdays.Has(date.Weekday()) {
			continue
		}
		start := LocalToUTC(date.Year(), date.Month(), date.Day(), s.WindowStart, loc)
		if start.Before(qualifiedAt) {
			continue
		}
		// A window start swallowed by a DST gap can land past the window end.
		if !InWindow(s, start) {
			continue
		}
		return start
	}

	return qualifiedAt.Add(fallback)
}

// InWindow reports whether t falls on an allowed local weekday with a local
// clock in [WindowStart, WindowEnd). Unrestricted schedules always match.
func InWindow(s domain.Schedule, t time.Time) bool {
	if !s.RestrictToBusinessHours {
		return true
	}
	local := t.In(location(s))
	if !s.AllowedWeekdays.Has(local.Weekday()) {
		return false
	}
	clock := domain.ClockOf(local)
	return clock >= s.WindowStart && clock < s.WindowEnd
}

// LocalToUTC converts a civil date and clock in loc to a UTC instant.
//
// The zone offset is sampled at local noon of that date, which is clear of
// the usual night-time transitions, and subtracted from the civil time. The
// resulting local clock is then read back and any difference (a transition
// before noon) is corrected once. Clocks inside a DST gap resolve to the
// transition itself, the first instant after the gap; clocks inside an
// overlap resolve to the occurrence that shares the noon offset.
func LocalToUTC(year int, month time.Month, day int, clock domain.ClockTime, loc *time.Location) time.Time {
	civil := time.Date(year, month, day, clock.Hour(), clock.Minute(), 0, 0, time.UTC)

	noon := time.Date(year, month, day, 12, 0, 0, 0, loc)
	_, offset := noon.Zone()
	candidate := civil.Add(-time.Duration(offset) * time.Second)

	if delta := civil.Sub(civilOf(candidate.In(loc))); delta != 0 {
		candidate = candidate.Add(delta)
	}
	// Still off after the correction: the clock was skipped, and the zone in
	// effect at candidate began at the transition.
	if local := candidate.In(loc); !civilOf(local).Equal(civil) {
		if start, _ := local.ZoneBounds(); !start.IsZero() {
			candidate = start
		}
	}
	return candidate.UTC()
}

// civilOf re-labels a local wall clock as UTC so two clocks can be subtracted.
func civilOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func location(s domain.Schedule) *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}
