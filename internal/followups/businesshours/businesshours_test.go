package businesshours

import (
	"testing"
	"time"

	"followup_backend/internal/followups/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var zoneNames = []string{"America/Sao_Paulo", "America/New_York", "Europe/Amsterdam"}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func schedule(loc *time.Location, start, end string, days domain.WeekdaySet) domain.Schedule {
	s, _ := domain.ParseClock(start)
	e, _ := domain.ParseClock(end)
	return domain.Schedule{
		RestrictToBusinessHours: true,
		WindowStart:             s,
		WindowEnd:               e,
		AllowedWeekdays:         days,
		Location:                loc,
	}
}

func TestScenarioSaturdayMovesToMonday(t *testing.T) {
	loc := mustLoad(t, "America/Sao_Paulo")
	s := schedule(loc, "09:00", "18:00", domain.MondayToFriday)

	qualifiedAt := time.Date(2024, time.June, 15, 10, 0, 0, 0, loc) // Saturday
	got := NextSendTime(s, qualifiedAt)

	want := time.Date(2024, time.June, 17, 12, 0, 0, 0, time.UTC) // Monday 09:00 -03:00
	if !got.Equal(want) {
		t.Fatalf("NextSendTime = %s, want %s", got, want)
	}
	local := got.In(loc)
	if local.Weekday() != time.Monday || local.Hour() != 9 || local.Minute() != 0 {
		t.Fatalf("unexpected local send time %s", local)
	}
}

func TestScenarioInsideWindowIsUnchanged(t *testing.T) {
	loc := mustLoad(t, "America/Sao_Paulo")
	s := schedule(loc, "09:00", "18:00", domain.MondayToFriday)

	qualifiedAt := time.Date(2024, time.June, 18, 14, 0, 0, 0, loc) // Tuesday
	if got := NextSendTime(s, qualifiedAt); !got.Equal(qualifiedAt) {
		t.Fatalf("NextSendTime = %s, want %s", got, qualifiedAt)
	}
}

func TestNextSendTimeCases(t *testing.T) {
	loc := mustLoad(t, "Europe/Amsterdam")
	s := schedule(loc, "09:00", "18:00", domain.MondayToFriday)

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{
			name: "before window same day",
			at:   time.Date(2024, time.May, 14, 7, 15, 0, 0, loc),
			want: time.Date(2024, time.May, 14, 9, 0, 0, 0, loc),
		},
		{
			name: "at window end moves to next day",
			at:   time.Date(2024, time.May, 14, 18, 0, 0, 0, loc),
			want: time.Date(2024, time.May, 15, 9, 0, 0, 0, loc),
		},
		{
			name: "friday evening moves to monday",
			at:   time.Date(2024, time.May, 17, 20, 0, 0, 0, loc),
			want: time.Date(2024, time.May, 20, 9, 0, 0, 0, loc),
		},
		{
			name: "window start exactly",
			at:   time.Date(2024, time.May, 14, 9, 0, 0, 0, loc),
			want: time.Date(2024, time.May, 14, 9, 0, 0, 0, loc),
		},
		{
			name: "weekend crossing spring forward",
			at:   time.Date(2024, time.March, 30, 12, 0, 0, 0, loc),
			want: time.Date(2024, time.April, 1, 9, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextSendTime(s, tt.at); !got.Equal(tt.want) {
				t.Fatalf("NextSendTime = %s, want %s", got.In(loc), tt.want)
			}
		})
	}
}

func TestNextSendTimeUnrestrictedIsIdentity(t *testing.T) {
	at := time.Date(2024, time.January, 6, 3, 0, 0, 0, time.UTC)
	s := domain.Schedule{RestrictToBusinessHours: false}
	if got := NextSendTime(s, at); !got.Equal(at) {
		t.Fatalf("expected unchanged, got %s", got)
	}
}

func TestNextSendTimeEmptyWeekdaysFallsBack(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	s := schedule(loc, "09:00", "18:00", 0)
	at := time.Date(2024, time.January, 6, 3, 0, 0, 0, time.UTC)

	if got := NextSendTime(s, at); !got.Equal(at.Add(7 * 24 * time.Hour)) {
		t.Fatalf("expected 7 day fallback, got %s", got)
	}
}

func TestLocalToUTCAcrossDST(t *testing.T) {
	tests := []struct {
		zone  string
		year  int
		month time.Month
		day   int
		clock string
		want  time.Time
	}{
		// New York spring forward at 02:00, before noon.
		{zone: "America/New_York", year: 2024, month: time.March, day: 10, clock: "01:00", want: time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)},
		{zone: "America/New_York", year: 2024, month: time.March, day: 10, clock: "09:00", want: time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)},
		// New York fall back; 00:30 precedes the repeated hour.
		{zone: "America/New_York", year: 2024, month: time.November, day: 3, clock: "00:30", want: time.Date(2024, 11, 3, 4, 30, 0, 0, time.UTC)},
		{zone: "America/New_York", year: 2024, month: time.November, day: 3, clock: "09:00", want: time.Date(2024, 11, 3, 14, 0, 0, 0, time.UTC)},
		// New York 02:30 does not exist; the gap ends at 03:00 EDT.
		{zone: "America/New_York", year: 2024, month: time.March, day: 10, clock: "02:30", want: time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)},
		// Amsterdam spring forward at 02:00; 02:30 does not exist.
		{zone: "Europe/Amsterdam", year: 2024, month: time.March, day: 31, clock: "02:30", want: time.Date(2024, 3, 31, 1, 0, 0, 0, time.UTC)},
		// Sao Paulo 2018 DST started at midnight; 00:15 does not exist.
		{zone: "America/Sao_Paulo", year: 2018, month: time.November, day: 4, clock: "00:15", want: time.Date(2018, 11, 4, 3, 0, 0, 0, time.UTC)},
		{zone: "America/Sao_Paulo", year: 2018, month: time.November, day: 4, clock: "09:00", want: time.Date(2018, 11, 4, 11, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.zone+" "+tt.clock, func(t *testing.T) {
			loc := mustLoad(t, tt.zone)
			clock, err := domain.ParseClock(tt.clock)
			if err != nil {
				t.Fatal(err)
			}
			got := LocalToUTC(tt.year, tt.month, tt.day, clock, loc)
			if !got.Equal(tt.want) {
				t.Fatalf("LocalToUTC = %s (%s local), want %s", got, got.In(loc), tt.want)
			}
		})
	}
}

func TestLocalToUTCSweepsTransitionDays(t *testing.T) {
	days := []struct {
		zone  string
		year  int
		month time.Month
		day   int
	}{
		{"America/Sao_Paulo", 2018, time.November, 4},
		{"America/Sao_Paulo", 2019, time.February, 16},
		{"America/New_York", 2024, time.March, 10},
		{"America/New_York", 2024, time.November, 3},
		{"Europe/Amsterdam", 2024, time.March, 31},
		{"Europe/Amsterdam", 2024, time.October, 27},
	}

	for _, d := range days {
		loc := mustLoad(t, d.zone)
		for minute := 0; minute < 24*60; minute++ {
			clock := domain.ClockTime(minute)
			got := LocalToUTC(d.year, d.month, d.day, clock, loc).In(loc)

			if gotDay := got.Day(); gotDay != d.day {
				t.Fatalf("%s %s: landed on day %d", d.zone, clock, gotDay)
			}
			gotClock := domain.ClockOf(got)
			if gotClock == clock {
				continue
			}
			// Only a clock skipped by a gap may differ, and it must land on
			// the transition: one minute earlier is still the old offset.
			if gotClock < clock || gotClock-clock > 60 {
				t.Fatalf("%s %s: resolved to %s", d.zone, clock, gotClock)
			}
			wall := time.Date(d.year, d.month, d.day, clock.Hour(), clock.Minute(), 0, 0, loc)
			if domain.ClockOf(wall) == clock {
				t.Fatalf("%s %s exists but resolved to %s", d.zone, clock, gotClock)
			}
			_, before := got.Add(-time.Minute).Zone()
			_, after := got.Zone()
			if before == after {
				t.Fatalf("%s %s: resolved to %s, not the transition", d.zone, clock, gotClock)
			}
		}
	}
}

func TestNextSendTimeSweepsDSTTransitions(t *testing.T) {
	everyDay := domain.Weekdays(time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday)
	windows := []struct {
		start, end string
		days       domain.WeekdaySet
	}{
		{"00:00", "06:00", everyDay},
		{"01:30", "03:00", everyDay},
		{"09:00", "18:00", domain.MondayToFriday},
		{"22:00", "23:59", domain.Weekdays(time.Saturday, time.Sunday)},
	}
	transitions := []struct {
		zone string
		at   time.Time
	}{
		{"America/Sao_Paulo", time.Date(2018, 11, 4, 3, 0, 0, 0, time.UTC)},
		{"America/Sao_Paulo", time.Date(2019, 2, 17, 2, 0, 0, 0, time.UTC)},
		{"America/New_York", time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)},
		{"America/New_York", time.Date(2024, 11, 3, 6, 0, 0, 0, time.UTC)},
		{"Europe/Amsterdam", time.Date(2024, 3, 31, 1, 0, 0, 0, time.UTC)},
		{"Europe/Amsterdam", time.Date(2024, 10, 27, 1, 0, 0, 0, time.UTC)},
	}

	for _, tr := range transitions {
		loc := mustLoad(t, tr.zone)
		for _, w := range windows {
			s := schedule(loc, w.start, w.end, w.days)
			for offset := -24 * 60; offset <= 24*60; offset += 7 {
				at := tr.at.Add(time.Duration(offset) * time.Minute)
				got := NextSendTime(s, at)
				if got.Before(at) {
					t.Fatalf("%s %s-%s: %s before %s", tr.zone, w.start, w.end, got, at)
				}
				if !InWindow(s, got) {
					t.Fatalf("%s %s-%s: %s (%s local) outside window for %s",
						tr.zone, w.start, w.end, got, got.In(loc), at.In(loc))
				}
			}
		}
	}
}

func TestNextSendTimeWindowStartInGap(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	s := schedule(loc, "02:30", "03:30", domain.Weekdays(time.Sunday))
	at := time.Date(2024, time.March, 10, 1, 0, 0, 0, loc)

	got := NextSendTime(s, at)
	want := time.Date(2024, time.March, 10, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextSendTime = %s (%s local), want 03:00 EDT the same day", got, got.In(loc))
	}
}

func TestNextSendTimeIsEarliestAcrossSpringForward(t *testing.T) {
	everyDay := domain.Weekdays(time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday)
	windows := [][2]string{{"02:30", "03:30"}, {"02:00", "02:45"}, {"01:30", "03:00"}, {"00:15", "01:30"}}
	transitions := []struct {
		zone string
		at   time.Time
	}{
		{"America/Sao_Paulo", time.Date(2018, 11, 4, 3, 0, 0, 0, time.UTC)},
		{"America/New_York", time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)},
		{"Europe/Amsterdam", time.Date(2024, 3, 31, 1, 0, 0, 0, time.UTC)},
	}

	for _, tr := range transitions {
		loc := mustLoad(t, tr.zone)
		for _, w := range windows {
			s := schedule(loc, w[0], w[1], everyDay)
			for offset := -12 * 60; offset <= 12*60; offset += 31 {
				at := tr.at.Add(time.Duration(offset) * time.Minute)
				got := NextSendTime(s, at)
				for m := at; m.Before(got); m = m.Add(time.Minute) {
					if InWindow(s, m) {
						t.Fatalf("%s %s-%s from %s: got %s but %s is already in window",
							tr.zone, w[0], w[1], at.In(loc), got.In(loc), m.In(loc))
					}
				}
			}
		}
	}
}

func TestNextSendTimeProperties(t *testing.T) {
	locs := make([]*time.Location, len(zoneNames))
	for i, name := range zoneNames {
		locs[i] = mustLoad(t, name)
	}
	base := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	const spanMinutes = 15 * 365 * 24 * 60

	build := func(zone, mask, start, length int) domain.Schedule {
		end := start + length
		if end > 24*60-1 {
			end = 24*60 - 1
		}
		return domain.Schedule{
			RestrictToBusinessHours: true,
			WindowStart:             domain.ClockTime(start),
			WindowEnd:               domain.ClockTime(end),
			AllowedWeekdays:         domain.WeekdaySet(mask),
			Location:                locs[zone],
		}
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 2000
	properties := gopter.NewProperties(parameters)

	properties.Property("send time is inside an allowed window", prop.ForAll(
		func(zone, mask, start, length, minute int) bool {
			s := build(zone, mask, start, length)
			got := NextSendTime(s, base.Add(time.Duration(minute)*time.Minute))
			return InWindow(s, got)
		},
		gen.IntRange(0, len(zoneNames)-1),
		gen.IntRange(1, 127),
		gen.IntRange(0, 22*60),
		gen.IntRange(90, 10*60),
		gen.IntRange(0, spanMinutes),
	))

	properties.Property("send time never precedes qualification", prop.ForAll(
		func(zone, mask, start, length, minute int) bool {
			s := build(zone, mask, start, length)
			at := base.Add(time.Duration(minute)*time.Minute + 17*time.Second)
			return !NextSendTime(s, at).Before(at)
		},
		gen.IntRange(0, len(zoneNames)-1),
		gen.IntRange(0, 127),
		gen.IntRange(0, 22*60),
		gen.IntRange(90, 10*60),
		gen.IntRange(0, spanMinutes),
	))

	properties.Property("unrestricted schedule is the identity", prop.ForAll(
		func(zone, minute int) bool {
			s := domain.Schedule{RestrictToBusinessHours: false, Location: locs[zone]}
			at := base.Add(time.Duration(minute) * time.Minute)
			return NextSendTime(s, at).Equal(at)
		},
		gen.IntRange(0, len(zoneNames)-1),
		gen.IntRange(0, spanMinutes),
	))

	properties.Property("window start is the earliest qualifying instant", prop.ForAll(
		func(zone, mask, start, length, minute int) bool {
			s := build(zone, mask, start, length)
			at := base.Add(time.Duration(minute) * time.Minute)
			got := NextSendTime(s, at)
			if got.Equal(at) {
				return InWindow(s, at)
			}
			// Nothing in [at, got) may already be inside the window.
			prev := got.Add(-time.Minute)
			return prev.Before(at) || !InWindow(s, prev) || got.Sub(at) > 7*24*time.Hour
		},
		gen.IntRange(0, len(zoneNames)-1),
		gen.IntRange(1, 127),
		gen.IntRange(0, 22*60),
		gen.IntRange(90, 10*60),
		gen.IntRange(0, spanMinutes),
	))

	properties.TestingRun(t)
}
