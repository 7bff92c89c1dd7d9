package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a local time of day in minutes after midnight.
type ClockTime int

// ParseClock parses a 24h "HH:MM" clock.
func ParseClock(value string) (ClockTime, error) {
	value = strings.TrimSpace(value)
	hh, mm, ok := strings.Cut(value, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock %q, expected HH:MM", value)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q, expected HH:MM", value)
	}
	return ClockTime(h*60 + m), nil
}

// Clock builds a ClockTime from hour and minute.
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ClockOf returns the wall clock of t in t's location.
func ClockOf(t time.Time) ClockTime {
	return Clock(t.Hour(), t.Minute())
}

// WeekdaySet is a bitmask of time.Weekday values.
type WeekdaySet uint8

var weekdayCodes = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// Weekdays builds a set from the given days.
func Weekdays(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// MondayToFriday is the usual commercial week.
var MondayToFriday = Weekdays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)

// ParseWeekdays parses codes like "mon" or "Tuesday". Unknown codes fail.
func ParseWeekdays(codes []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, raw := range codes {
		code := strings.ToLower(strings.TrimSpace(raw))
		if len(code) > 3 {
			code = code[:3]
		}
		found := false
		for i, known := range weekdayCodes {
			if code == known {
				s |= 1 << uint(i)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown weekday %q", raw)
		}
	}
	return s, nil
}

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) IsEmpty() bool           { return s&0x7f == 0 }

// Codes returns the set as lowercase codes starting with Monday.
func (s WeekdaySet) Codes() []string {
	out := make([]string, 0, 7)
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if s.Has(d) {
			out = append(out, weekdayCodes[d])
		}
	}
	return out
}

// WeekdayCode returns the three-letter code for d.
func WeekdayCode(d time.Weekday) string {
	return weekdayCodes[d]
}
