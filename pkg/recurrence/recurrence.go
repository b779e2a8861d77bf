package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrInvalidRule = errors.New("invalid recurrence rule")
var ErrInvalidRange = errors.New("invalid recurrence range")

type Frequency string

const (
	None    Frequency = "NONE"
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// ParseFrequency accepts the frequency codes used by the admin form. An empty
// value and "0" both mean the occurrence does not repeat.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case "", "0", None:
		return None, nil
	case Daily, Weekly, Monthly, Yearly:
		return f, nil
	default:
		return None, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, s)
	}
}

// Weekday is a two letter weekday code (MO..SU).
type Weekday string

const (
	MO Weekday = "MO"
	TU Weekday = "TU"
	WE Weekday = "WE"
	TH Weekday = "TH"
	FR Weekday = "FR"
	SA Weekday = "SA"
	SU Weekday = "SU"
)

var weekdayCodes = map[Weekday]time.Weekday{
	MO: time.Monday,
	TU: time.Tuesday,
	WE: time.Wednesday,
	TH: time.Thursday,
	FR: time.Friday,
	SA: time.Saturday,
	SU: time.Sunday,
}

func (w Weekday) Time() (time.Weekday, bool) {
	wd, ok := weekdayCodes[Weekday(strings.ToUpper(string(w)))]
	return wd, ok
}

func WeekdayOf(wd time.Weekday) Weekday {
	for code, d := range weekdayCodes {
		if d == wd {
			return code
		}
	}
	return ""
}

// Rule describes which dates belong to a series. ByMonthOrdinal holds the
// ordinals (1..5) of the anchor's weekday within a month.
type Rule struct {
	Frequency      Frequency
	ByWeekday      []Weekday
	ByMonthOrdinal []int
	Until          time.Time
}

func (r Rule) IsRecurring() bool {
	return r.Frequency != "" && r.Frequency != None
}

// Equal compares rules by value. Until is compared as a calendar date.
func (r Rule) Equal(other Rule) bool {
	return r.normalizedFrequency() == other.normalizedFrequency() &&
		slices.Equal(r.ByWeekday, other.ByWeekday) &&
		slices.Equal(r.ByMonthOrdinal, other.ByMonthOrdinal) &&
		SameDate(r.Until, other.Until)
}

func (r Rule) normalizedFrequency() Frequency {
	if r.Frequency == "" {
		return None
	}
	return r.Frequency
}

// Date truncates t to a UTC midnight holding t's calendar date in its own location.
func Date(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func SameDate(a, b time.Time) bool {
	return Date(a).Equal(Date(b))
}

// ParseDate parses a calendar date in either YYYY-MM-DD or YYYYMMDD form.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, "20060102"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
