package recurrence

import (
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
)

// MaxOccurrences caps a single expansion so a far away until date can not
// produce an unbounded series.
const MaxOccurrences = 5000

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Expand returns the ordered, de-duplicated calendar dates of rule starting at
// anchor. The first date is always the anchor and no date is after rule.Until.
// Returned dates are UTC midnights. timezone is only used to turn an anchor or
// until value that carries a time of day into a calendar date.
func Expand(rule Rule, anchor time.Time, timezone string) ([]time.Time, error) {
	if anchor.IsZero() {
		return nil, fmt.Errorf("%w: missing anchor date", ErrInvalidRule)
	}
	loc, err := loadLocation(timezone)
	if err != nil {
		return nil, err
	}
	start := toDate(anchor, loc)

	if !rule.IsRecurring() {
		return []time.Time{start}, nil
	}
	if rule.Until.IsZero() {
		return nil, fmt.Errorf("%w: %s rule without an end date", ErrInvalidRule, rule.Frequency)
	}
	until := toDate(rule.Until, loc)
	if until.Before(start) {
		return nil, fmt.Errorf("%w: until %s is before anchor %s", ErrInvalidRange,
			until.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	opt, err := buildOption(rule, start, until)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	dates := r.All()
	if len(dates) > MaxOccurrences {
		log.Debugf("expansion of %s rule from %s exceeds %d occurrences", rule.Frequency, start.Format(time.DateOnly), MaxOccurrences)
		return nil, fmt.Errorf("%w: more than %d occurrences", ErrInvalidRange, MaxOccurrences)
	}

	result := make([]time.Time, 0, len(dates)+1)
	result = append(result, start)
	for _, d := range dates {
		d = Date(d)
		if !d.After(start) || d.After(until) {
			continue
		}
		result = append(result, d)
	}
	slices.SortFunc(result, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(result, func(a, b time.Time) bool { return a.Equal(b) }), nil
}

func buildOption(rule Rule, start, until time.Time) (rrule.ROption, error) {
	opt := rrule.ROption{
		Dtstart: start,
		Until:   until,
		Count:   MaxOccurrences + 1,
	}
	anchorDay := rruleWeekdays[start.Weekday()]

	switch rule.Frequency {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
		days, err := weekdays(rule.ByWeekday)
		if err != nil {
			return opt, err
		}
		if len(days) == 0 {
			days = []rrule.Weekday{anchorDay}
		}
		opt.Byweekday = days
	case Monthly:
		opt.Freq = rrule.MONTHLY
		for _, ordinal := range rule.ByMonthOrdinal {
			if ordinal < 1 || ordinal > 5 {
				return opt, fmt.Errorf("%w: month ordinal %d out of range", ErrInvalidRule, ordinal)
			}
			opt.Byweekday = append(opt.Byweekday, anchorDay.Nth(ordinal))
		}
		// without ordinals rrule repeats on the anchor's day of month
	case Yearly:
		opt.Freq = rrule.YEARLY
		if len(rule.ByWeekday) == 0 {
			break
		}
		days, err := weekdays(rule.ByWeekday)
		if err != nil {
			return opt, err
		}
		for _, d := range days {
			if d != anchorDay {
				return opt, fmt.Errorf("%w: yearly weekday %s differs from the anchor weekday", ErrInvalidRule, d)
			}
		}
		opt.Bymonth = []int{int(start.Month())}
		opt.Byweekday = []rrule.Weekday{anchorDay.Nth(OrdinalInMonth(start))}
	default:
		return opt, fmt.Errorf("%w: unsupported frequency %q", ErrInvalidRule, rule.Frequency)
	}
	return opt, nil
}

func weekdays(codes []Weekday) ([]rrule.Weekday, error) {
	var days []rrule.Weekday
	for _, code := range codes {
		wd, ok := code.Time()
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, code)
		}
		day := rruleWeekdays[wd]
		if !slices.Contains(days, day) {
			days = append(days, day)
		}
	}
	return days, nil
}

// OrdinalInMonth returns which occurrence of its weekday t is within its month (1..5).
func OrdinalInMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

func loadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidRule, timezone)
	}
	return loc, nil
}

func toDate(t time.Time, loc *time.Location) time.Time {
	h, m, s := t.Clock()
	if h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return Date(t)
	}
	return Date(t.In(loc))
}
