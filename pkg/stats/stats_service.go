package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

// maxRange bounds a single summary.
const maxRange = 366 * 24 * time.Hour

type StatsService interface {
	GetStats(ctx context.Context, from time.Time, to time.Time) (StatsSummary, error)
}

type Lister interface {
	ListByStartDate(ctx context.Context, from, to time.Time) ([]occurrence.Occurrence, error)
}

type StatsServiceImpl struct {
	lister Lister
}

func NewStatsServiceImpl(lister Lister) *StatsServiceImpl {
	return &StatsServiceImpl{lister: lister}
}

// GetStats returns one DailyStats per calendar day in [from, to], days
// without occurrences included.
func (s *StatsServiceImpl) GetStats(ctx context.Context, from time.Time, to time.Time) (StatsSummary, error) {
	from, to = recurrence.Date(from), recurrence.Date(to)
	if to.Before(from) {
		return StatsSummary{}, fmt.Errorf("%w: range end is before its start", occurrence.ErrInvalidOccurrence)
	}
	if to.Sub(from) > maxRange {
		return StatsSummary{}, fmt.Errorf("%w: range exceeds one year", occurrence.ErrInvalidOccurrence)
	}

	occurrences, err := s.lister.ListByStartDate(ctx, from, to)
	if err != nil {
		log.Errorf("failed to list occurrences for stats: %v", err)
		return StatsSummary{}, err
	}
	log.Tracef("Occurrences: %v", len(occurrences))

	byDate := make(map[time.Time][]occurrence.Occurrence)
	for _, o := range occurrences {
		byDate[o.StartDate] = append(byDate[o.StartDate], o)
	}

	summary := StatsSummary{StartDate: from, EndDate: to}
	series := make(map[uuid.UUID]bool)
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		daily := DailyStats{Date: date, Occurrences: []OccurrenceStats{}}
		for _, o := range byDate[date] {
			daily.Occurrences = append(daily.Occurrences, OccurrenceStats{Occurrence: o, Registrants: len(o.Registrants)})
			daily.TotalRegistrants += len(o.Registrants)
			summary.TotalOccurrences++
			if o.IsExternal() {
				summary.External++
			}
			if o.HasSeries() {
				series[o.SeriesId.UUID] = true
			}
		}
		summary.TotalRegistrants += daily.TotalRegistrants
		summary.Days = append(summary.Days, daily)
	}
	summary.Series = len(series)
	return summary, nil
}
