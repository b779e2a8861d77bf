package stats

import (
	"time"

	"github.com/prolific-digital/wp-events/pkg/occurrence"
)

type DailyStats struct {
	Date             time.Time
	Occurrences      []OccurrenceStats
	TotalRegistrants int
}

type OccurrenceStats struct {
	Occurrence  occurrence.Occurrence
	Registrants int
}

// StatsSummary covers the published and draft occurrences between two dates.
type StatsSummary struct {
	StartDate        time.Time
	EndDate          time.Time
	Days             []DailyStats
	TotalOccurrences int
	External         int
	Series           int
	TotalRegistrants int
}
