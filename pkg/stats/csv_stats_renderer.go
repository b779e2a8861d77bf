package stats

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

type StatsRenderer interface {
	RenderStats(stats StatsSummary) (string, error)
}

type CsvStatsRendererImpl struct {
}

func NewCsvStatsTransformer() *CsvStatsRendererImpl {
	return &CsvStatsRendererImpl{}
}

// RenderStats writes one row per occurrence followed by a total row.
func (t *CsvStatsRendererImpl) RenderStats(stats StatsSummary) (string, error) {
	data := make([][]string, 0, stats.TotalOccurrences+2)
	data = append(data, []string{"Date", "Start", "End", "Title", "Status", "Source", "Series", "Registrants"})
	for _, day := range stats.Days {
		for _, s := range day.Occurrences {
			o := s.Occurrence
			source := "local"
			if o.IsExternal() {
				source = o.ExternalMeetingId
			}
			seriesId := ""
			if o.HasSeries() {
				seriesId = o.SeriesId.UUID.String()
			}
			data = append(data, []string{
				day.Date.Format(time.DateOnly),
				o.StartTime.String(),
				o.EndTime.String(),
				o.Title,
				string(o.Status),
				source,
				seriesId,
				strconv.Itoa(s.Registrants),
			})
		}
	}
	data = append(data, []string{"Total", "", "", strconv.Itoa(stats.TotalOccurrences) + " occurrences", "", "", "", strconv.Itoa(stats.TotalRegistrants)})

	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	for _, row := range data {
		err := writer.Write(row)
		if err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}

	return b.String(), nil
}
