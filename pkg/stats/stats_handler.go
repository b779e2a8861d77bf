package stats

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prolific-digital/wp-events/internal/rest"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
)

type DailyStatsDTO struct {
	Date             string               `json:"date"`
	Occurrences      []OccurrenceStatsDTO `json:"occurrences"`
	TotalRegistrants int                  `json:"totalRegistrants"`
}

type OccurrenceStatsDTO struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	External    bool   `json:"external"`
	Registrants int    `json:"registrants"`
}

type StatsSummaryDTO struct {
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	Days             []DailyStatsDTO `json:"days"`
	TotalOccurrences int             `json:"totalOccurrences"`
	External         int             `json:"external"`
	Series           int             `json:"series"`
	TotalRegistrants int             `json:"totalRegistrants"`
}

type StatsHandler struct {
	statsService     StatsService
	csvStatsRenderer StatsRenderer
}

func NewStatsHandler(statsService StatsService, csvStatsRenderer StatsRenderer) *StatsHandler {
	return &StatsHandler{statsService, csvStatsRenderer}
}

// GetStats serves registration statistics as JSON, or CSV when the client
// accepts text/csv.
func (handler *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	fromDate, err := time.Parse(time.DateOnly, r.URL.Query().Get("from"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from format", "from must be in YYYY-MM-DD format")
		return
	}
	toDate, err := time.Parse(time.DateOnly, r.URL.Query().Get("to"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to format", "to must be in YYYY-MM-DD format")
		return
	}
	stats, err := handler.statsService.GetStats(r.Context(), fromDate, toDate)
	if err != nil {
		if errors.Is(err, occurrence.ErrInvalidOccurrence) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid range", err.Error())
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.Header.Get("Accept") == "text/csv" {
		csv, err := handler.csvStatsRenderer.RenderStats(stats)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(csv)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(convertToJsonResponse(&stats)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func convertToJsonResponse(stats *StatsSummary) *StatsSummaryDTO {
	days := make([]DailyStatsDTO, 0, len(stats.Days))
	for _, day := range stats.Days {
		dailyStatsDTO := DailyStatsDTO{
			Date:             day.Date.Format(time.DateOnly),
			Occurrences:      make([]OccurrenceStatsDTO, 0, len(day.Occurrences)),
			TotalRegistrants: day.TotalRegistrants,
		}
		for _, s := range day.Occurrences {
			dailyStatsDTO.Occurrences = append(dailyStatsDTO.Occurrences, OccurrenceStatsDTO{
				Id:          s.Occurrence.Id.String(),
				Title:       s.Occurrence.Title,
				External:    s.Occurrence.IsExternal(),
				Registrants: s.Registrants,
			})
		}
		days = append(days, dailyStatsDTO)
	}

	return &StatsSummaryDTO{
		StartDate:        stats.StartDate.Format(time.DateOnly),
		EndDate:          stats.EndDate.Format(time.DateOnly),
		Days:             days,
		TotalOccurrences: stats.TotalOccurrences,
		External:         stats.External,
		Series:           stats.Series,
		TotalRegistrants: stats.TotalRegistrants,
	}
}
