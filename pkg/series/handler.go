package series

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prolific-digital/wp-events/internal/rest"
	"github.com/prolific-digital/wp-events/pkg/calendar"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	store    occurrence.Store
	renderer *calendar.Renderer
}

func NewHandler(store occurrence.Store, renderer *calendar.Renderer) *Handler {
	return &Handler{store: store, renderer: renderer}
}

// GetMembers lists the members of a series ordered by start date.
func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
	members, ok := h.members(w, r)
	if !ok {
		return
	}
	dtos := make([]occurrence.OccurrenceDTO, 0, len(members))
	for _, m := range members {
		dtos = append(dtos, occurrence.ToDTO(m))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ExportCalendar serves the series as an iCalendar file.
func (h *Handler) ExportCalendar(w http.ResponseWriter, r *http.Request) {
	members, ok := h.members(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "series-"+mux.Vars(r)["seriesId"]+".ics"))
	if err := h.renderer.Write(w, members[0].Title, members); err != nil {
		log.Errorf("failed to write calendar: %v", err)
	}
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) ([]occurrence.Occurrence, bool) {
	seriesId, err := uuid.Parse(mux.Vars(r)["seriesId"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid series id", err.Error())
		return nil, false
	}
	members, err := h.store.GetBySeries(r.Context(), seriesId)
	if err != nil {
		log.Errorf("failed to get series %s: %v", seriesId, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if len(members) == 0 {
		rest.WriteError(w, http.StatusNotFound, "Series not found", "")
		return nil, false
	}
	return members, true
}
