package google

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prolific-digital/wp-events/internal/rest"
)

type CalendarItemDto struct {
	Id      string `json:"id"`
	Summary string `json:"summary"`
}

type CalendarLister interface {
	ListCalendars(ctx context.Context) ([]CalendarItem, error)
}

type Handler struct {
	lister CalendarLister
}

func NewHandler(lister CalendarLister) *Handler {
	return &Handler{lister}
}

// ListCalendars lets an administrator pick the calendar to import from.
func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.lister.ListCalendars(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusBadGateway, "Unable to list Google calendars", err.Error())
		return
	}

	items := make([]CalendarItemDto, 0, len(calendars))
	for _, c := range calendars {
		items = append(items, CalendarItemDto{Id: c.ID, Summary: c.Summary})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(items); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
