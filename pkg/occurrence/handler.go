package occurrence

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prolific-digital/wp-events/internal/rest"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	store Store
}

type RecurrenceDTO struct {
	Frequency      string   `json:"frequency"`
	ByWeekday      []string `json:"byWeekday,omitempty"`
	ByMonthOrdinal []int    `json:"byMonthOrdinal,omitempty"`
	Until          string   `json:"until,omitempty"`
}

type OccurrenceDTO struct {
	Id                string        `json:"id"`
	SeriesId          string        `json:"seriesId,omitempty"`
	ParentId          string        `json:"parentId,omitempty"`
	ExternalMeetingId string        `json:"externalMeetingId,omitempty"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	RegistrationURL   string        `json:"registrationUrl"`
	StartDate         string        `json:"startDate"`
	StartTime         string        `json:"startTime,omitempty"`
	EndTime           string        `json:"endTime,omitempty"`
	Notify            bool          `json:"notify"`
	Registrants       []string      `json:"registrants"`
	Status            string        `json:"status"`
	Recurrence        RecurrenceDTO `json:"recurrence"`
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.DateOnly, r.URL.Query().Get("from"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from (date) format", "'from' must be in YYYY-MM-DD format")
		return
	}
	to, err := time.Parse(time.DateOnly, r.URL.Query().Get("to"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to (date) format", "'to' must be in YYYY-MM-DD format")
		return
	}

	occurrences, err := h.store.ListByStartDate(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, ErrInvalidOccurrence) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid date range", err.Error())
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dtos := make([]OccurrenceDTO, 0, len(occurrences))
	for _, o := range occurrences {
		dtos = append(dtos, ToDTO(o))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(w, r)
	if !ok {
		return
	}
	o, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(o))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto OccurrenceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	o, err := FromDTO(dto)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid occurrence", err.Error())
		return
	}
	// series and provider bindings are managed by the server
	o.Id = uuid.Nil
	o.SeriesId = uuid.NullUUID{}
	o.ParentId = uuid.Nil
	o.ExternalMeetingId = ""

	created, err := h.store.Create(r.Context(), o)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// the series may have been created while saving
	if reloaded, err := h.store.Get(r.Context(), created.Id); err == nil {
		created = reloaded
	}
	writeJSON(w, http.StatusCreated, ToDTO(created))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(w, r)
	if !ok {
		return
	}
	var dto OccurrenceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	edited, err := FromDTO(dto)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid occurrence", err.Error())
		return
	}
	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	existing.Details = edited.Details
	existing.StartDate = edited.StartDate
	existing.Rule = edited.Rule
	existing.Status = edited.Status

	updated, err := h.store.Update(r.Context(), existing)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if reloaded, err := h.store.Get(r.Context(), updated.Id); err == nil {
		updated = reloaded
	}
	writeJSON(w, http.StatusOK, ToDTO(updated))
}

func (h *Handler) Trash(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(w, r)
	if !ok {
		return
	}
	if _, err := h.store.Trash(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func idFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid occurrence id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOccurrenceNotFound):
		rest.WriteError(w, http.StatusNotFound, "Occurrence not found", "")
	case errors.Is(err, ErrOccurrenceTrashed):
		rest.WriteError(w, http.StatusConflict, "Occurrence is trashed", "")
	case errors.Is(err, ErrInvalidOccurrence):
		rest.WriteError(w, http.StatusBadRequest, "Invalid occurrence", err.Error())
	default:
		log.Errorf("occurrence request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func ToDTO(o Occurrence) OccurrenceDTO {
	dto := OccurrenceDTO{
		Id:                o.Id.String(),
		ExternalMeetingId: o.ExternalMeetingId,
		Title:             o.Title,
		Description:       o.Description,
		RegistrationURL:   o.RegistrationURL,
		StartDate:         o.StartDate.Format(time.DateOnly),
		StartTime:         o.StartTime.String(),
		EndTime:           o.EndTime.String(),
		Notify:            o.Notify,
		Registrants:       o.Registrants,
		Status:            string(o.Status),
		Recurrence: RecurrenceDTO{
			Frequency:      string(o.Rule.Frequency),
			ByMonthOrdinal: o.Rule.ByMonthOrdinal,
		},
	}
	if dto.Registrants == nil {
		dto.Registrants = []string{}
	}
	if o.SeriesId.Valid {
		dto.SeriesId = o.SeriesId.UUID.String()
	}
	if o.ParentId != uuid.Nil {
		dto.ParentId = o.ParentId.String()
	}
	for _, w := range o.Rule.ByWeekday {
		dto.Recurrence.ByWeekday = append(dto.Recurrence.ByWeekday, string(w))
	}
	if !o.Rule.Until.IsZero() {
		dto.Recurrence.Until = o.Rule.Until.Format(time.DateOnly)
	}
	return dto
}

func FromDTO(dto OccurrenceDTO) (Occurrence, error) {
	var o Occurrence
	var err error
	if dto.Id != "" {
		if o.Id, err = uuid.Parse(dto.Id); err != nil {
			return Occurrence{}, err
		}
	}
	if o.StartDate, err = recurrence.ParseDate(dto.StartDate); err != nil {
		return Occurrence{}, err
	}
	if o.StartTime, err = ParseTimeOfDay(dto.StartTime); err != nil {
		return Occurrence{}, err
	}
	if o.EndTime, err = ParseTimeOfDay(dto.EndTime); err != nil {
		return Occurrence{}, err
	}
	if o.Status, err = ParseStatus(dto.Status); err != nil {
		return Occurrence{}, err
	}
	if o.Rule.Frequency, err = recurrence.ParseFrequency(dto.Recurrence.Frequency); err != nil {
		return Occurrence{}, err
	}
	for _, code := range dto.Recurrence.ByWeekday {
		wd := recurrence.Weekday(strings.ToUpper(code))
		if _, ok := wd.Time(); !ok {
			return Occurrence{}, recurrence.ErrInvalidRule
		}
		o.Rule.ByWeekday = append(o.Rule.ByWeekday, wd)
	}
	o.Rule.ByMonthOrdinal = dto.Recurrence.ByMonthOrdinal
	if dto.Recurrence.Until != "" {
		if o.Rule.Until, err = recurrence.ParseDate(dto.Recurrence.Until); err != nil {
			return Occurrence{}, err
		}
	}
	o.Title = dto.Title
	o.Description = dto.Description
	o.RegistrationURL = dto.RegistrationURL
	o.Notify = dto.Notify
	o.Registrants = dto.Registrants
	return o, nil
}
