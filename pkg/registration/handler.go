package registration

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/prolific-digital/wp-events/internal/rest"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
)

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

type RegistrationResultDTO struct {
	OccurrenceId string `json:"occurrenceId"`
	Email        string `json:"email"`
	Registered   bool   `json:"registered"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register handles the public registration form of an occurrence.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid occurrence id", err.Error())
		return
	}
	if err := r.ParseForm(); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid form", err.Error())
		return
	}
	var registration Registration
	if err := decoder.Decode(&registration, r.PostForm); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid form", err.Error())
		return
	}

	added, err := h.service.Register(r.Context(), id, registration)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRegistration):
			rest.WriteError(w, http.StatusBadRequest, "Invalid email address", err.Error())
		case errors.Is(err, occurrence.ErrOccurrenceNotFound):
			rest.WriteError(w, http.StatusNotFound, "Occurrence not found", "")
		case errors.Is(err, ErrRegistrationClosed):
			rest.WriteError(w, http.StatusConflict, "Registration is closed", err.Error())
		case errors.Is(err, ErrUpstreamRejected):
			rest.WriteError(w, http.StatusBadGateway, "Registration was rejected by the meeting provider", err.Error())
		default:
			rest.WriteError(w, http.StatusInternalServerError, "Unable to register", err.Error())
		}
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(RegistrationResultDTO{
		OccurrenceId: id.String(),
		Email:        registration.Email,
		Registered:   true,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
