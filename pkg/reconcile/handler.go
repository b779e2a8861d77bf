package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prolific-digital/wp-events/internal/rest"
	"github.com/prolific-digital/wp-events/pkg/provider"
)

type Runner interface {
	Run(ctx context.Context) (Result, error)
}

type Handler struct {
	runner Runner
}

func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

// Sync runs a reconciliation immediately and returns its result.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context())
	if err != nil {
		if errors.Is(err, provider.ErrTransport) || errors.Is(err, provider.ErrParse) {
			rest.WriteError(w, http.StatusBadGateway, "Provider is unavailable", err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Reconciliation failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
