package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/store"
)

// RunHandler reports import run bookkeeping.
type RunHandler struct {
	Runs store.RunRepository
	Log  *zap.Logger
}

// Latest returns the most recently started run.
func (h *RunHandler) Latest(w http.ResponseWriter, r *http.Request) {
	run, err := h.Runs.Latest(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No runs recorded")
		return
	}
	if err != nil {
		internalError(w, h.Log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
