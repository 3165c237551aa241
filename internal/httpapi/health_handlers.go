package httpapi

import (
	"net/http"
	"strconv"

	"jobmail-engine/internal/health"
	"jobmail-engine/internal/pipeline"
	"jobmail-engine/internal/store"
)

type StatusHandler struct {
	Snapshot   func() pipeline.RunStats
	LastSample func() (health.Sample, bool)
	Postings   PostingLister
}

func (h StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	if h.Snapshot != nil {
		out["run"] = h.Snapshot()
	}
	if h.LastSample != nil {
		if s, ok := h.LastSample(); ok {
			out["health"] = s
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h StatusHandler) ListPostings(w http.ResponseWriter, r *http.Request) {
	if h.Postings == nil {
		WriteError(w, r, http.StatusNotFound, "no_store", "posting store not configured")
		return
	}
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, r, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = store.ClampLimit(n)
	}
	list, err := h.Postings.ListRecent(r.Context(), limit)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, list)
}
