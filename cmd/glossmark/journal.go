package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/glossmark/internal/store"
)

// journalRoutes exposes the SQLite journal of a page for replay.
//
//	GET /pages/{id}/snapshot           latest snapshot
//	GET /pages/{id}/batches?after=N    batches with seq > N
//	GET /pages/{id}/events?trigger=T   events, optionally of one trigger
//	GET /pages/{id}/feedback           accepted and rejected verdicts
func journalRoutes(st *store.Store) http.Handler {
	r := chi.NewRouter()
	r.Get("/{id}/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap, err := st.LatestSnapshot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})
	r.Get("/{id}/batches", func(w http.ResponseWriter, r *http.Request) {
		var after uint64
		if s := r.URL.Query().Get("after"); s != "" {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			after = v
		}
		batches, err := st.Batches(r.Context(), chi.URLParam(r, "id"), after)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, batches)
	})
	r.Get("/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := st.Events(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("trigger"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	})
	r.Get("/{id}/feedback", func(w http.ResponseWriter, r *http.Request) {
		accepted, rejected, err := st.FeedbackStats(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"accepted": accepted, "rejected": rejected})
	})
	return r
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
