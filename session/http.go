package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/glossmark/kit"
)

// maxBody bounds request bodies; inline pages can be large.
const maxBody = 16 << 20

// Routes returns the HTTP API of m.
//
//	POST   /sessions                      open a session
//	GET    /sessions                      list sessions
//	GET    /sessions/{id}                 state
//	GET    /sessions/{id}/document        serialised document
//	POST   /sessions/{id}/events          dispatch an event
//	GET    /sessions/{id}/triggers/{tid}  one trigger
//	GET    /sessions/{id}/selection       last selection
//	DELETE /sessions/{id}                 close
func (m *Manager) Routes(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = m.logger
	}
	ep := m.endpoints(logger)
	r := chi.NewRouter()

	r.Post("/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req OpenRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		serve(w, r, http.StatusCreated, ep.open, &req)
	})
	r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, http.StatusOK, ep.list, nil)
	})
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			serve(w, r, http.StatusOK, ep.state, &sessionRequest{SessionID: chi.URLParam(r, "id")})
		})
		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			serve(w, r, http.StatusOK, ep.close, &sessionRequest{SessionID: chi.URLParam(r, "id")})
		})
		r.Get("/document", func(w http.ResponseWriter, r *http.Request) {
			resp, err := ep.document(httpContext(r), &sessionRequest{SessionID: chi.URLParam(r, "id")})
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			if r.URL.Query().Get("format") == "json" {
				writeJSON(w, http.StatusOK, resp)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(resp.(DocumentResponse).HTML))
		})
		r.Post("/events", func(w http.ResponseWriter, r *http.Request) {
			req := dispatchRequest{SessionID: chi.URLParam(r, "id")}
			if err := decode(r, &req.EventRequest); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			serve(w, r, http.StatusOK, ep.dispatch, &req)
		})
		r.Get("/triggers/{tid}", func(w http.ResponseWriter, r *http.Request) {
			serve(w, r, http.StatusOK, ep.trigger, &triggerRequest{
				SessionID: chi.URLParam(r, "id"),
				TriggerID: chi.URLParam(r, "tid"),
			})
		})
		r.Get("/selection", func(w http.ResponseWriter, r *http.Request) {
			serve(w, r, http.StatusOK, ep.selection, &sessionRequest{SessionID: chi.URLParam(r, "id")})
		})
	})
	return r
}

func httpContext(r *http.Request) context.Context {
	ctx := kit.WithTransport(r.Context(), "http")
	if id := r.Header.Get("X-Request-Id"); id != "" {
		ctx = kit.WithRequestID(ctx, id)
	}
	return ctx
}

func serve(w http.ResponseWriter, r *http.Request, code int, ep kit.Endpoint, req any) {
	resp, err := ep(httpContext(r), req)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, code, resp)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
