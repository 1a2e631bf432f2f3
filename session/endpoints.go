package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/glossmark/kit"
	"github.com/hazyhaar/glossmark/session/internal/fetcher"
)

// Requests shared by the HTTP and MCP surfaces.
type (
	sessionRequest struct {
		SessionID string `json:"session_id"`
	}
	dispatchRequest struct {
		SessionID string `json:"session_id"`
		EventRequest
	}
	triggerRequest struct {
		SessionID string `json:"session_id"`
		TriggerID string `json:"trigger_id"`
	}
)

// OpenResponse is returned when a session is created.
type OpenResponse struct {
	Info
	State State `json:"state"`
}

// DocumentResponse carries the serialised document.
type DocumentResponse struct {
	SessionID string `json:"session_id"`
	HTML      string `json:"html"`
}

// endpoints are the transport-agnostic operations of a Manager.
type endpoints struct {
	open      kit.Endpoint
	list      kit.Endpoint
	dispatch  kit.Endpoint
	state     kit.Endpoint
	trigger   kit.Endpoint
	document  kit.Endpoint
	selection kit.Endpoint
	close     kit.Endpoint
}

func (m *Manager) endpoints(logger *slog.Logger) endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(withSession, kit.Logging(logger, name))(ep)
	}
	return endpoints{
		open: wrap("open_session", func(ctx context.Context, req any) (any, error) {
			s, err := m.Open(ctx, *req.(*OpenRequest))
			if err != nil {
				return nil, err
			}
			st, err := s.State(ctx)
			if err != nil {
				return nil, err
			}
			return OpenResponse{Info: s.Info(), State: st}, nil
		}),
		list: wrap("list_sessions", func(context.Context, any) (any, error) {
			return m.List(), nil
		}),
		dispatch: wrap("dispatch_event", func(ctx context.Context, req any) (any, error) {
			r := req.(*dispatchRequest)
			s, err := m.Get(r.SessionID)
			if err != nil {
				return nil, err
			}
			if err := s.Dispatch(ctx, r.EventRequest); err != nil {
				return nil, err
			}
			return s.State(ctx)
		}),
		state: wrap("get_state", func(ctx context.Context, req any) (any, error) {
			s, err := m.Get(req.(*sessionRequest).SessionID)
			if err != nil {
				return nil, err
			}
			return s.State(ctx)
		}),
		trigger: wrap("get_trigger", func(ctx context.Context, req any) (any, error) {
			r := req.(*triggerRequest)
			s, err := m.Get(r.SessionID)
			if err != nil {
				return nil, err
			}
			return s.Trigger(ctx, r.TriggerID)
		}),
		document: wrap("get_document", func(ctx context.Context, req any) (any, error) {
			s, err := m.Get(req.(*sessionRequest).SessionID)
			if err != nil {
				return nil, err
			}
			doc, err := s.Document(ctx)
			if err != nil {
				return nil, err
			}
			return DocumentResponse{SessionID: s.ID(), HTML: doc}, nil
		}),
		selection: wrap("get_selection", func(ctx context.Context, req any) (any, error) {
			s, err := m.Get(req.(*sessionRequest).SessionID)
			if err != nil {
				return nil, err
			}
			return s.Selection(ctx)
		}),
		close: wrap("close_session", func(_ context.Context, req any) (any, error) {
			id := req.(*sessionRequest).SessionID
			if err := m.Close(id); err != nil {
				return nil, err
			}
			return map[string]string{"session_id": id, "status": "closed"}, nil
		}),
	}
}

// withSession puts the addressed session id in the context for logging.
func withSession(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		switch r := req.(type) {
		case *sessionRequest:
			ctx = kit.WithSessionID(ctx, r.SessionID)
		case *dispatchRequest:
			ctx = kit.WithSessionID(ctx, r.SessionID)
		case *triggerRequest:
			ctx = kit.WithSessionID(ctx, r.SessionID)
		}
		return next(ctx, req)
	}
}

// statusOf maps an endpoint error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadEvent), errors.Is(err, ErrNoSource), errors.Is(err, ErrNoLoader):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooMany):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, fetcher.ErrStatus):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
