package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

// HTTPRecorder records HTTP requests after they have been handled.
type HTTPRecorder struct {
	Service   *Service
	OnError   func(error)
	ActorFunc func(*http.Request) Actor
}

// HTTPConfig customises how the audit entry is produced for a route.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
	ActorFunc       func(*http.Request) Actor
}

// Middleware returns a chi-compatible middleware that records an audit entry
// once the wrapped handler has written its response.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, req)
			r.record(cfg, req, sw.Status())
		})
	}
}

func (r HTTPRecorder) record(cfg HTTPConfig, req *http.Request, status int) {
	actor := r.actor(req)
	if cfg.ActorFunc != nil {
		actor = cfg.ActorFunc(req)
	}

	var resourceID string
	if cfg.ResourceIDParam != "" {
		resourceID = chi.URLParam(req, cfg.ResourceIDParam)
	}

	var metadata []byte
	if cfg.MetadataFunc != nil {
		if payload := cfg.MetadataFunc(req, status); payload != nil {
			metadata, _ = json.Marshal(payload)
		}
	}

	err := r.Service.Record(req.Context(), actor, cfg.Action, cfg.ResourceType, resourceID, req, status, metadata)
	if err != nil && r.OnError != nil {
		r.OnError(err)
	}
}

func (r HTTPRecorder) actor(req *http.Request) Actor {
	if r.ActorFunc != nil {
		return r.ActorFunc(req)
	}
	if req != nil {
		if userID, ok := common.UserID(req.Context()); ok && userID != "" {
			return Actor{Kind: ActorKindUser, UserID: &userID}
		}
	}
	return Actor{Kind: ActorKindAnonymous}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Status reports the written status, defaulting to 200 when the handler
// never called WriteHeader.
func (s *statusWriter) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
