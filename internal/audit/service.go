package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/obs"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindUser represents an authenticated end-user.
	ActorKindUser ActorKind = "user"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
	// ActorKindAnonymous represents unauthenticated actors.
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID *string
}

// Entry is one persisted audit log row.
type Entry struct {
	ID           string          `json:"id"`
	ActorKind    string          `json:"actor_kind"`
	ActorUserID  *string         `json:"actor_user_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Route        *string         `json:"route,omitempty"`
	Status       int             `json:"status"`
	IP           *string         `json:"ip,omitempty"`
	UserAgent    *string         `json:"user_agent,omitempty"`
	RequestID    *string         `json:"request_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, entry Entry) (string, error)
	ListAuditLogs(ctx context.Context, limit, offset int) ([]Entry, error)
}

// Service persists audit logs for critical application flows.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Record persists one audit entry for the handled request. Disabled services
// and unsampled requests return nil without touching the store.
func (s Service) Record(ctx context.Context, actor Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata []byte) error {
	if !s.Enabled || !s.sampled() {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	if status == 0 {
		status = http.StatusOK
	}

	_, err := s.Store.InsertAuditLog(ctx, Entry{
		ActorKind:    string(actor.Kind.normalize()),
		ActorUserID:  optionalPtr(actor.UserID),
		Action:       actionLabel(action, req.Method, route),
		ResourceType: resourceLabel(resourceType, route),
		ResourceID:   optional(resourceID),
		Method:       req.Method,
		Path:         req.URL.Path,
		Route:        optional(route),
		Status:       status,
		IP:           optional(common.ClientIP(req)),
		UserAgent:    optional(req.Header.Get("User-Agent")),
		RequestID:    optional(req.Header.Get("X-Request-ID")),
		Metadata:     metadataJSON(metadata, req.URL.RawQuery),
	})
	return err
}

func (s Service) sampled() bool {
	if s.SamplingRate <= 0 || s.SamplingRate >= 1 {
		return true
	}
	return rand.Float64() <= s.SamplingRate
}

// actionLabel falls back to "METHOD /route" when no explicit action is set.
func actionLabel(action, method, route string) string {
	if action = strings.TrimSpace(action); action != "" {
		return action
	}
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

// resourceLabel derives a dotted resource name from the route when no
// explicit resource type is set, stripping the /api/v1 prefix.
func resourceLabel(resourceType, route string) string {
	if resourceType = strings.TrimSpace(resourceType); resourceType != "" {
		return resourceType
	}
	route = strings.Trim(strings.TrimSpace(route), "/")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(route, "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	return strings.Join(segments, ".")
}

func (k ActorKind) normalize() ActorKind {
	switch k {
	case ActorKindUser, ActorKindSystem:
		return k
	default:
		return ActorKindAnonymous
	}
}

// optional returns a pointer to the trimmed value, or nil when blank.
func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func optionalPtr(value *string) *string {
	if value == nil {
		return nil
	}
	return optional(*value)
}

// metadataJSON prefers caller-supplied metadata and otherwise captures the
// raw query string so filtered admin actions stay reconstructible.
func metadataJSON(metadata []byte, query string) []byte {
	if len(metadata) > 0 {
		return metadata
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
