package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/consultant/internal/chat"
	"github.com/soyeahso/consultant/internal/session"
	"github.com/soyeahso/consultant/internal/store"
	"github.com/soyeahso/consultant/internal/stream"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Clients  int    `json:"clients,omitempty"`
	UptimeMs int64  `json:"uptimeMs,omitempty"`
	Chat     bool   `json:"chat,omitempty"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// Fail maps an engine error to an error response.
func (rc *RequestContext) Fail(err error) {
	shape := ErrorShape{Code: errorCode(err), Message: err.Error()}
	shape.Retryable = session.IsTransient(err) || errors.Is(err, chat.ErrBusy)
	rc.Client.RespondError(rc.Frame.ID, shape)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotHydrated):
		return "not_ready"
	case errors.Is(err, chat.ErrBusy):
		return "busy"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "invalid_params"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, stream.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, stream.ErrReauthRequired):
		return "reauth_required"
	case session.IsTransient(err):
		return "unavailable"
	default:
		return "internal_error"
	}
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
