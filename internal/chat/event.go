package chat

import "github.com/soyeahso/consultant/internal/domain"

// EventType names what an Event reports.
type EventType string

const (
	// EventMessages carries the full message list after a load, switch or
	// new user turn.
	EventMessages EventType = "messages"
	// EventDelta carries the growing assistant message and its blocks.
	EventDelta EventType = "delta"
	// EventDone marks the end of an assistant turn.
	EventDone           EventType = "done"
	EventError          EventType = "error"
	EventAccessDenied   EventType = "access_denied"
	EventReauthRequired EventType = "reauth_required"
)

// Event is delivered to the engine's subscriber.
type Event struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"sessionId"`
	MessageID string           `json:"messageId,omitempty"`
	Content   string           `json:"content,omitempty"`
	Blocks    []domain.Block   `json:"blocks,omitempty"`
	Messages  []domain.Message `json:"messages,omitempty"`
	Error     string           `json:"error,omitempty"`
}
