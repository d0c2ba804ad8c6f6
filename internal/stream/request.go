package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/soyeahso/consultant/internal/domain"
)

// Turn is one entry of the conversation history sent to the backend.
type Turn struct {
	Role     domain.Role `json:"role"`
	Content  string      `json:"content"`
	ImageRef string      `json:"imageRef,omitempty"`
}

// ChatRequest is the body of an outgoing chat request.
type ChatRequest struct {
	Messages  []Turn `json:"messages"`
	SessionID string `json:"sessionId"`
	Starter   bool   `json:"isStarter"`
}

// Endpoint locates and authenticates the chat backend function.
type Endpoint struct {
	URL         string
	APIKey      string
	AccessToken string
}

// TurnsFrom converts a message list into request history, skipping empty
// assistant shells.
func TurnsFrom(msgs []domain.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleAssistant && m.Content == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: m.Content, ImageRef: m.ImageRef})
	}
	return turns
}

// NewRequest builds the POST request for body against ep.
func NewRequest(ctx context.Context, ep Endpoint, body ChatRequest) (*http.Request, error) {
	if ep.URL == "" {
		return nil, fmt.Errorf("chat endpoint URL is not configured")
	}
	if body.Messages == nil {
		body.Messages = []Turn{}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if ep.APIKey != "" {
		req.Header.Set("apikey", ep.APIKey)
	}
	if ep.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+ep.AccessToken)
	}
	return req, nil
}
