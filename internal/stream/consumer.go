// Package stream consumes a chat backend's server-sent delta frames and
// reports the growing assistant text to a callback.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/consultant/internal/logging"
)

var (
	// ErrAccessDenied means the caller lacks the entitlement for the chat
	// feature and should be sent to the access flow.
	ErrAccessDenied = errors.New("chat access denied")

	// ErrReauthRequired means the caller's credentials were rejected and
	// they must sign in again.
	ErrReauthRequired = errors.New("re-authentication required")
)

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat backend returned status %d", e.Code)
	}
	return fmt.Sprintf("chat backend returned status %d: %s", e.Code, e.Body)
}

// Result summarizes one consumed stream.
type Result struct {
	// Text is every delta received, including those after the stream went stale.
	Text    string
	Frames  int
	Dropped int
	// Stale is set when the target session stopped being active mid-stream.
	Stale bool
}

const (
	defaultChunkSize = 4096
	maxErrorBody     = 2048
)

// Consumer drives chat requests and decodes their streamed responses.
type Consumer struct {
	client    *http.Client
	log       *logging.Logger
	chunkSize int
}

// NewConsumer creates a consumer. A nil client gets a client without a
// timeout, since responses stream for as long as the model writes.
func NewConsumer(client *http.Client, log *logging.Logger) *Consumer {
	if client == nil {
		client = &http.Client{}
	}
	return &Consumer{
		client:    client,
		log:       log.Sub("stream"),
		chunkSize: defaultChunkSize,
	}
}

// Consume issues req and feeds every non-empty delta to onDelta as the full
// accumulated text so far. Before each callback, active is asked for the
// caller's current session; once it differs from target no further callbacks
// are made and the rest of the body is drained.
func (c *Consumer) Consume(ctx context.Context, req *http.Request, target string, active func() string, onDelta func(text string)) (Result, error) {
	var res Result
	start := time.Now()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return res, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return res, err
	}

	var (
		acc   strings.Builder
		lines lineDecoder
		buf   = make([]byte, c.chunkSize)
	)

	handle := func(line string) {
		delta, ok := c.parseLine(line, &res)
		if !ok || delta == "" {
			return
		}
		acc.WriteString(delta)
		if res.Stale {
			return
		}
		if active() != target {
			res.Stale = true
			c.log.Debug().Str("session", target).Msg("target session no longer active, ignoring further deltas")
			return
		}
		onDelta(acc.String())
	}

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range lines.feed(buf[:n]) {
				handle(line)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			res.Text = acc.String()
			return res, fmt.Errorf("reading stream: %w", readErr)
		}
	}

	if tail := lines.remainder(); tail != "" {
		c.log.Debug().Int("bytes", len(tail)).Msg("discarding unterminated trailing frame")
	}

	res.Text = acc.String()
	c.log.Debug().
		Str("session", target).
		Int("frames", res.Frames).
		Int("dropped", res.Dropped).
		Bool("stale", res.Stale).
		Dur("duration", time.Since(start)).
		Msg("stream finished")
	return res, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrReauthRequired
	case resp.StatusCode == http.StatusPaymentRequired, resp.StatusCode == http.StatusForbidden:
		return ErrAccessDenied
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

type deltaFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// parseLine extracts the text delta from one complete line. Lines that are
// not data frames, and data frames that fail to decode, yield ok == false.
func (c *Consumer) parseLine(line string, res *Result) (string, bool) {
	if line == "" || strings.HasPrefix(line, ":") || line == "data: [DONE]" {
		return "", false
	}
	data, found := strings.CutPrefix(line, "data: ")
	if !found {
		return "", false
	}

	var frame deltaFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		res.Dropped++
		c.log.Debug().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
		return "", false
	}
	res.Frames++
	if len(frame.Choices) == 0 {
		return "", false
	}
	return frame.Choices[0].Delta.Content, true
}
