package plugin

import (
	"context"
	"sync"

	"github.com/soyeahso/consultant/internal/hooks"
	"github.com/soyeahso/consultant/internal/logging"
)

// Activity logs every lifecycle hook and counts them per event.
type Activity struct {
	mu     sync.Mutex
	counts map[string]int
	hooks  *hooks.Manager
	log    *logging.Logger
}

// NewActivity creates the activity plugin.
func NewActivity() *Activity {
	return &Activity{counts: make(map[string]int)}
}

func (a *Activity) ID() string { return "activity" }

func (a *Activity) Init(_ context.Context, api API) error {
	a.hooks = api.Hooks
	a.log = api.Log
	for _, ev := range hooks.AllEvents {
		api.Hooks.On(ev, a.ID(), a.record)
	}
	return nil
}

func (a *Activity) record(_ context.Context, p hooks.Payload) error {
	a.mu.Lock()
	a.counts[p.Event]++
	a.mu.Unlock()

	ev := a.log.Info()
	if p.Event == hooks.EventTurnSending || p.Event == hooks.EventTurnCompleted {
		ev = a.log.Debug()
	}
	ev.Str("event", p.Event).Str("session", p.SessionID).Interface("data", p.Data).Msg("activity")
	return nil
}

// Counts returns how often each event fired.
func (a *Activity) Counts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

func (a *Activity) Close() error {
	if a.hooks == nil {
		return nil
	}
	for _, ev := range hooks.AllEvents {
		a.hooks.Off(ev, a.ID())
	}
	return nil
}
