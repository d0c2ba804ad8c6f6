package startup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ready() Inputs {
	return Inputs{HasAccess: true, HasUser: true, HasSession: true}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Inputs)
		want Decision
	}{
		{"nothing requested", func(in *Inputs) {}, None},
		{"initial message", func(in *Inputs) { in.HasInitialMessage = true }, SendInitialMessage},
		{"proactive starter", func(in *Inputs) { in.ProactiveStarterEnabled = true }, SendAssistantStarter},
		{"initial beats starter", func(in *Inputs) {
			in.HasInitialMessage = true
			in.ProactiveStarterEnabled = true
		}, SendInitialMessage},
		{"existing conversation", func(in *Inputs) {
			in.MessageCount = 3
			in.HasInitialMessage = true
		}, None},
		{"no user", func(in *Inputs) {
			in.HasUser = false
			in.HasInitialMessage = true
		}, None},
		{"no access", func(in *Inputs) {
			in.HasAccess = false
			in.ProactiveStarterEnabled = true
		}, None},
		{"still hydrating", func(in *Inputs) {
			in.HasSession = false
			in.HasInitialMessage = true
		}, None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ready()
			tt.mod(&in)
			assert.Equal(t, tt.want, Resolve(in))
		})
	}
}

func TestResolve_AlreadyTriggeredAlwaysNone(t *testing.T) {
	// Every combination of the boolean inputs, with and without messages.
	for mask := 0; mask < 1<<5; mask++ {
		for _, count := range []int{0, 1} {
			in := Inputs{
				HasAccess:               mask&1 != 0,
				HasUser:                 mask&2 != 0,
				HasSession:              mask&4 != 0,
				HasInitialMessage:       mask&8 != 0,
				ProactiveStarterEnabled: mask&16 != 0,
				MessageCount:            count,
				AlreadyTriggered:        true,
			}
			assert.Equal(t, None, Resolve(in), "inputs %+v", in)
		}
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "send_initial_message", SendInitialMessage.String())
	assert.Equal(t, "send_assistant_starter", SendAssistantStarter.String())
}
