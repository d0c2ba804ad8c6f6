// Package startup decides whether a freshly mounted chat surface should send
// anything before the user types.
package startup

// Decision is the outcome of Resolve.
type Decision int

const (
	None Decision = iota
	SendInitialMessage
	SendAssistantStarter
)

func (d Decision) String() string {
	switch d {
	case SendInitialMessage:
		return "send_initial_message"
	case SendAssistantStarter:
		return "send_assistant_starter"
	default:
		return "none"
	}
}

// Inputs are the facts Resolve looks at. HasSession must be false while the
// session is still hydrating.
type Inputs struct {
	HasAccess               bool
	HasUser                 bool
	HasSession              bool
	MessageCount            int
	HasInitialMessage       bool
	ProactiveStarterEnabled bool
	AlreadyTriggered        bool
}

// Resolve returns the automatic action for in. The first matching rule wins:
// an earlier trigger, missing user/access/session, or an existing
// conversation all yield None; a caller-supplied opening line beats the
// proactive starter.
func Resolve(in Inputs) Decision {
	switch {
	case in.AlreadyTriggered:
		return None
	case !in.HasUser || !in.HasAccess || !in.HasSession:
		return None
	case in.MessageCount > 0:
		return None
	case in.HasInitialMessage:
		return SendInitialMessage
	case in.ProactiveStarterEnabled:
		return SendAssistantStarter
	default:
		return None
	}
}
