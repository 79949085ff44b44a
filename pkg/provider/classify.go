package provider

import "encoding/json"

// Event is one normalized run event as emitted by a provider, before
// the pipeline assigns it a sequence number.
type Event struct {
	Type    string         `json:"eventType"`
	Payload map[string]any `json:"payload"`
}

// Classify maps a provider-native message to its normalized event. The
// mapping is total: every known kind yields exactly one event type, an
// unknown or signal-free message yields ok=false and is skipped. It
// never fails on an unrecognized kind.
func Classify(msg Message) (Event, bool) {
	switch msg.Kind {
	case KindSystemInit:
		return payloadEvent("agent.system.init", msg.System)
	case KindSystemStatus:
		return payloadEvent("agent.system.status", msg.System)
	case KindCompactBoundary:
		return payloadEvent("agent.system.compact_boundary", msg.System)
	case KindHookStarted:
		return payloadEvent("agent.hook.started", msg.Hook)
	case KindHookProgress:
		return payloadEvent("agent.hook.progress", msg.Hook)
	case KindHookResponse:
		return payloadEvent("agent.hook.response", msg.Hook)
	case KindTaskNotification:
		return payloadEvent("agent.task.notification", msg.Task)
	case KindFilesPersisted:
		return payloadEvent("agent.files.persisted", msg.Files)
	case KindAssistant:
		if msg.Assistant == nil || msg.Assistant.Text == "" {
			return Event{}, false
		}
		return payloadEvent("agent.assistant", msg.Assistant)
	case KindToolCall:
		return payloadEvent("agent.tool.call", msg.ToolCall)
	case KindToolResult:
		return payloadEvent("agent.tool.result", msg.ToolResult)
	case KindToolProgress:
		return payloadEvent("agent.tool.progress", msg.ToolProgress)
	case KindToolSummary:
		return payloadEvent("agent.tool.summary", msg.ToolSummary)
	case KindAuthStatus:
		return payloadEvent("agent.auth.status", msg.AuthStatus)
	case KindStreamEvent:
		return payloadEvent("agent.stream_event", msg.Stream)
	case KindResult:
		return payloadEvent("agent.result", msg.Result)
	default:
		// Unknown kinds carry no externally meaningful signal.
		return Event{}, false
	}
}

// payloadEvent converts a typed payload into the generic event payload
// map. A nil payload means the message was malformed upstream; it is
// skipped rather than surfaced as an error.
func payloadEvent[T any](eventType string, payload *T) (Event, bool) {
	if payload == nil {
		return Event{}, false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, false
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Event{}, false
	}
	return Event{Type: eventType, Payload: m}, true
}
