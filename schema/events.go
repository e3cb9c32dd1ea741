package schema

// MessageEventType classifies message events emitted by the session.
type MessageEventType string

// Message event types.
const (
	MessageAppended MessageEventType = "appended"
	MessageUpdated  MessageEventType = "updated"
)

// MessageEvent notifies a sink that the conversation changed.
type MessageEvent struct {
	AppID   AppID
	Type    MessageEventType
	Message ChatMessage
}

// StateEventType classifies session state events.
type StateEventType string

// State event types.
const (
	StateGenerating     StateEventType = "generating"
	StateIdle           StateEventType = "idle"
	StatePreviewUpdated StateEventType = "preview"
)

// StateEvent notifies a sink that session state changed.
type StateEvent struct {
	AppID      AppID
	Type       StateEventType
	PreviewURL string
}
