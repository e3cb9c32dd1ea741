package core

import (
	"context"
	"time"

	"codemother/internal/genstream"
	"codemother/internal/restapi"
	"codemother/schema"
	"pkt.systems/pslog"
)

// API is the backend surface the session depends on.
type API interface {
	GetApp(ctx context.Context, id schema.AppID) (schema.App, error)
	ListChatHistory(ctx context.Context, req restapi.HistoryRequest) (schema.HistoryPage, error)
	BuildStatus(ctx context.Context, id schema.AppID) (schema.BuildStatus, error)
}

// Stream opens a cancellable code-generation stream.
type Stream interface {
	Open(ctx context.Context, req genstream.Request, cb genstream.Callbacks) func()
}

// Archive records completed generation turns.
type Archive interface {
	Append(appID schema.AppID, userMessage, assistantReply string) error
}

// EventSink receives message and state events from the session.
type EventSink interface {
	OnMessageEvent(event schema.MessageEvent)
	OnStateEvent(event schema.StateEvent)
}

// SessionDeps captures dependencies for the generation session. Archive,
// Sink, Logger and Now are optional.
type SessionDeps struct {
	API     API
	Stream  Stream
	Archive Archive
	Sink    EventSink
	Logger  pslog.Logger
	Now     func() time.Time
}
