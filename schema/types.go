package schema

import "time"

// AppID identifies a generated application.
type AppID string

// MessageID identifies a chat message.
type MessageID string

// Role identifies the author side of a chat message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CodeGenType identifies the kind of project the backend generates.
type CodeGenType string

// Known code generation kinds.
const (
	CodeGenHTML  CodeGenType = "html"
	CodeGenReact CodeGenType = "react"
	CodeGenVue   CodeGenType = "vue"
)

// RequiresBuild reports whether the kind needs an asynchronous build step
// before the preview is servable.
func (t CodeGenType) RequiresBuild() bool {
	return t == CodeGenVue
}

// BuildStatus is the backend's report on an asynchronous build.
type BuildStatus string

// Build statuses returned by the build-status endpoint. An empty status
// means the backend has not started a build for the app.
const (
	BuildStatusBuilding BuildStatus = "building"
	BuildStatusDone     BuildStatus = "done"
	BuildStatusFailed   BuildStatus = "failed"
)

// App is the application metadata the session operates on.
type App struct {
	ID          AppID       `json:"id"`
	Name        string      `json:"appName"`
	CodeGenType CodeGenType `json:"codeGenType"`
	DeployKey   string      `json:"deployKey"`
}

// ChatMessage is one entry in a generation session's conversation.
// Assistant content is append-only while a generation is in flight.
type ChatMessage struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Cursor is the opaque continuation token for reverse-chronological
// history pagination. It is only meaningful paired with the query it was
// returned from (same app, same page size).
type Cursor struct {
	LastTime time.Time `json:"lastTime"`
	LastID   string    `json:"lastId"`
}

// IsZero reports whether the cursor carries no position.
func (c Cursor) IsZero() bool {
	return c.LastTime.IsZero() && c.LastID == ""
}

// HistoryRecord is one persisted chat history row as returned by the
// backend, ordered newest first.
type HistoryRecord struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	CreateTime  time.Time `json:"createTime"`
}

// HistoryPage is one page of chat history.
type HistoryPage struct {
	Records    []HistoryRecord `json:"records"`
	HasMore    bool            `json:"hasMore"`
	NextCursor *Cursor         `json:"nextCursor,omitempty"`
}

// SelectedElement is a snapshot of one element picked in visual edit mode.
// Identity is the SelectorPath string.
type SelectedElement struct {
	TagName      string `json:"tagName"`
	ClassName    string `json:"className"`
	ID           string `json:"id"`
	TextPreview  string `json:"textPreview"`
	SelectorPath string `json:"cssSelector"`
	OuterHTML    string `json:"outerHTML"`
}
