// Package core implements the generation session state machine: app
// loading, streamed code generation, history paging, the build-status
// poll and preview refresh.
package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"codemother/internal/genstream"
	"codemother/internal/logx"
	"codemother/internal/restapi"
	"codemother/schema"
	"pkt.systems/pslog"
)

// Session drives one app's generation conversation. All exported methods
// are safe for concurrent use.
type Session struct {
	cfg     schema.SessionConfig
	api     API
	stream  Stream
	archive Archive
	sink    EventSink
	logger  pslog.Logger
	now     func() time.Time

	mu             sync.Mutex
	epoch          uint64
	app            *schema.App
	messages       []schema.ChatMessage
	previewURL     string
	generating     bool
	genResult      chan error
	pendingID      schema.MessageID
	streamCancel   func()
	pollCancel     context.CancelFunc
	historyLoaded  bool
	historyLoading bool
	historyHasMore bool
	historyCursor  *schema.Cursor
}

// NewSession constructs a session from a normalized config and deps.
func NewSession(cfg schema.SessionConfig, deps SessionDeps) (*Session, error) {
	normalized, err := schema.NormalizeSessionConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.API == nil {
		return nil, errors.New("session requires an api client")
	}
	if deps.Stream == nil {
		return nil, errors.New("session requires a stream client")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		cfg:     cfg,
		api:     deps.API,
		stream:  deps.Stream,
		archive: deps.Archive,
		sink:    deps.Sink,
		logger:  logger,
		now:     now,
	}, nil
}

// LoadApp fetches app metadata and makes it the session's current app.
// Switching to a different app tears the prior one down first; reloading
// the currently loaded app refreshes its metadata and leaves the
// conversation, preview and any in-flight generation alone.
func (s *Session) LoadApp(ctx context.Context, id schema.AppID) (schema.App, error) {
	if ctx == nil {
		return schema.App{}, errors.New("missing context")
	}
	if err := schema.ValidateAppID(id); err != nil {
		return schema.App{}, err
	}
	log := logx.WithApp(ctx, id)
	log.Info("session app load start")
	app, err := s.api.GetApp(ctx, id)
	if err != nil {
		log.Warn("session app load failed", "err", err)
		return schema.App{}, err
	}

	s.mu.Lock()
	sameApp := s.app != nil && s.app.ID == app.ID
	cancel := func() {}
	var preview *schema.StateEvent
	if !sameApp {
		cancel = s.teardownLocked()
	}
	s.app = &app
	if !sameApp {
		s.historyHasMore = true
		s.previewURL = s.previewURLLocked()
		preview = &schema.StateEvent{AppID: app.ID, Type: schema.StatePreviewUpdated, PreviewURL: s.previewURL}
	}
	skipHistory := sameApp && (s.historyLoaded || s.generating)
	s.mu.Unlock()
	cancel()
	if preview != nil {
		s.emitState(*preview)
	}
	if !skipHistory {
		// Initial history load; failures are logged by LoadChatHistory and
		// do not fail the app load.
		_ = s.LoadChatHistory(ctx, false)
	}
	log.Info("session app loaded", "app_name", app.Name, "code_gen_type", app.CodeGenType)
	return app, nil
}

// SendMessage starts a streamed generation for the loaded app. The
// returned channel delivers the terminal outcome and then closes: the
// stream error on failure, nil on completion or cancellation. A second
// send while one is in flight is rejected.
func (s *Session) SendMessage(ctx context.Context, text string) (<-chan error, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, schema.ErrEmptyMessage
	}
	if len([]rune(text)) > s.cfg.MessageMax {
		return nil, schema.ErrMessageTooLong
	}

	s.mu.Lock()
	if s.app == nil {
		s.mu.Unlock()
		return nil, schema.ErrAppNotLoaded
	}
	if s.generating {
		s.mu.Unlock()
		return nil, schema.ErrGenerating
	}
	app := *s.app
	log := logx.WithApp(ctx, app.ID)

	userMsg := schema.ChatMessage{
		ID:        schema.MessageID(newID()),
		Role:      schema.RoleUser,
		Content:   text,
		Timestamp: s.now(),
	}
	pending := schema.ChatMessage{
		ID:        schema.MessageID(newID()),
		Role:      schema.RoleAssistant,
		Timestamp: s.now(),
	}
	s.messages = append(s.messages, userMsg, pending)
	s.pendingID = pending.ID
	s.generating = true
	s.genResult = make(chan error, 1)
	done := s.genResult
	epoch := s.epoch

	streamCtx := logx.ContextWithAppLogger(logx.CopyContextFields(context.Background(), ctx), log, app.ID)
	s.streamCancel = s.stream.Open(streamCtx, genstream.Request{
		AppID:       app.ID,
		UserMessage: text,
	}, genstream.Callbacks{
		OnMessage:  func(chunk string) { s.onChunk(epoch, app.ID, chunk) },
		OnComplete: func() { s.onStreamComplete(epoch, app, userMsg.Content, log) },
		OnError:    func(err error) { s.onStreamError(epoch, app.ID, err, log) },
	})
	s.mu.Unlock()

	log.Info("session generation start")
	s.emitMessage(schema.MessageEvent{AppID: app.ID, Type: schema.MessageAppended, Message: userMsg})
	s.emitMessage(schema.MessageEvent{AppID: app.ID, Type: schema.MessageAppended, Message: pending})
	s.emitState(schema.StateEvent{AppID: app.ID, Type: schema.StateGenerating})
	return done, nil
}

// CancelGeneration aborts the in-flight generation, if any. Partial
// assistant output is kept; cancellation is not an error. The build poll
// is stopped as well.
func (s *Session) CancelGeneration() {
	s.mu.Lock()
	cancel := s.streamCancel
	s.streamCancel = nil
	var idle *schema.StateEvent
	if s.generating {
		s.generating = false
		s.epoch++
		close(s.genResult)
		if s.app != nil {
			idle = &schema.StateEvent{AppID: s.app.ID, Type: schema.StateIdle}
		}
		s.logger.Info("session generation cancelled")
	}
	s.stopPollLocked()
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if idle != nil {
		s.emitState(*idle)
	}
}

// Reset tears the whole session down: stream and poll cancelled, app and
// conversation cleared.
func (s *Session) Reset() {
	s.mu.Lock()
	cancel := s.teardownLocked()
	s.mu.Unlock()
	cancel()
	s.logger.Debug("session reset")
}

// LoadChatHistory fetches one page of history. The first call replaces
// the conversation; loadMore prepends the older page ahead of what is
// already loaded. Concurrent loads are rejected.
func (s *Session) LoadChatHistory(ctx context.Context, loadMore bool) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	s.mu.Lock()
	if s.app == nil {
		s.mu.Unlock()
		return schema.ErrAppNotLoaded
	}
	if s.historyLoading {
		s.mu.Unlock()
		return schema.ErrHistoryLoading
	}
	if loadMore && s.historyLoaded && !s.historyHasMore {
		s.mu.Unlock()
		return nil
	}
	appID := s.app.ID
	epoch := s.epoch
	req := restapi.HistoryRequest{AppID: appID, PageSize: s.cfg.HistoryPageSize}
	if loadMore {
		req.Cursor = s.historyCursor
	}
	s.historyLoading = true
	s.mu.Unlock()

	log := logx.WithApp(ctx, appID)
	page, err := s.api.ListChatHistory(ctx, req)

	s.mu.Lock()
	s.historyLoading = false
	if err != nil {
		s.mu.Unlock()
		log.Warn("session history load failed", "err", err)
		return err
	}
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	older := historyToMessages(page.Records)
	if loadMore {
		s.prependMessagesLocked(older)
	} else {
		s.messages = older
	}
	s.historyLoaded = true
	s.historyHasMore = page.HasMore
	s.historyCursor = page.NextCursor
	if s.historyCursor == nil && len(page.Records) > 0 {
		oldest := page.Records[len(page.Records)-1]
		s.historyCursor = &schema.Cursor{LastTime: oldest.CreateTime, LastID: oldest.ID}
	}
	s.mu.Unlock()
	log.Debug("session history loaded", "records", len(page.Records), "has_more", page.HasMore, "load_more", loadMore)
	return nil
}

// App returns the loaded app, if any.
func (s *Session) App() (schema.App, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app == nil {
		return schema.App{}, false
	}
	return *s.app, true
}

// Messages returns a copy of the conversation in chronological order.
func (s *Session) Messages() []schema.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.ChatMessage(nil), s.messages...)
}

// Generating reports whether a generation is in flight.
func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// PreviewURL returns the current preview URL, or empty when none.
func (s *Session) PreviewURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewURL
}

// HistoryHasMore reports whether older history pages remain.
func (s *Session) HistoryHasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyHasMore
}

func (s *Session) onChunk(epoch uint64, appID schema.AppID, chunk string) {
	s.mu.Lock()
	if s.epoch != epoch || !s.generating {
		s.mu.Unlock()
		return
	}
	idx := s.findMessageLocked(s.pendingID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.messages[idx].Content += chunk
	updated := s.messages[idx]
	s.mu.Unlock()
	s.emitMessage(schema.MessageEvent{AppID: appID, Type: schema.MessageUpdated, Message: updated})
}

func (s *Session) onStreamComplete(epoch uint64, app schema.App, userMessage string, log pslog.Logger) {
	s.mu.Lock()
	if s.epoch != epoch || !s.generating {
		s.mu.Unlock()
		return
	}
	s.generating = false
	s.streamCancel = nil
	close(s.genResult)
	var reply string
	if idx := s.findMessageLocked(s.pendingID); idx >= 0 {
		reply = s.messages[idx].Content
	}
	var preview *schema.StateEvent
	if app.CodeGenType.RequiresBuild() {
		// The deployed bundle is stale until the new build lands.
		s.previewURL = ""
		s.startPollLocked(app.ID)
	} else {
		s.previewURL = s.refreshedPreviewURLLocked()
		preview = &schema.StateEvent{AppID: app.ID, Type: schema.StatePreviewUpdated, PreviewURL: s.previewURL}
	}
	s.mu.Unlock()

	log.Info("session generation done", "reply_len", len(reply))
	s.emitState(schema.StateEvent{AppID: app.ID, Type: schema.StateIdle})
	if preview != nil {
		s.emitState(*preview)
	}
	if s.archive != nil {
		if err := s.archive.Append(app.ID, userMessage, reply); err != nil {
			log.Warn("session transcript append failed", "err", err)
		}
	}
}

func (s *Session) onStreamError(epoch uint64, appID schema.AppID, err error, log pslog.Logger) {
	s.mu.Lock()
	if s.epoch != epoch || !s.generating {
		s.mu.Unlock()
		return
	}
	s.generating = false
	s.streamCancel = nil
	s.genResult <- err
	close(s.genResult)
	var updated *schema.ChatMessage
	if idx := s.findMessageLocked(s.pendingID); idx >= 0 && s.messages[idx].Content == "" {
		s.messages[idx].Content = "generation failed, please retry"
		msg := s.messages[idx]
		updated = &msg
	}
	s.mu.Unlock()

	log.Warn("session generation failed", "err", err)
	if updated != nil {
		s.emitMessage(schema.MessageEvent{AppID: appID, Type: schema.MessageUpdated, Message: *updated})
	}
	s.emitState(schema.StateEvent{AppID: appID, Type: schema.StateIdle})
}

// teardownLocked clears all per-app state and invalidates in-flight
// callbacks. It returns a cancel func to run after the lock is released.
func (s *Session) teardownLocked() func() {
	streamCancel := s.streamCancel
	s.streamCancel = nil
	s.stopPollLocked()
	if s.generating {
		s.generating = false
		close(s.genResult)
	}
	s.epoch++
	s.app = nil
	s.messages = nil
	s.previewURL = ""
	s.pendingID = ""
	s.historyLoaded = false
	s.historyHasMore = false
	s.historyCursor = nil
	if streamCancel == nil {
		return func() {}
	}
	return streamCancel
}

func (s *Session) emitMessage(event schema.MessageEvent) {
	if s.sink != nil {
		s.sink.OnMessageEvent(event)
	}
}

func (s *Session) emitState(event schema.StateEvent) {
	if s.sink != nil {
		s.sink.OnStateEvent(event)
	}
}
