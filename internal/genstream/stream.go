// Package genstream opens and decodes the code-generation event stream.
//
// The feed is UTF-8 text, one event per newline-terminated line. Only two
// line shapes carry meaning: "event:done" terminates the stream, and
// "data:<json>" carries a content chunk in the json object's "d" field.
// Everything else, blank lines and malformed payloads included, is skipped
// so a corrupt chunk never aborts a generation.
package genstream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codemother/schema"
	"pkt.systems/pslog"
)

// TokenSource supplies the bearer credential attached to stream requests.
type TokenSource interface {
	Token() (string, error)
}

// Request identifies one generation stream.
type Request struct {
	AppID       schema.AppID
	UserMessage string
}

// Callbacks receive decoded stream output. OnComplete and OnError are
// mutually exclusive and fire at most once; cancellation fires neither.
type Callbacks struct {
	OnMessage  func(chunk string)
	OnComplete func()
	OnError    func(err error)
}

// Client opens generation streams against one backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     pslog.Logger
}

// NewClient constructs a stream client. httpClient may be nil.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, logger pslog.Logger) *Client {
	if httpClient == nil {
		// The stream stays open for the whole generation; no client timeout.
		httpClient = &http.Client{Timeout: 0}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		log:     logger,
	}
}

// Open starts the stream and returns a cancel function. Connect failures
// and mid-stream transport errors are delivered through cb.OnError; the
// cancel function aborts the request without surfacing an error.
func (c *Client) Open(ctx context.Context, req Request, cb Callbacks) func() {
	ctx, cancel := context.WithCancel(ctx)
	go c.run(ctx, cancel, req, cb)
	return cancel
}

func (c *Client) run(ctx context.Context, cancel context.CancelFunc, req Request, cb Callbacks) {
	defer cancel()
	log := c.logger(ctx).With("app", req.AppID, "message_len", len(req.UserMessage))

	endpoint := fmt.Sprintf("%s/app/chat/gen/code?appId=%s&userMessage=%s",
		c.baseURL, url.QueryEscape(string(req.AppID)), url.QueryEscape(req.UserMessage))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.fail(ctx, log, cb, err)
		return
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			c.fail(ctx, log, cb, err)
			return
		}
		httpReq.Header.Set("access-token", token)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.fail(ctx, log, cb, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.fail(ctx, log, cb, fmt.Errorf("stream connect: unexpected status %d", resp.StatusCode))
		return
	}
	if resp.Body == nil {
		c.fail(ctx, log, cb, errors.New("stream connect: missing response body"))
		return
	}
	log.Debug("stream open", "status", resp.StatusCode)

	chunks := 0
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// A trailing partial line without a newline is discarded;
			// graceful end of body counts as completion.
			if errors.Is(err, io.EOF) {
				log.Debug("stream end", "chunks", chunks, "duration_ms", time.Since(started).Milliseconds())
				if cb.OnComplete != nil {
					cb.OnComplete()
				}
				return
			}
			c.fail(ctx, log, cb, err)
			return
		}
		event, payload := parseLine(line)
		switch event {
		case lineDone:
			log.Debug("stream done", "chunks", chunks, "duration_ms", time.Since(started).Milliseconds())
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
			return
		case lineData:
			chunk, ok := decodeChunk(payload)
			if !ok {
				log.Trace("stream decode skipped", "payload_len", len(payload))
				continue
			}
			chunks++
			if cb.OnMessage != nil {
				cb.OnMessage(chunk)
			}
		case lineOther:
		}
	}
}

func (c *Client) fail(ctx context.Context, log pslog.Logger, cb Callbacks, err error) {
	// Abort-triggered errors are the expected result of cancellation.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		log.Debug("stream canceled")
		return
	}
	log.Warn("stream failed", "err", err)
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (c *Client) logger(ctx context.Context) pslog.Logger {
	if c.log != nil {
		return c.log
	}
	return pslog.Ctx(ctx)
}

type lineKind int

const (
	lineOther lineKind = iota
	lineDone
	lineData
)

// parseLine classifies one framed line. The payload is only meaningful for
// lineData and has the "data:" prefix stripped but is otherwise untrimmed.
func parseLine(line []byte) (lineKind, string) {
	text := strings.TrimRight(string(line), "\r\n")
	if strings.HasPrefix(text, "event:done") {
		return lineDone, ""
	}
	if strings.HasPrefix(text, "data:") {
		return lineData, text[len("data:"):]
	}
	return lineOther, ""
}

// decodeChunk extracts the "d" field from a data payload. Malformed JSON
// and payloads without a non-empty "d" are skipped, not surfaced.
func decodeChunk(payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", false
	}
	var body struct {
		D string `json:"d"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return "", false
	}
	if body.D == "" {
		return "", false
	}
	return body.D, true
}
