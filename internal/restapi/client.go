// Package restapi wraps the backend's JSON envelope endpoints consumed by
// the generation session.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codemother/schema"
	"pkt.systems/pslog"
)

// TokenSource supplies the bearer credential attached to API requests.
type TokenSource interface {
	Token() (string, error)
}

// APIError is a non-zero envelope code returned by the backend.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return "api error"
	}
	if e.Message == "" {
		return fmt.Sprintf("api error %d", e.Code)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// envelope is the uniform response wrapper: code 0 signals success.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HistoryRequest selects one page of chat history.
type HistoryRequest struct {
	AppID    schema.AppID
	PageSize int
	Cursor   *schema.Cursor
}

// Client calls the backend REST surface.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     pslog.Logger
}

// NewClient constructs a REST client. httpClient may be nil.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, logger pslog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		log:     logger,
	}
}

// GetApp fetches application metadata.
func (c *Client) GetApp(ctx context.Context, id schema.AppID) (schema.App, error) {
	if err := schema.ValidateAppID(id); err != nil {
		return schema.App{}, err
	}
	endpoint := fmt.Sprintf("%s/app/get/vo?id=%s", c.baseURL, url.QueryEscape(string(id)))
	data, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return schema.App{}, err
	}
	if len(data) == 0 || string(data) == "null" {
		return schema.App{}, schema.ErrAppNotFound
	}
	var app schema.App
	if err := json.Unmarshal(data, &app); err != nil {
		return schema.App{}, fmt.Errorf("decode app: %w", err)
	}
	return app, nil
}

// ListChatHistory fetches one page of history, ordered newest first.
func (c *Client) ListChatHistory(ctx context.Context, req HistoryRequest) (schema.HistoryPage, error) {
	if err := schema.ValidateAppID(req.AppID); err != nil {
		return schema.HistoryPage{}, err
	}
	body := map[string]any{
		"appId":    req.AppID,
		"pageSize": req.PageSize,
	}
	if req.Cursor != nil {
		body["lastTime"] = req.Cursor.LastTime
		body["lastId"] = req.Cursor.LastID
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return schema.HistoryPage{}, err
	}
	data, err := c.call(ctx, http.MethodPost, c.baseURL+"/chatHistory/list/page", payload)
	if err != nil {
		return schema.HistoryPage{}, err
	}
	var page schema.HistoryPage
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &page); err != nil {
			return schema.HistoryPage{}, fmt.Errorf("decode history page: %w", err)
		}
	}
	return page, nil
}

// BuildStatus fetches the asynchronous build state for an app. An empty
// status means no build has been recorded.
func (c *Client) BuildStatus(ctx context.Context, id schema.AppID) (schema.BuildStatus, error) {
	if err := schema.ValidateAppID(id); err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/app/build/status?appId=%s", c.baseURL, url.QueryEscape(string(id)))
	data, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}
	var status string
	if err := json.Unmarshal(data, &status); err != nil {
		return "", fmt.Errorf("decode build status: %w", err)
	}
	return schema.BuildStatus(status), nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, err
		}
		req.Header.Set("access-token", token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.warn(ctx, "api status unexpected", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
		return nil, fmt.Errorf("api call: unexpected status %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != 0 {
		c.warn(ctx, "api call failed", "method", method, "endpoint", endpoint, "code", env.Code, "message", env.Message)
		return nil, &APIError{Code: env.Code, Message: env.Message}
	}
	return env.Data, nil
}

func (c *Client) warn(ctx context.Context, msg string, kv ...any) {
	log := c.log
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log.Warn(msg, kv...)
}
