package schema

import "errors"

var (
	// ErrAppNotLoaded indicates no application is loaded in the session.
	ErrAppNotLoaded = errors.New("no app loaded")
	// ErrAppNotFound indicates the backend knows no such application.
	ErrAppNotFound = errors.New("app not found")
	// ErrInvalidApp indicates an invalid application identifier.
	ErrInvalidApp = errors.New("invalid app id")
	// ErrEmptyMessage indicates the user message was empty.
	ErrEmptyMessage = errors.New("empty message")
	// ErrMessageTooLong indicates the user message exceeds the configured cap.
	ErrMessageTooLong = errors.New("message too long")
	// ErrGenerating indicates a generation is already in flight.
	ErrGenerating = errors.New("generation in progress")
	// ErrHistoryLoading indicates a history load is already in flight.
	ErrHistoryLoading = errors.New("history load in progress")
	// ErrEditorInactive indicates edit mode is not entered.
	ErrEditorInactive = errors.New("edit mode not active")
	// ErrDocumentUnavailable indicates the embedded document cannot be
	// reached (cross-origin or not yet loaded).
	ErrDocumentUnavailable = errors.New("document unavailable")
	// ErrNoToken indicates no authentication token is stored.
	ErrNoToken = errors.New("no auth token")
)
