// Package logx provides pslog annotation helpers shared by the session
// and its collaborators.
package logx

import (
	"context"

	"codemother/schema"
	"pkt.systems/pslog"
)

type contextKey int

const appKey contextKey = iota

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithApp annotates the logger with the app id if present.
func WithApp(ctx context.Context, appID schema.AppID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if appID != "" {
		if current, ok := ctx.Value(appKey).(schema.AppID); ok && current == appID {
			return log
		}
		log = log.With("app", appID)
	}
	return log
}

// ContextWithApp stores the app marker on the context for log de-duplication.
func ContextWithApp(ctx context.Context, appID schema.AppID) context.Context {
	if ctx == nil || appID == "" {
		return ctx
	}
	return context.WithValue(ctx, appKey, appID)
}

// ContextWithAppLogger attaches the logger and app marker to the context.
func ContextWithAppLogger(ctx context.Context, log pslog.Logger, appID schema.AppID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithApp(ctx, appID)
}

// CopyContextFields copies the app marker from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if app, ok := src.Value(appKey).(schema.AppID); ok && app != "" {
		dst = ContextWithApp(dst, app)
	}
	return dst
}
