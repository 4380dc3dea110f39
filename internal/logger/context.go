package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context carried alongside a
// connection as it moves through AS_REQ/TGS_REQ/APP_REQ handling.
type LogContext struct {
	TraceID     string
	SpanID      string
	MessageType string // AS_REQ, TGS_REQ, APP_REQ, ...
	IDc         string // client principal, once known
	RemoteAddr  string
	StartTime   time.Time
}

// WithContext returns a new context with the given LogContext attached.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(remoteAddr string) *LogContext {
	return &LogContext{
		RemoteAddr: remoteAddr,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithMessageType returns a copy with the message type set.
func (lc *LogContext) WithMessageType(msgType string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.MessageType = msgType
	}
	return clone
}

// WithIDc returns a copy with the client principal set.
func (lc *LogContext) WithIDc(idc string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.IDc = idc
	}
	return clone
}

// WithTrace returns a copy with trace info set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
