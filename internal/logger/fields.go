package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across the AS, TGS, V and
// client. Use these keys consistently so ticket issuance and rejection can
// be grepped/aggregated the same way across all four binaries.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Message exchange
	// ========================================================================
	KeyMessageType = "msg_type"  // AS_REQ, AS_REP, TGS_REQ, TGS_REP, APP_REQ, APP_REP, ERR
	KeyNonce       = "nonce"     // client nonce echoed in AS_REP
	KeyTimestamp   = "ts"        // minutes-since-epoch timestamp carried by a message
	KeyLifetime    = "lifetime"  // requested/granted ticket lifetime in minutes
	KeyErrorCode   = "error_code"

	// ========================================================================
	// Principal identity
	// ========================================================================
	KeyIDc   = "idc"    // client principal name
	KeyIDv   = "idv"    // application server principal name
	KeyIDtgs = "idtgs"  // ticket-granting service principal name
	KeyRealm = "realm"

	// ========================================================================
	// Network
	// ========================================================================
	KeyRemoteAddr = "remote_addr"
	KeyLocalAddr  = "local_addr"

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeySource     = "source" // which store served a principal lookup: mem, sql
)

// TraceID returns a slog.Attr for OpenTelemetry-style trace correlation.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for span correlation.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// MessageType returns a slog.Attr naming the protocol message being handled.
func MessageType(t string) slog.Attr {
	return slog.String(KeyMessageType, t)
}

// Nonce returns a slog.Attr for a client nonce.
func Nonce(n uint64) slog.Attr {
	return slog.Uint64(KeyNonce, n)
}

// Timestamp returns a slog.Attr for a minutes-since-epoch timestamp.
func Timestamp(ts int64) slog.Attr {
	return slog.Int64(KeyTimestamp, ts)
}

// Lifetime returns a slog.Attr for a ticket lifetime in minutes.
func Lifetime(minutes int) slog.Attr {
	return slog.Int(KeyLifetime, minutes)
}

// IDc returns a slog.Attr for the client principal name.
func IDc(id string) slog.Attr {
	return slog.String(KeyIDc, id)
}

// IDv returns a slog.Attr for the application server principal name.
func IDv(id string) slog.Attr {
	return slog.String(KeyIDv, id)
}

// IDtgs returns a slog.Attr for the ticket-granting service principal name.
func IDtgs(id string) slog.Attr {
	return slog.String(KeyIDtgs, id)
}

// Realm returns a slog.Attr for a principal's realm.
func Realm(r string) slog.Attr {
	return slog.String(KeyRealm, r)
}

// RemoteAddr returns a slog.Attr for the peer network address.
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// LocalAddr returns a slog.Attr for the local listener address.
func LocalAddr(addr string) slog.Attr {
	return slog.String(KeyLocalAddr, addr)
}

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a zero Attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a protocol error code.
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Source returns a slog.Attr naming which backing store served a lookup.
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Fmt is a convenience for building an ad hoc string attribute, used sparingly
// where the call site does not warrant a dedicated constructor above.
func Fmt(key, format string, args ...any) slog.Attr {
	return slog.String(key, fmt.Sprintf(format, args...))
}
