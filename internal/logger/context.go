package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context.
//
// Fields are bound to the IPC/HTTP domain of this fabric rather than to a
// filesystem protocol: Operation names the IPC method or HTTP verb in
// flight, ConnectionName identifies the transport connection, ObjectID and
// ProviderID identify the managed object and provider handling the call,
// and FileID identifies the file-transfer resource when applicable.
type LogContext struct {
	TraceID        string    // OpenTelemetry trace ID
	SpanID         string    // OpenTelemetry span ID
	Operation      string    // IPC method or HTTP verb: GetParameterValues, PUT, PATCH, etc.
	ConnectionName string    // Stream adapter connection name
	ClientIP       string    // Client IP address (without port)
	ObjectID       uint32    // Managed object id handling the call
	ProviderID     uint32    // Provider id the call is routed to
	FileID         string    // File-transfer resource id, when applicable
	StartTime      time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:        lc.TraceID,
		SpanID:         lc.SpanID,
		Operation:      lc.Operation,
		ConnectionName: lc.ConnectionName,
		ClientIP:       lc.ClientIP,
		ObjectID:       lc.ObjectID,
		ProviderID:     lc.ProviderID,
		FileID:         lc.FileID,
		StartTime:      lc.StartTime,
	}
}

// WithOperation returns a copy with the operation set
func (lc *LogContext) WithOperation(operation string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = operation
	}
	return clone
}

// WithConnectionName returns a copy with the connection name set
func (lc *LogContext) WithConnectionName(name string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ConnectionName = name
	}
	return clone
}

// WithIDs returns a copy with the object and provider ids set
func (lc *LogContext) WithIDs(objectID, providerID uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ObjectID = objectID
		clone.ProviderID = providerID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
