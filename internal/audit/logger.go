// Package audit records security-relevant state changes as one JSON object
// per line, separate from the operational log.
package audit

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Actions recorded by the engine.
const (
	ActionClientRevoked = "client.revoked"
	ActionClientDeleted = "client.deleted"
	ActionTokenRevoked  = "token.revoked"
	ActionGrantRevoked  = "grant.revoked"
	ActionGrantRejected = "grant.rejected"
)

// Event represents an audit log event.
type Event struct {
	Action   string
	ClientID string
	Target   string // Shortened token or code, or the client ID itself
	Details  string
	Success  bool
	Err      error
}

// Recorder writes audit events. The zero value and a nil *Recorder discard
// everything.
type Recorder struct {
	logger *zerolog.Logger
	now    func() time.Time
}

// New returns a Recorder writing to w.
func New(w io.Writer) *Recorder {
	l := zerolog.New(w).With().Str("log", "audit").Logger()
	return &Recorder{logger: &l, now: time.Now}
}

// Record writes e, tagging it with the current trace ID when there is one.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil || r.logger == nil {
		return
	}

	entry := r.logger.Log().
		Time("timestamp", r.now().UTC()).
		Str("action", e.Action).
		Bool("success", e.Success)
	if e.ClientID != "" {
		entry = entry.Str("client_id", e.ClientID)
	}
	if e.Target != "" {
		entry = entry.Str("target", e.Target)
	}
	if e.Details != "" {
		entry = entry.Str("details", e.Details)
	}
	if e.Err != nil {
		entry = entry.Str("error", e.Err.Error())
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		entry = entry.Str("trace_id", sc.TraceID().String())
	}
	entry.Send()
}
