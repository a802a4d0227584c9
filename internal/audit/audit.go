// Package audit is the write-only audit boundary. Sinks are best-effort
// collaborators: a delivery failure is logged and never propagated to the
// caller, so audit can never gate a response.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"pharmalens.org/internal/obs"
)

// Record is one disclosure event.
type Record struct {
	ID                string    `json:"id"`
	ResponseID        string    `json:"response_id"`
	UserID            string    `json:"user_id"`
	Role              string    `json:"role"`
	Query             string    `json:"query"`
	Timestamp         time.Time `json:"timestamp"`
	DisclosureVerdict string    `json:"disclosure_verdict"`
}

// Sink receives audit records.
type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// Emitter wraps a sink with id stamping and fail-open delivery.
type Emitter struct {
	sink Sink
}

// NewEmitter builds an emitter over the given sink. A nil sink falls back
// to the JSON log sink.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = LogSink{}
	}
	return &Emitter{sink: sink}
}

// Emit stamps and delivers the record. Failures are logged, never returned.
func (e *Emitter) Emit(ctx context.Context, rec Record) {
	if e == nil {
		return
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := e.sink.Emit(ctx, rec); err != nil {
		obs.Log("audit.delivery_failed", map[string]any{
			"response_id": rec.ResponseID,
			"error":       err.Error(),
		})
	}
}

// LogSink writes audit records as structured JSON log lines.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, rec Record) error {
	obs.Log("audit.query_response", map[string]any{
		"audit_id":           rec.ID,
		"response_id":        rec.ResponseID,
		"user_id":            rec.UserID,
		"role":               rec.Role,
		"query":              rec.Query,
		"timestamp":          rec.Timestamp.Format(time.RFC3339Nano),
		"disclosure_verdict": rec.DisclosureVerdict,
	})
	return nil
}
