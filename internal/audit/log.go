package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitetrack.io/internal/auth"
	"sitetrack.io/internal/ids"
	"sitetrack.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log line enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		zf = append(zf, zap.String("user_id", id.UserID))
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	zf = append(zf, zap.Any("fields", copyFields))
	obs.Logger().Info("audit", zf...)
	return nil
}

const writeTimeout = 5 * time.Second

// Recorder appends audit entries on behalf of mutating operations. Record
// never fails its caller: write errors are logged and counted.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends e. ID and CreatedAt are filled in when empty. The write
// outlives cancellation of ctx so an aborted client does not lose the entry.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if e.ID == "" {
		e.ID = ids.At(e.CreatedAt)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.store.AppendAudit(writeCtx, e); err != nil {
		obs.AuditWriteFailed()
		obs.Logger().Error("audit write failed",
			zap.Error(err),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.String("entity", string(e.Entity)),
			zap.String("entity_id", e.EntityID),
			zap.String("action", string(e.Action)),
		)
		return
	}

	fields := map[string]any{
		"entity":    string(e.Entity),
		"entity_id": e.EntityID,
		"actor_id":  e.ActorID,
	}
	if e.ProjectID != "" {
		fields["project_id"] = e.ProjectID
	}
	_ = LogEvent(ctx, strings.ToLower(string(e.Entity)+"."+string(e.Action)), fields)
}
