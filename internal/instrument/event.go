package instrument

import "context"

// Event is one audited roster mutation.
type Event struct {
	RequestID string
	Action    string
	Domain    string
	Namespace string
	Table     string
	RecordID  string
	UserID    string
	Status    string
	Metadata  map[string]any
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder receives audit events. Implementations must not block the caller
// on storage.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// WithRequestID stores the request id used to correlate log lines and events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUserID stores the authenticated caller.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// fillFromContext copies request-scoped ids into e when they are not set.
func fillFromContext(ctx context.Context, e Event) Event {
	if e.RequestID == "" {
		e.RequestID = RequestID(ctx)
	}
	if e.UserID == "" {
		e.UserID = UserID(ctx)
	}
	if e.Status == "" {
		e.Status = StatusOK
	}
	return e
}
