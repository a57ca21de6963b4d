package instrument

import "context"

// NoopRecorder discards all events. Used when instrumentation is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Event) {}
