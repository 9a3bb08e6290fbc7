package otel

import "context"

// NoOpRecorder drops every measurement. It is used when no collector is
// configured.
type NoOpRecorder struct{}

// NewNoOpRecorder creates a recorder for graceful degradation.
func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{}
}

func (NoOpRecorder) RecordWrite(context.Context, string, bool) {}
func (NoOpRecorder) RecordLoad(context.Context, bool, int) {}
func (NoOpRecorder) RecordSessionMinutes(context.Context, int) {}
func (NoOpRecorder) Close(context.Context) error { return nil }
