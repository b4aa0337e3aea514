package otel

import (
	"context"

	"github.com/rs/zerolog"
)

// LogTraceFields returns a zerolog hook that adds trace_id and span_id when
// ctx carries a valid span. Use with .Func():
//
//	log.Info().Func(otel.LogTraceFields(ctx)).Msg("...")
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		traceID, spanID := TraceContextFrom(ctx)
		if traceID != "" {
			e.Str("trace_id", traceID)
		}
		if spanID != "" {
			e.Str("span_id", spanID)
		}
	}
}
