package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one operation. Spans nest: a span started from a context holding
// another span records it as its parent. Spans inside an HTTP request share
// the request id.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	now    func() time.Time
	err    error
}

// StartSpan derives a child span from ctx and returns a context whose logger
// carries the span attributes.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	spanID := uuid.NewString()
	attrs := []any{slog.String("span", name), slog.String("span_id", spanID)}
	if parent := SpanIDFromContext(ctx); parent != "" {
		attrs = append(attrs, slog.String("parent_span_id", parent))
	}
	logger := FromContext(ctx).With(attrs...)

	ctx = WithLogger(ctx, logger)
	ctx = context.WithValue(ctx, spanIDKey, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now(), now: time.Now}
}

// Fail marks the span as failed; End then logs err at warn level.
func (s *Span) Fail(err error) {
	if s != nil && err != nil {
		s.err = err
	}
}

// End logs the span duration. Successful spans log at debug.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", s.now().Sub(s.start))
	if s.err != nil {
		s.logger.Warn("span failed", elapsed, slog.Any("error", s.err))
		return
	}
	s.logger.Debug("span completed", elapsed)
}
