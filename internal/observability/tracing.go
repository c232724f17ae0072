package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Span represents one traced operation.
type Span interface {
	// End completes the span.
	End()
	// SetAttribute sets a span attribute.
	SetAttribute(key string, value any)
	// RecordError records an error on the span.
	RecordError(err error)
	// TraceID identifies the trace the span belongs to.
	TraceID() string
}

// Tracer creates spans for tracing operations.
type Tracer interface {
	// Start creates a new span and returns it along with a new context.
	Start(ctx context.Context, name string) (context.Context, Span)
}

type noopSpan struct{}

func (noopSpan) End()                     {}
func (noopSpan) SetAttribute(string, any) {}
func (noopSpan) RecordError(error)        {}
func (noopSpan) TraceID() string          { return "" }

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

// NoopTracer returns a tracer whose spans do nothing.
func NoopTracer() Tracer {
	return noopTracer{}
}

// loggingSpan logs its duration, attributes and error when it ends.
type loggingSpan struct {
	name       string
	startTime  time.Time
	logger     *slog.Logger
	traceID    string
	spanID     string
	mu         sync.Mutex
	attributes map[string]any
	err        error
}

func (s *loggingSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs := []any{
		"span", s.name,
		"duration", time.Since(s.startTime),
		"trace_id", s.traceID,
		"span_id", s.spanID,
	}
	for k, v := range s.attributes {
		attrs = append(attrs, k, v)
	}

	if s.err != nil {
		attrs = append(attrs, "error", s.err.Error())
		s.logger.Warn("span completed with error", attrs...)
		return
	}
	s.logger.Debug("span completed", attrs...)
}

func (s *loggingSpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes[key] = value
}

func (s *loggingSpan) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *loggingSpan) TraceID() string {
	return s.traceID
}

type loggingTracer struct {
	logger *slog.Logger
}

// NewLoggingTracer returns a tracer that reports spans through logger.
func NewLoggingTracer(logger *slog.Logger) Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingTracer{logger: logger}
}

func (t *loggingTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	traceID := SpanFromContext(ctx).TraceID()
	if traceID == "" {
		traceID = uuid.NewString()
	}
	span := &loggingSpan{
		name:       name,
		startTime:  time.Now(),
		logger:     t.logger,
		traceID:    traceID,
		spanID:     uuid.NewString()[:8],
		attributes: make(map[string]any),
	}
	return context.WithValue(ctx, spanContextKey{}, Span(span)), span
}

type spanContextKey struct{}

// SpanFromContext returns the current span from context, or a noop span.
func SpanFromContext(ctx context.Context) Span {
	if span, ok := ctx.Value(spanContextKey{}).(Span); ok {
		return span
	}
	return noopSpan{}
}

// Common span attribute keys.
const (
	AttrAnalysis = "analysis"
	AttrOutcome  = "outcome"
	AttrPolicy   = "policy"
	AttrSetName  = "policy_set"
)
