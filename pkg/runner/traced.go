package runner

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowplane/flowplane/pkg/otelhelper"
)

// TracedRunner wraps a StepRunner with an OpenTelemetry span per step.
type TracedRunner struct {
	tracer trace.Tracer
	inner  StepRunner
}

// NewTracedRunner decorates the inner runner with tracing.
func NewTracedRunner(tracer trace.Tracer, inner StepRunner) *TracedRunner {
	return &TracedRunner{tracer: tracer, inner: inner}
}

func (t *TracedRunner) Run(ctx context.Context, req StepRequest) (*StepResult, error) {
	backend := ""
	if req.Hints != nil {
		backend = req.Hints.Backend
	}

	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "runner.step",
		attribute.String(otelhelper.ExecutionIDKey, req.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, req.NodeID),
		attribute.String(otelhelper.BackendKey, backend),
	)
	defer span.End()

	result, err := t.inner.Run(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return result, nil
}
