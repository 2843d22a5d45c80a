// Package telemetry records tool dispatches into OpenTelemetry.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hession/haxu-mcp/internal/tools"
)

// Instrumentation scope used for the meter and tracer.
const Scope = "haxu-mcp/tool"

// ToolObserver counts invocations, records latency and emits one span per
// dispatch.
type ToolObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		"haxu.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"haxu.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:      tracer,
		invocations: invocations,
		latency:     latency,
	}, nil
}

// ObserveInvoke records one invocation result.
func (o *ToolObserver) ObserveInvoke(ctx context.Context, obs tools.Observation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", obs.Tool),
		attribute.Bool("success", obs.Success),
	}
	if obs.Kind != "" {
		attrs = append(attrs, attribute.String("error_kind", obs.Kind))
	}

	// detached so cancelled requests still get recorded
	ctx = context.WithoutCancel(ctx)
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, float64(obs.Duration)/float64(time.Second), options)

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "tool.invoke",
		trace.WithTimestamp(time.Now().Add(-obs.Duration)),
		trace.WithAttributes(attrs...),
	)
	if !obs.Success {
		span.SetStatus(codes.Error, obs.Kind)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

var _ tools.Observer = (*ToolObserver)(nil)
