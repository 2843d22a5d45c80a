package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hession/haxu-mcp/internal/tools"
)

func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestToolObserverRecordsMetrics(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	observer, err := NewToolObserver(mp.Meter("test"), noop.NewTracerProvider().Tracer("test"))
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(context.Background(), tools.Observation{Tool: "get_alerts", Duration: 120 * time.Millisecond, Success: true})
	observer.ObserveInvoke(context.Background(), tools.Observation{Tool: "get_alerts", Duration: time.Second, Kind: "upstream"})

	rm := collectMetrics(t, reader)

	invocations := findMetric(rm, "haxu.tool.invocations")
	if invocations == nil {
		t.Fatal("haxu.tool.invocations metric not found")
	}
	sum, ok := invocations.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("haxu.tool.invocations type = %T, want Sum[int64]", invocations.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("invocations = %d, want 2", total)
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("expected success and failure series, got %d", len(sum.DataPoints))
	}

	latency := findMetric(rm, "haxu.tool.latency")
	if latency == nil {
		t.Fatal("haxu.tool.latency metric not found")
	}
	if _, ok := latency.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("haxu.tool.latency type = %T, want Histogram[float64]", latency.Data)
	}
}

func TestToolObserverEmitsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	mp := metric.NewMeterProvider()

	observer, err := NewToolObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	observer.ObserveInvoke(ctx, tools.Observation{Tool: "get_forecast", Kind: "panic"})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "tool.invoke" {
		t.Errorf("span name = %s, want tool.invoke", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error || spans[0].Status().Description != "panic" {
		t.Errorf("unexpected span status: %+v", spans[0].Status())
	}
}

func TestNilObserverIsNoop(t *testing.T) {
	var observer *ToolObserver
	observer.ObserveInvoke(context.Background(), tools.Observation{Tool: "x"})
}
