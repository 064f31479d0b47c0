package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestOTelEmitter_Emit verifies single event emission creates a span.
func TestOTelEmitter_Emit(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("test")
	emitter := NewOTelEmitter(tracer)

	event := Event{
		RunID:  "run-001",
		UnitID: "U3",
		Role:   "design",
		Msg:    "invocation_complete",
		Meta: map[string]interface{}{
			"status":  "succeeded",
			"attempt": 2,
		},
	}
	emitter.Emit(event)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]

	if span.Name != "invocation_complete" {
		t.Errorf("span name = %q, want %q", span.Name, "invocation_complete")
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["quorum.run_id"]; got != "run-001" {
		t.Errorf("run_id = %v, want %q", got, "run-001")
	}
	if got := attrs["quorum.unit"]; got != "U3" {
		t.Errorf("unit = %v, want %q", got, "U3")
	}
	if got := attrs["quorum.role"]; got != "design" {
		t.Errorf("role = %v, want %q", got, "design")
	}

	if got := attrs["quorum.meta.status"]; got != "succeeded" {
		t.Errorf("meta status = %v, want %q", got, "succeeded")
	}
	if got := attrs["quorum.meta.attempt"]; got != int64(2) {
		t.Errorf("meta attempt = %v, want %d", got, 2)
	}

	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}
}

// TestOTelEmitter_EmitWithError verifies error events set error status.
func TestOTelEmitter_EmitWithError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("test")
	emitter := NewOTelEmitter(tracer)

	event := Event{
		RunID:  "run-001",
		UnitID: "U1",
		Role:   "quality",
		Msg:    "invocation_failed",
		Meta: map[string]interface{}{
			"error": "backend unreachable",
		},
	}
	emitter.Emit(event)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]

	if span.Status.Code != codes.Error {
		t.Errorf("status code = %v, want %v", span.Status.Code, codes.Error)
	}
	if span.Status.Description != "backend unreachable" {
		t.Errorf("status description = %q, want %q", span.Status.Description, "backend unreachable")
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["quorum.meta.error"]; got != "backend unreachable" {
		t.Errorf("error attribute = %v, want %q", got, "backend unreachable")
	}

	if len(span.Events) == 0 {
		t.Error("expected recorded error event, got none")
	}
}

// TestOTelEmitter_EmitBatch verifies batch emission creates one span per event.
func TestOTelEmitter_EmitBatch(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("test")
	emitter := NewOTelEmitter(tracer)

	events := []Event{
		{RunID: "run-001", Msg: "run_started"},
		{RunID: "run-001", UnitID: "U1", Role: "quality", Msg: "invocation_complete"},
		{RunID: "run-001", Msg: "run_complete"},
	}

	ctx := context.Background()
	if err := emitter.EmitBatch(ctx, events); err != nil {
		t.Fatalf("EmitBatch failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	expectedNames := []string{"run_started", "invocation_complete", "run_complete"}
	for i, span := range spans {
		if span.Name != expectedNames[i] {
			t.Errorf("span[%d] name = %q, want %q", i, span.Name, expectedNames[i])
		}
		if !span.EndTime.After(span.StartTime) {
			t.Errorf("span[%d] was not ended", i)
		}
	}
}

// TestOTelEmitter_EmitBatch_Empty verifies an empty batch produces no spans.
func TestOTelEmitter_EmitBatch_Empty(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("test")
	emitter := NewOTelEmitter(tracer)

	if err := emitter.EmitBatch(context.Background(), []Event{}); err != nil {
		t.Fatalf("EmitBatch failed on empty batch: %v", err)
	}

	if spans := exporter.GetSpans(); len(spans) != 0 {
		t.Errorf("expected 0 spans for empty batch, got %d", len(spans))
	}
}

// TestOTelEmitter_MetadataTypes verifies metadata type conversion to attributes.
func TestOTelEmitter_MetadataTypes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("test")
	emitter := NewOTelEmitter(tracer)

	emitter.Emit(Event{
		RunID: "run-001",
		Msg:   "run_complete",
		Meta: map[string]interface{}{
			"coverage_pct": 0.85,
			"incomplete":   false,
			"findings":     7,
			"duration_ms":  int64(1234),
			"status":       "done",
			"extra":        []string{"a", "b"},
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	attrs := attributeMap(spans[0].Attributes)
	if got := attrs["quorum.meta.coverage_pct"]; got != 0.85 {
		t.Errorf("coverage_pct = %v, want %f", got, 0.85)
	}
	if got := attrs["quorum.meta.incomplete"]; got != false {
		t.Errorf("incomplete = %v, want false", got)
	}
	if got := attrs["quorum.meta.findings"]; got != int64(7) {
		t.Errorf("findings = %v, want %d", got, 7)
	}
	if got := attrs["quorum.meta.duration_ms"]; got != int64(1234) {
		t.Errorf("duration_ms = %v, want %d", got, 1234)
	}
	if got := attrs["quorum.meta.status"]; got != "done" {
		t.Errorf("status = %v, want %q", got, "done")
	}
	if got := attrs["quorum.meta.extra"]; got != "[a b]" {
		t.Errorf("extra = %v, want stringified slice", got)
	}
}

// attributeMap converts span attributes to a map for easy testing.
func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{})
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
