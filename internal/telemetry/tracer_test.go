// SPDX-License-Identifier: MIT
package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestNewProviderDisabled(t *testing.T) {
	cfg := Config{
		Enabled:      false,
		ServiceName:  "movie-notifier-bot",
		ExporterType: "grpc",
	}

	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.tp != nil {
		t.Error("expected noop provider (tp == nil)")
	}

	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-check")
	if span.IsRecording() {
		t.Error("expected noop span to be non-recording")
	}
	span.End()
}

func TestNewProviderInvalidExporter(t *testing.T) {
	cfg := Config{
		Enabled:      true,
		ServiceName:  "movie-notifier-bot",
		ExporterType: "invalid",
	}

	_, err := NewProvider(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for invalid exporter type")
	}
	want := "unsupported exporter type: invalid (supported: grpc, http)"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestProviderShutdownNoop(t *testing.T) {
	provider := &Provider{tp: nil}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error on noop shutdown: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("unexpected error with canceled context: %v", err)
	}
}

func TestTracer(t *testing.T) {
	if _, err := NewProvider(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tracer := Tracer("test-tracer")
	ctx, span := tracer.Start(context.Background(), "test-span")
	span.End()

	if trace.SpanFromContext(ctx) == nil {
		t.Error("expected span in context")
	}
}
