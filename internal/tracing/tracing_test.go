package tracing

import (
	"context"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{
			name:     "with SERVICE_VERSION set",
			envValue: "v1.2.3",
			expected: "v1.2.3",
		},
		{
			name:     "with SERVICE_VERSION not set",
			envValue: "",
			expected: "dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("SERVICE_VERSION", tt.envValue)
				defer os.Unsetenv("SERVICE_VERSION")
			} else {
				os.Unsetenv("SERVICE_VERSION")
			}

			if result := getVersion(); result != tt.expected {
				t.Errorf("getVersion() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestGetOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{
			name:     "default endpoint",
			envValue: "",
			expected: "tempo:4318",
		},
		{
			name:     "plain host:port",
			envValue: "collector:4318",
			expected: "collector:4318",
		},
		{
			name:     "http scheme stripped",
			envValue: "http://collector:4318",
			expected: "collector:4318",
		},
		{
			name:     "https scheme stripped",
			envValue: "https://collector:4318",
			expected: "collector:4318",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.envValue)
				defer os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			} else {
				os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			}

			if result := getOTLPEndpoint(); result != tt.expected {
				t.Errorf("getOTLPEndpoint() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestEnsureTraceID(t *testing.T) {
	t.Run("supplied id wins", func(t *testing.T) {
		if got := EnsureTraceID(context.Background(), "trace-123"); got != "trace-123" {
			t.Errorf("EnsureTraceID() = %q, want supplied %q", got, "trace-123")
		}
	})

	t.Run("falls back to span trace id", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
		prev := otel.GetTracerProvider()
		otel.SetTracerProvider(tp)
		defer otel.SetTracerProvider(prev)

		ctx, span := StartSpan(context.Background(), "test-span")
		defer span.End()

		want := span.SpanContext().TraceID().String()
		if got := EnsureTraceID(ctx, ""); got != want {
			t.Errorf("EnsureTraceID() = %q, want active span trace id %q", got, want)
		}
	})

	t.Run("generates when nothing else available", func(t *testing.T) {
		first := EnsureTraceID(context.Background(), "")
		second := EnsureTraceID(context.Background(), "")
		if first == "" || second == "" {
			t.Fatal("EnsureTraceID() returned empty id, want generated")
		}
		if first == second {
			t.Errorf("EnsureTraceID() generated %q twice, want unique ids", first)
		}
	})
}

func TestQueueTracePropagation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	prevProp := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prevProp)

	ctx, span := StartSpan(context.Background(), "publish")
	defer span.End()

	headers := PropagateTraceToQueue(ctx)
	if len(headers) == 0 {
		t.Fatal("PropagateTraceToQueue() returned no headers, want trace context")
	}

	extracted := ExtractTraceFromQueue(context.Background(), headers)
	if got, want := GetTraceID(extracted), GetTraceID(ctx); got != want {
		t.Errorf("ExtractTraceFromQueue() trace id = %q, want %q", got, want)
	}
}

func TestGetTraceIDWithoutSpan(t *testing.T) {
	if got := GetTraceID(context.Background()); got != "" {
		t.Errorf("GetTraceID() = %q on bare context, want empty", got)
	}
}
