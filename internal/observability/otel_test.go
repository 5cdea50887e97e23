package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/go-token-alert-bot/internal/config"
)

func keepGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabledCfg(name string, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false}, "v0")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled setup replaced the tracer provider")
	}
}

func TestSetupOTel_InstallsProvider(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		keepGlobals(t)

		shutdown, err := SetupOTel(context.Background(), enabledCfg("alertbot-test", insecure), "v1.0.0")
		if err != nil {
			t.Fatalf("insecure=%v: unexpected err: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("insecure=%v: expected *sdktrace.TracerProvider", insecure)
		}

		ctx, span := Tracer().Start(context.Background(), "refresh.cycle")
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		span.End()
		if carrier.Get("traceparent") == "" {
			t.Fatalf("insecure=%v: traceparent not injected", insecure)
		}

		sctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		_ = shutdown(sctx)
		cancel()
	}
}

func TestSetupOTel_SeamErrors_LeaveGlobalsIntact(t *testing.T) {
	keepGlobals(t)
	origExp, origRes := newExporter, newResource
	t.Cleanup(func() { newExporter, newResource = origExp, origRes })

	prevTP := otel.GetTracerProvider()

	newExporter = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("boom-exporter")
	}
	if _, err := SetupOTel(context.Background(), enabledCfg("svc", true), "v0"); err == nil {
		t.Fatalf("expected exporter error")
	}
	newExporter = origExp

	newResource = func(context.Context, string, string) (*resource.Resource, error) {
		return nil, errors.New("boom-resource")
	}
	if _, err := SetupOTel(context.Background(), enabledCfg("svc", true), "v0"); err == nil {
		t.Fatalf("expected resource error")
	}

	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("tracer provider changed on failure")
	}
}

func TestMetrics_Registered(t *testing.T) {
	for name, c := range map[string]prometheus.Collector{
		"quote":         QuoteRequests,
		"cycles":        RefreshCycles,
		"duration":      RefreshCycleDuration,
		"notifications": Notifications,
		"tracked":       TrackedTokens,
	} {
		if err := prometheus.Register(c); err == nil {
			t.Fatalf("%s: collector was not registered by init", name)
		}
	}

	before := testutil.ToFloat64(RefreshCycles.WithLabelValues("ok"))
	RefreshCycles.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(RefreshCycles.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("cycles ok = %v, want %v", got, before+1)
	}
}
