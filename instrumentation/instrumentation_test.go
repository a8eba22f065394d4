package instrumentation

import (
	"context"
	"testing"
)

func TestNew(t *testing.T) {
	inst, err := New(Config{ServiceName: "wind-oauth-test", ServiceVersion: "0.0.1", Enabled: true})
	if err != nil {
		t.Fatalf("failed to create instrumentation: %v", err)
	}

	if inst.Metrics() == nil {
		t.Fatal("metrics holder is nil")
	}
	if inst.Meter("server") == nil {
		t.Fatal("meter is nil")
	}
	if inst.Tracer("http") == nil {
		t.Fatal("tracer is nil")
	}
	if inst.MeterProvider() == nil || inst.TracerProvider() == nil {
		t.Fatal("providers are nil")
	}

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	// Shutdown is idempotent.
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("failed to create instrumentation: %v", err)
	}
	if inst.config.ServiceName != "wind-oauth" {
		t.Errorf("default service name = %q", inst.config.ServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("default service version = %q", inst.config.ServiceVersion)
	}
}

func TestMetrics_RecordAll(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("failed to create instrumentation: %v", err)
	}
	ctx := context.Background()
	m := inst.Metrics()

	// Recording against no-op providers must never panic.
	m.RecordHTTPRequest(ctx, "POST", "token", 200, 4.2)
	m.RecordCodeIssued(ctx, "client_abc")
	m.RecordCodeExchange(ctx, "client_abc", true)
	m.RecordTokenRefresh(ctx, "client_abc")
	m.RecordTokenRevocation(ctx, "client_abc", false)
	m.RecordIntrospection(ctx, "client_abc", true)
	m.RecordClientCreated(ctx)
	m.RecordAuthFailure(ctx, "bad secret")
	m.RecordCodeReuseDetected(ctx)
	m.RecordSecretUpgrade(ctx)
	m.RecordStorageOperation(ctx, "save_token", "ok", 0.8)
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("failed to create instrumentation: %v", err)
	}

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 1 },
		func() int64 { return 2 },
		func() int64 { return 3 },
	)
	if err != nil {
		t.Fatalf("failed to register callbacks: %v", err)
	}
}
