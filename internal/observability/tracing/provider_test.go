package tracing

import (
	"context"
	"testing"
	"time"
)

func TestNewExporterSelectsProtocol(t *testing.T) {
	for _, protocol := range []string{"", "grpc", "grpc/protobuf", "http", "http/protobuf", "GRPC"} {
		exporter, err := newExporter(protocol, "localhost:4317")
		if err != nil {
			t.Fatalf("protocol %q: %v", protocol, err)
		}
		if exporter == nil {
			t.Fatalf("protocol %q: expected an exporter", protocol)
		}
	}
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	if _, err := newExporter("avro", "localhost:4317"); err == nil {
		t.Fatal("expected an error for an unsupported protocol")
	}
}

func TestNewProviderEnabledWiresExporter(t *testing.T) {
	provider, err := NewProvider(nil, Config{
		Enabled:          true,
		ServiceName:      "streamcred-test",
		ExporterEndpoint: "localhost:4317",
		ExporterProtocol: "grpc",
		SamplingRatio:    1,
	}, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if provider == nil {
		t.Fatal("expected a tracer provider")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = provider.Shutdown(ctx)
}

func TestNewProviderRejectsBadProtocolWhenEnabled(t *testing.T) {
	if _, err := NewProvider(nil, Config{Enabled: true, ExporterProtocol: "avro"}, nil); err == nil {
		t.Fatal("expected an error for an unsupported protocol")
	}
}
