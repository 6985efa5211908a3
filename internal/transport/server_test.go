package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealth_ReflectsServingState(t *testing.T) {
	s, err := StartServer(0)
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	go func() { _ = s.Serve() }()
	defer s.Stop()

	addr := fmt.Sprintf("127.0.0.1:%d", s.Port())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := Check(ctx, addr, "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("want NOT_SERVING before ready, got %v", st)
	}

	s.SetServing(true, "weather-events")
	for _, svc := range []string{"", "weather-events"} {
		st, err := Check(ctx, addr, svc)
		if err != nil {
			t.Fatalf("Check(%q): %v", svc, err)
		}
		if st != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("Check(%q): want SERVING, got %v", svc, st)
		}
	}
}
