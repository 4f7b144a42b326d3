package kernel

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestLocalGatewayWaitsForBanner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	g := &LocalGateway{
		Command:      []string{"sh", "-c", "echo '[KernelGatewayApp] Jupyter Kernel Gateway 2.5 is available at http://0.0.0.0:{port}' >&2; exec sleep 30"},
		ReadyTimeout: 5 * time.Second,
	}
	url, err := g.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:") {
		t.Fatalf("unexpected gateway url %q", url)
	}
	again, err := g.Start(context.Background())
	if err != nil || again != url {
		t.Fatalf("second start should be a no-op, got %q %v", again, err)
	}
	if err := g.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestLocalGatewayReportsEarlyExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	g := &LocalGateway{Command: []string{"sh", "-c", "exit 1"}, ReadyTimeout: 5 * time.Second}
	if _, err := g.Start(context.Background()); err == nil {
		t.Fatalf("expected error when the gateway exits early")
	}
}
