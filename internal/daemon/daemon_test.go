package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("CASCADE_HOME", t.TempDir())
	cfg := DefaultConfig()
	cfg.Logging.Level = "error"
	return cfg
}

func TestNewWithConfig(t *testing.T) {
	d, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.DB == nil || d.Service == nil || d.Server == nil || d.Health == nil {
		t.Errorf("daemon not fully wired: %+v", d)
	}
}

func TestNewWithConfig_Invalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "loud"
	if _, err := NewWithConfig(cfg); err == nil {
		t.Error("NewWithConfig() should reject an invalid config")
	}
}

func TestServeListener_ServesAndShutsDown(t *testing.T) {
	d, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.ServeListener(ctx, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr())
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ServeListener() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeListener() did not return after cancel")
	}
}
