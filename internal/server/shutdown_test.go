package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	var order []string
	for _, name := range []string{"db", "http", "grpc"} {
		name := name
		sm.Register(name, CloserFunc(func() error {
			order = append(order, name)
			return nil
		}))
	}

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []string{"grpc", "http", "db"}
	if len(order) != len(want) {
		t.Fatalf("closed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("closed %v, want %v", order, want)
		}
	}

	// second call is a no-op
	if err := sm.Shutdown(context.Background(), "again"); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if len(order) != 3 {
		t.Errorf("closers ran twice: %v", order)
	}
}

func TestShutdownReportsFirstCloseError(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	boom := errors.New("boom")
	sm.Register("a", CloserFunc(func() error { return boom }))
	sm.Register("b", CloserFunc(func() error { return nil }))

	err := sm.Shutdown(context.Background(), "test")
	if !errors.Is(err, boom) {
		t.Errorf("Shutdown error = %v, want %v", err, boom)
	}
}

func TestDrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 100 * time.Millisecond})
	if !sm.Track() {
		t.Fatal("Track rejected before shutdown")
	}
	err := sm.Shutdown(context.Background(), "test")
	if err == nil {
		t.Fatal("expected drain timeout error")
	}
	if sm.Track() {
		t.Error("Track accepted during shutdown")
	}
	if sm.InFlight() != 1 {
		t.Errorf("InFlight = %d, want 1", sm.InFlight())
	}
}

func TestMiddlewareRejectsDuringShutdown(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	h := sm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d before shutdown", rec.Code)
	}

	sm.Shutdown(context.Background(), "test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d during shutdown, want 503", rec.Code)
	}
}

func TestServeHTTPStopsOnShutdown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: time.Second})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})}
	errCh := sm.ServeHTTP(srv, lis)

	resp, err := http.Get("http://" + lis.Addr().String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serve error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-sm.Done():
	default:
		t.Error("Done not closed")
	}
}
