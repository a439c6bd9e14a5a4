// Package server coordinates the lifecycle of the arkdb HTTP and gRPC
// listeners: signal handling, request draining and ordered close of the
// database and its servers.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
)

// ShutdownConfig holds shutdown timeouts.
type ShutdownConfig struct {
	// ShutdownTimeout bounds the whole shutdown. Default: 30 seconds.
	ShutdownTimeout time.Duration

	// DrainTimeout bounds the wait for in-flight requests. Default: 15 seconds.
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout: 30 * time.Second,
		DrainTimeout:    15 * time.Second,
	}
}

// ShutdownManager tracks in-flight requests and closes registered
// resources once, in reverse registration order.
type ShutdownManager struct {
	cfg ShutdownConfig

	done     chan struct{}
	once     sync.Once
	inFlight atomic.Int64
	closing  atomic.Bool

	mu      sync.Mutex
	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// NewShutdownManager creates a shutdown manager. Zero timeouts take the
// defaults.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	def := DefaultShutdownConfig()
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	return &ShutdownManager{cfg: cfg, done: make(chan struct{})}
}

// Register adds a resource closed during shutdown. The last registered
// resource is closed first, so register the database before the servers
// that use it.
func (sm *ShutdownManager) Register(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, c: c})
}

// Wait blocks until SIGINT or SIGTERM arrives, ctx is cancelled or
// Shutdown is called elsewhere, then shuts down.
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.done:
		return nil
	}
}

// Shutdown drains requests and closes every registered resource. Only
// the first call does any work; the first error is returned.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var firstErr error
	sm.once.Do(func() {
		log.Printf("server: shutting down (%s)", reason)
		sm.closing.Store(true)
		close(sm.done)

		ctx, cancel := context.WithTimeout(ctx, sm.cfg.ShutdownTimeout)
		defer cancel()

		if err := sm.drain(ctx); err != nil {
			firstErr = fmt.Errorf("drain failed: %w", err)
		}

		sm.mu.Lock()
		closers := sm.closers
		sm.mu.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].c.Close(); err != nil {
				log.Printf("[WARN] server: close %s: %v", closers[i].name, err)
				if firstErr == nil {
					firstErr = fmt.Errorf("close %s: %w", closers[i].name, err)
				}
			}
		}
		log.Printf("server: shutdown complete")
	})
	return firstErr
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if sm.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			if n := sm.inFlight.Load(); n > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight requests", n)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// Track counts a request as in flight. It returns false once shutdown has
// begun.
func (sm *ShutdownManager) Track() bool {
	if sm.closing.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// Untrack ends a request started with Track.
func (sm *ShutdownManager) Untrack() {
	sm.inFlight.Add(-1)
}

// IsShuttingDown reports whether shutdown has begun.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.closing.Load()
}

// InFlight returns the number of in-flight requests.
func (sm *ShutdownManager) InFlight() int64 {
	return sm.inFlight.Load()
}

// Done is closed when shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// Middleware tracks HTTP requests and rejects new ones with 503 during
// shutdown.
func (sm *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.Track() {
			w.Header().Set("Connection", "close")
			http.Error(w, "Service Unavailable - Shutting Down", http.StatusServiceUnavailable)
			return
		}
		defer sm.Untrack()
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP runs srv on lis in the background and registers it for
// graceful shutdown. Serve errors other than a clean close are reported
// on the returned channel.
func (sm *ShutdownManager) ServeHTTP(srv *http.Server, lis net.Listener) <-chan error {
	sm.Register("http", CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), sm.cfg.DrainTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}))
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// ServeGRPC runs srv on lis in the background and registers it for
// graceful stop. If GracefulStop does not finish within the drain
// timeout the server is stopped hard.
func (sm *ShutdownManager) ServeGRPC(srv *grpc.Server, lis net.Listener) <-chan error {
	sm.Register("grpc", CloserFunc(func() error {
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(sm.cfg.DrainTimeout):
			srv.Stop()
		}
		return nil
	}))
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	return errCh
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}
