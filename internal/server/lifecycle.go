// Package server provides server lifecycle management including graceful shutdown.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Lifecycle coordinates graceful shutdown: signal handling, in-flight
// request draining, and resource cleanup in reverse registration order.
type Lifecycle struct {
	stopTimeout  time.Duration
	drainTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	inFlight int64
	stopping int32

	closers   []io.Closer
	closersMu sync.Mutex
}

// LifecycleConfig holds shutdown timing configuration.
type LifecycleConfig struct {
	// StopTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds
	StopTimeout time.Duration

	// DrainTimeout is the time to wait for in-flight requests to complete.
	// Default: 15 seconds
	DrainTimeout time.Duration
}

// NewLifecycle creates a lifecycle manager with the given configuration.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 15 * time.Second
	}
	return &Lifecycle{
		stopTimeout:  cfg.StopTimeout,
		drainTimeout: cfg.DrainTimeout,
		stopCh:       make(chan struct{}),
	}
}

// RegisterCloser adds a closer to be called during shutdown. Closers are
// called in reverse registration order.
func (lc *Lifecycle) RegisterCloser(closer io.Closer) {
	lc.closersMu.Lock()
	defer lc.closersMu.Unlock()
	lc.closers = append(lc.closers, closer)
}

// ListenForSignals blocks until SIGTERM, SIGINT, or the context fires, then
// runs shutdown.
func (lc *Lifecycle) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-sigCh:
		return lc.Stop(ctx)
	case <-ctx.Done():
		return lc.Stop(ctx)
	case <-lc.stopCh:
		return nil
	}
}

// Stop drains in-flight requests and closes registered resources. Safe to
// call more than once.
func (lc *Lifecycle) Stop(ctx context.Context) error {
	var stopErr error

	lc.stopOnce.Do(func() {
		atomic.StoreInt32(&lc.stopping, 1)
		close(lc.stopCh)

		stopCtx, cancel := context.WithTimeout(ctx, lc.stopTimeout)
		defer cancel()

		if err := lc.drain(stopCtx); err != nil {
			stopErr = fmt.Errorf("drain failed: %w", err)
		}

		lc.closersMu.Lock()
		closers := lc.closers
		lc.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil && stopErr == nil {
				stopErr = fmt.Errorf("close failed: %w", err)
			}
		}
	})

	return stopErr
}

func (lc *Lifecycle) drain(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, lc.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if atomic.LoadInt64(&lc.inFlight) == 0 {
			return nil
		}

		select {
		case <-drainCtx.Done():
			remaining := atomic.LoadInt64(&lc.inFlight)
			if remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight requests", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackRequest increments the in-flight counter. Returns false when
// shutdown has started and the request should be rejected.
func (lc *Lifecycle) TrackRequest() bool {
	if atomic.LoadInt32(&lc.stopping) == 1 {
		return false
	}
	atomic.AddInt64(&lc.inFlight, 1)
	return true
}

// UntrackRequest decrements the in-flight counter.
func (lc *Lifecycle) UntrackRequest() {
	atomic.AddInt64(&lc.inFlight, -1)
}

// Stopping reports whether shutdown has been initiated.
func (lc *Lifecycle) Stopping() bool {
	return atomic.LoadInt32(&lc.stopping) == 1
}

// InFlightCount returns the current number of in-flight requests.
func (lc *Lifecycle) InFlightCount() int64 {
	return atomic.LoadInt64(&lc.inFlight)
}

// StopCh returns a channel closed when shutdown begins.
func (lc *Lifecycle) StopCh() <-chan struct{} {
	return lc.stopCh
}

// Serve starts the HTTP server and shuts it down when the lifecycle stops.
func (lc *Lifecycle) Serve(srv *http.Server) error {
	lc.RegisterCloser(&httpCloser{server: srv})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-lc.stopCh:
		// Server is closed by the lifecycle's closer list.
		return <-errCh
	}
}

type httpCloser struct {
	server *http.Server
}

func (c *httpCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}

// DrainMiddleware tracks in-flight requests and rejects new ones once
// shutdown has started.
func DrainMiddleware(lc *Lifecycle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lc.TrackRequest() {
				w.Header().Set("Connection", "close")
				http.Error(w, "Service Unavailable - Shutting Down", http.StatusServiceUnavailable)
				return
			}
			defer lc.UntrackRequest()

			next.ServeHTTP(w, r)
		})
	}
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
