// Package app provides the unified application lifecycle management for gfxreplay.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	httpapi "github.com/gfxreplay/gfxreplay/internal/api/http"
	"github.com/gfxreplay/gfxreplay/internal/archive"
	"github.com/gfxreplay/gfxreplay/internal/bus"
	"github.com/gfxreplay/gfxreplay/internal/cache"
	"github.com/gfxreplay/gfxreplay/internal/catalog"
	"github.com/gfxreplay/gfxreplay/internal/config"
	"github.com/gfxreplay/gfxreplay/internal/observability"
	"github.com/gfxreplay/gfxreplay/internal/server"
	"github.com/gfxreplay/gfxreplay/internal/traces"
)

// App manages all gfxreplay service lifecycles.
type App struct {
	cfg *config.Config

	// Shared resources
	archive    archive.Archive
	catalog    catalog.Catalog
	notifier   *bus.Notifier
	traceCache *cache.TraceCache
	stats      *observability.FilterStats
	service    *traces.Service
	lifecycle  *server.Lifecycle

	apiServer *http.Server

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{cfg: cfg}, nil
}

// Start initializes shared resources and starts all configured services.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	if a.cfg.ShouldRunAPI() {
		a.startAPIService()
	}
	if a.cfg.ShouldRunReplay() {
		a.startReplayValidator(ctx)
	}

	log.Printf("gfxreplay started in %s mode", a.cfg.Mode)
	return nil
}

// initSharedResources initializes the archive, catalog, bus, cache, and
// trace service.
func (a *App) initSharedResources() error {
	var err error

	switch a.cfg.Archive.Type {
	case "local":
		a.archive, err = archive.NewLocalArchive(a.cfg.Archive.Path)
	case "s3":
		s3Cfg := archive.DefaultS3Config()
		if a.cfg.Archive.S3.Region != "" {
			s3Cfg.Region = a.cfg.Archive.S3.Region
		}
		if a.cfg.Archive.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Archive.S3.Endpoint
		}
		s3Cfg.UsePathStyle = a.cfg.Archive.S3.UsePathStyle
		a.archive, err = archive.NewS3Archive(context.Background(), a.cfg.Archive.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported archive type: %s", a.cfg.Archive.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	log.Printf("Archive initialized: type=%s", a.cfg.Archive.Type)
	if a.cfg.Archive.Type == "s3" {
		log.Printf("S3 config: bucket=%s region=%s endpoint=%s",
			a.cfg.Archive.S3.Bucket, a.cfg.Archive.S3.Region, a.cfg.Archive.S3.Endpoint)
	}

	cat, err := catalog.NewCatalog(a.cfg.CatalogPath())
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	a.catalog = cat
	log.Printf("Catalog initialized: %s", a.cfg.CatalogPath())

	a.notifier = bus.NewNotifier(64)
	a.traceCache = cache.NewTraceCache(0)
	a.traceCache.AttachBus(a.notifier)
	a.stats = observability.NewFilterStats()

	a.service = traces.NewService(a.cfg.Capture.Dir, a.catalog, a.archive,
		traces.WithCache(a.traceCache),
		traces.WithNotifier(a.notifier),
		traces.WithFilterStats(a.stats),
	)

	a.lifecycle = server.NewLifecycle(server.LifecycleConfig{})
	return nil
}

// startAPIService starts the HTTP API server.
func (a *App) startAPIService() {
	handler := httpapi.NewHandler(a.service, a.stats,
		int64(a.cfg.Capture.MaxUploadSizeMB)*1024*1024)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/health", a.healthHandler("gfxreplay-api"))

	middleware := httpapi.ChainMiddleware(
		server.DrainMiddleware(a.lifecycle),
		httpapi.RecoveryMiddleware,
		httpapi.RequestIDMiddleware,
		httpapi.LoggingMiddleware,
		httpapi.ContentTypeMiddleware,
	)

	a.apiServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      middleware(mux),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("API HTTP server listening on %s", a.cfg.HTTP.Addr)
		if err := a.lifecycle.Serve(a.apiServer); err != nil {
			log.Printf("API HTTP server error: %v", err)
		}
	}()
}

// startReplayValidator replays each newly registered trace and logs steps
// that referenced contexts missing from their initial snapshot.
func (a *App) startReplayValidator(ctx context.Context) {
	sub := a.notifier.Subscribe("replay-validator", nil)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.notifier.Unsubscribe("replay-validator")

		for {
			select {
			case ev, ok := <-sub.Ch:
				if !ok {
					return
				}
				if ev.Type != bus.TraceRegistered {
					continue
				}
				a.validateTrace(ctx, ev.TraceID)
			case <-ctx.Done():
				return
			case <-a.lifecycle.StopCh():
				return
			}
		}
	}()
	log.Printf("Replay validator started (visible_only=%t)", a.cfg.Replay.VisibleOnly)
}

func (a *App) validateTrace(ctx context.Context, traceID string) {
	results, err := a.service.Replay(ctx, traceID, a.cfg.Replay.VisibleOnly)
	if err != nil {
		log.Printf("Replay validation failed for %s: %v", traceID, err)
		return
	}
	var unknown int
	for _, res := range results {
		unknown += res.UnknownContexts
	}
	if unknown > 0 {
		log.Printf("Replay validation for %s: %d events referenced unknown contexts", traceID, unknown)
	} else {
		log.Printf("Replay validation for %s: %d steps clean", traceID, len(results))
	}
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown...")

	if a.cancel != nil {
		a.cancel()
	}

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.lifecycle != nil {
		if err := a.lifecycle.Stop(stopCtx); err != nil {
			log.Printf("Lifecycle stop error: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-stopCtx.Done():
		log.Printf("Shutdown timeout, some goroutines may not have finished")
	}

	a.cleanup()
	log.Printf("gfxreplay stopped")
	return nil
}

// cleanup releases all shared resources.
func (a *App) cleanup() {
	if a.traceCache != nil {
		a.traceCache.Close()
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
}

// healthHandler returns a health check handler for the given service.
func (a *App) healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":"%s","mode":"%s"}`, service, a.cfg.Mode)
	}
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.lifecycle.ListenForSignals(ctx)
}
