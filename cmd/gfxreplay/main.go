// Package main implements the unified gfxreplay binary.
// This binary can run the API and replay-validation services concurrently
// or individually based on the --mode flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gfxreplay/gfxreplay/internal/app"
	"github.com/gfxreplay/gfxreplay/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		mode        string
		httpAddr    string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&mode, "mode", "", "Service mode: all, api, replay")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP address for the API service")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "gfxreplay - Graphics Trace Capture, Segmentation, and Replay\n\n")
		fmt.Fprintf(os.Stderr, "Usage: gfxreplay [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  gfxreplay --data-dir /data/gfxreplay\n")
		fmt.Fprintf(os.Stderr, "  gfxreplay --mode api --data-dir /data/gfxreplay\n")
		fmt.Fprintf(os.Stderr, "  gfxreplay --config /etc/gfxreplay/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  GFXREPLAY_MODE           Service mode (all, api, replay)\n")
		fmt.Fprintf(os.Stderr, "  GFXREPLAY_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  GFXREPLAY_HTTP_ADDR      HTTP address for the API service\n")
		fmt.Fprintf(os.Stderr, "  GFXREPLAY_ARCHIVE_TYPE   Archive type (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("gfxreplay version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, mode, httpAddr)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, mode, httpAddr string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags take highest priority
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                      GFXREPLAY                            ║")
	log.Printf("║     Graphics Trace Capture, Segmentation, and Replay      ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Mode:     %s", cfg.Mode)
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Archive:  %s", cfg.Archive.Type)
	log.Printf("")

	if cfg.ShouldRunAPI() {
		log.Printf("API Service:")
		log.Printf("  HTTP: %s", cfg.HTTP.Addr)
		log.Printf("  Max Upload: %d MB", cfg.Capture.MaxUploadSizeMB)
	}

	if cfg.ShouldRunReplay() {
		log.Printf("Replay Validator:")
		log.Printf("  Visible Only: %t", cfg.Replay.VisibleOnly)
		log.Printf("  Cache Dir: %s", cfg.Replay.CacheDir)
	}

	log.Printf("")
}
