// Package config provides unified configuration for all gfxreplay services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode represents the service mode to run.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeAPI    Mode = "api"
	ModeReplay Mode = "replay"
)

// Config holds the unified configuration for all gfxreplay services.
type Config struct {
	// Mode specifies which services to run: all, api, replay
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Capture handling configuration
	Capture CaptureConfig `json:"capture" yaml:"capture"`

	// Replay service configuration
	Replay ReplayConfig `json:"replay" yaml:"replay"`

	// Index configuration for step type filters
	Index IndexConfig `json:"index" yaml:"index"`

	// Archive configuration
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// CaptureConfig holds capture file handling configuration.
type CaptureConfig struct {
	// Dir is the directory for capture files
	Dir string `json:"dir" yaml:"dir"`

	// MaxUploadSizeMB is the largest accepted capture upload in megabytes (1–4096, default 512)
	MaxUploadSizeMB int `json:"max_upload_size_mb" yaml:"max_upload_size_mb"`
}

// ReplayConfig holds replay service configuration.
type ReplayConfig struct {
	// CacheDir is the directory for captures pulled from the archive
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// PrefetchConcurrency is the number of parallel archive pulls
	PrefetchConcurrency int `json:"prefetch_concurrency" yaml:"prefetch_concurrency"`

	// VisibleOnly restricts replay to the visible event subsequence
	VisibleOnly bool `json:"visible_only" yaml:"visible_only"`
}

// IndexConfig holds step type filter configuration.
type IndexConfig struct {
	// ExpectedTypes is the expected distinct event types per step
	ExpectedTypes int `json:"expected_types" yaml:"expected_types"`

	// TargetFPR is the target false positive rate for type filters
	TargetFPR float64 `json:"target_fpr" yaml:"target_fpr"`
}

// ArchiveConfig holds capture archive configuration.
type ArchiveConfig struct {
	// Type is the archive type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local archive path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/gfxreplay",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Capture: CaptureConfig{
			Dir:             "",
			MaxUploadSizeMB: 512,
		},
		Replay: ReplayConfig{
			CacheDir:            "",
			PrefetchConcurrency: 4,
			VisibleOnly:         true,
		},
		Index: IndexConfig{
			ExpectedTypes: 256,
			TargetFPR:     0.01,
		},
		Archive: ArchiveConfig{
			Type: "local",
			Path: "",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/gfxreplay"
	}

	if c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(c.DataDir, "archive")
	}

	if c.Capture.Dir == "" {
		c.Capture.Dir = filepath.Join(c.DataDir, "captures")
	}

	if c.Replay.CacheDir == "" {
		c.Replay.CacheDir = filepath.Join(c.DataDir, "cache")
	}
}

// CatalogPath returns the path to the catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeAPI, ModeReplay:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be all, api, or replay)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Archive.Type != "local" && c.Archive.Type != "s3" {
		return fmt.Errorf("invalid archive type: %s (must be local or s3)", c.Archive.Type)
	}

	if c.Archive.Type == "s3" && c.Archive.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when archive type is s3")
	}

	if c.Capture.MaxUploadSizeMB < 1 || c.Capture.MaxUploadSizeMB > 4096 {
		return fmt.Errorf("capture.max_upload_size_mb must be between 1 and 4096, got %d", c.Capture.MaxUploadSizeMB)
	}

	if c.Index.TargetFPR <= 0 || c.Index.TargetFPR >= 1 {
		return fmt.Errorf("index.target_fpr must be in (0, 1), got %g", c.Index.TargetFPR)
	}

	return nil
}

// ShouldRunAPI returns true if the HTTP API should run.
func (c *Config) ShouldRunAPI() bool {
	return c.Mode == ModeAll || c.Mode == ModeAPI
}

// ShouldRunReplay returns true if the replay service should run.
func (c *Config) ShouldRunReplay() bool {
	return c.Mode == ModeAll || c.Mode == ModeReplay
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the GFXREPLAY_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GFXREPLAY_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("GFXREPLAY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("GFXREPLAY_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Capture configuration
	if v := os.Getenv("GFXREPLAY_CAPTURE_DIR"); v != "" {
		cfg.Capture.Dir = v
	}
	if v := os.Getenv("GFXREPLAY_CAPTURE_MAX_UPLOAD_SIZE_MB"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Capture.MaxUploadSizeMB)
	}

	// Replay configuration
	if v := os.Getenv("GFXREPLAY_REPLAY_CACHE_DIR"); v != "" {
		cfg.Replay.CacheDir = v
	}
	if v := os.Getenv("GFXREPLAY_REPLAY_PREFETCH_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Replay.PrefetchConcurrency)
	}
	if v := os.Getenv("GFXREPLAY_REPLAY_VISIBLE_ONLY"); v != "" {
		cfg.Replay.VisibleOnly = v == "true" || v == "1"
	}

	// Archive configuration
	if v := os.Getenv("GFXREPLAY_ARCHIVE_TYPE"); v != "" {
		cfg.Archive.Type = v
	}
	if v := os.Getenv("GFXREPLAY_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("GFXREPLAY_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("GFXREPLAY_S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv("GFXREPLAY_S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Capture.Dir,
		c.Replay.CacheDir,
	}
	if c.Archive.Type == "local" {
		dirs = append(dirs, c.Archive.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
