package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if !cfg.ShouldRunAPI() || !cfg.ShouldRunReplay() {
		t.Error("mode all should run every service")
	}
}

func TestConfig_Resolve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/gfxreplay"
	cfg.Resolve()

	if cfg.Archive.Path != filepath.Join("/var/lib/gfxreplay", "archive") {
		t.Errorf("archive path not resolved: %s", cfg.Archive.Path)
	}
	if cfg.Capture.Dir != filepath.Join("/var/lib/gfxreplay", "captures") {
		t.Errorf("capture dir not resolved: %s", cfg.Capture.Dir)
	}
	if cfg.Replay.CacheDir != filepath.Join("/var/lib/gfxreplay", "cache") {
		t.Errorf("cache dir not resolved: %s", cfg.Replay.CacheDir)
	}
	if cfg.CatalogPath() != filepath.Join("/var/lib/gfxreplay", "catalog.db") {
		t.Errorf("catalog path mismatch: %s", cfg.CatalogPath())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad mode", func(c *Config) { c.Mode = "ingest" }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
		{"bad archive type", func(c *Config) { c.Archive.Type = "gcs" }, true},
		{"s3 without bucket", func(c *Config) { c.Archive.Type = "s3" }, true},
		{"s3 with bucket", func(c *Config) {
			c.Archive.Type = "s3"
			c.Archive.S3.Bucket = "captures"
		}, false},
		{"upload size too small", func(c *Config) { c.Capture.MaxUploadSizeMB = 0 }, true},
		{"upload size too large", func(c *Config) { c.Capture.MaxUploadSizeMB = 9999 }, true},
		{"fpr out of range", func(c *Config) { c.Index.TargetFPR = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
mode: api
data_dir: /tmp/gfx
http:
  addr: ":9000"
replay:
  prefetch_concurrency: 8
archive:
  type: s3
  s3:
    bucket: trace-captures
    region: eu-west-1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Mode != ModeAPI {
		t.Errorf("mode: got %s", cfg.Mode)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("http addr: got %s", cfg.HTTP.Addr)
	}
	if cfg.Replay.PrefetchConcurrency != 8 {
		t.Errorf("prefetch concurrency: got %d", cfg.Replay.PrefetchConcurrency)
	}
	if cfg.Archive.S3.Bucket != "trace-captures" {
		t.Errorf("bucket: got %s", cfg.Archive.S3.Bucket)
	}
	// Defaults survive partial files.
	if cfg.Capture.MaxUploadSizeMB != 512 {
		t.Errorf("default upload size lost: %d", cfg.Capture.MaxUploadSizeMB)
	}
}

func TestLoadFromFile_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("mode = 'all'"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GFXREPLAY_MODE", "replay")
	t.Setenv("GFXREPLAY_HTTP_ADDR", ":7070")
	t.Setenv("GFXREPLAY_S3_BUCKET", "env-bucket")
	t.Setenv("GFXREPLAY_REPLAY_VISIBLE_ONLY", "0")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Mode != ModeReplay {
		t.Errorf("mode: got %s", cfg.Mode)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Errorf("http addr: got %s", cfg.HTTP.Addr)
	}
	if cfg.Archive.S3.Bucket != "env-bucket" {
		t.Errorf("bucket: got %s", cfg.Archive.S3.Bucket)
	}
	if cfg.Replay.VisibleOnly {
		t.Error("visible_only should be disabled")
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Capture.Dir, cfg.Replay.CacheDir, cfg.Archive.Path} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
}
