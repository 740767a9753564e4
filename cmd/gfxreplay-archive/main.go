// Package main implements the gfxreplay-archive tool for pushing capture
// files to an archive backend, pulling them back, and listing what is
// stored. Pull uses the prefetcher so repeated fetches hit the local cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gfxreplay/gfxreplay/internal/archive"
)

// Config holds the tool configuration.
type Config struct {
	ArchiveType string
	ArchivePath string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
	CacheDir    string
	Concurrency int
}

func main() {
	cfg, args := parseFlags()

	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	arch, err := openArchive(cfg)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}

	ctx := context.Background()
	command := args[0]

	switch command {
	case "push":
		err = runPush(ctx, arch, args[1:])
	case "pull":
		err = runPull(ctx, arch, cfg, args[1:])
	case "list":
		err = runList(ctx, arch, args[1:])
	case "remove":
		err = runRemove(ctx, arch, args[1:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func parseFlags() (Config, []string) {
	cfg := Config{}

	flag.StringVar(&cfg.ArchiveType, "archive", "local", "Archive backend: local or s3")
	flag.StringVar(&cfg.ArchivePath, "path", "./data/archive", "Base path for the local archive")
	flag.StringVar(&cfg.S3Bucket, "bucket", "", "S3 bucket name")
	flag.StringVar(&cfg.S3Region, "region", "us-east-1", "S3 region")
	flag.StringVar(&cfg.S3Endpoint, "endpoint", "", "Custom S3 endpoint (for MinIO)")
	flag.BoolVar(&cfg.S3PathStyle, "path-style", false, "Use path-style S3 addressing")
	flag.StringVar(&cfg.CacheDir, "cache-dir", "./data/cache", "Local cache directory for pulls")
	flag.IntVar(&cfg.Concurrency, "concurrency", 4, "Parallel pulls")

	flag.Usage = usage
	flag.Parse()

	return cfg, flag.Args()
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: gfxreplay-archive [options] <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  push <file> [file...]    Upload capture files\n")
	fmt.Fprintf(os.Stderr, "  pull <trace-id> [id...]  Download captures into the cache directory\n")
	fmt.Fprintf(os.Stderr, "  list [prefix]            List stored objects\n")
	fmt.Fprintf(os.Stderr, "  remove <trace-id>        Delete a stored capture\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}

func openArchive(cfg Config) (archive.Archive, error) {
	switch cfg.ArchiveType {
	case "local":
		return archive.NewLocalArchive(cfg.ArchivePath)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires --bucket")
		}
		s3Cfg := archive.DefaultS3Config()
		s3Cfg.Region = cfg.S3Region
		s3Cfg.Endpoint = cfg.S3Endpoint
		s3Cfg.UsePathStyle = cfg.S3PathStyle
		return archive.NewS3Archive(context.Background(), cfg.S3Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported archive type: %s", cfg.ArchiveType)
	}
}

func runPush(ctx context.Context, arch archive.Archive, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("push requires at least one file")
	}

	for _, file := range files {
		traceID := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		key := archive.CaptureKey(traceID)

		location, err := arch.Push(ctx, file, key)
		if err != nil {
			return fmt.Errorf("push %s: %w", file, err)
		}
		fmt.Printf("pushed %s -> %s\n", file, location)
	}
	return nil
}

func runPull(ctx context.Context, arch archive.Archive, cfg Config, traceIDs []string) error {
	if len(traceIDs) == 0 {
		return fmt.Errorf("pull requires at least one trace ID")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	keys := make([]string, len(traceIDs))
	for i, id := range traceIDs {
		keys[i] = archive.CaptureKey(id)
	}

	prefetcher := archive.NewPrefetcher(arch, cfg.Concurrency, cfg.CacheDir)
	result, err := prefetcher.Fetch(ctx, &archive.PrefetchRequest{Keys: keys})
	if err != nil {
		return err
	}

	for key, path := range result.LocalPaths {
		fmt.Printf("pulled %s -> %s\n", key, path)
	}
	for key, pullErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "failed %s: %v\n", key, pullErr)
	}
	fmt.Printf("%d pulled, %d cache hits, %d failed\n", result.Pulls, result.CacheHits, len(result.Errors))

	if len(result.Errors) > 0 {
		return fmt.Errorf("%d pulls failed", len(result.Errors))
	}
	return nil
}

func runList(ctx context.Context, arch archive.Archive, args []string) error {
	prefix := "captures/"
	if len(args) > 0 {
		prefix = args[0]
	}

	keys, err := arch.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	fmt.Fprintf(os.Stderr, "%d objects\n", len(keys))
	return nil
}

func runRemove(ctx context.Context, arch archive.Archive, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("remove requires exactly one trace ID")
	}
	key := archive.CaptureKey(args[0])
	if err := arch.Remove(ctx, key); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", key)
	return nil
}
