package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// LocalArchive implements Archive on the local filesystem. Used in tests
// and for single-host deployments without object storage.
type LocalArchive struct {
	basePath  string
	mu        sync.RWMutex
	checksums map[string]string
}

// NewLocalArchive creates a filesystem-backed archive rooted at basePath.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{
		basePath:  basePath,
		checksums: make(map[string]string),
	}, nil
}

// Push copies a capture file into the archive and records its checksum.
func (l *LocalArchive) Push(ctx context.Context, localPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	destPath := l.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPushFailed, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	defer dst.Close()

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, hash), src); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPushFailed, err)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	l.mu.Lock()
	l.checksums[key] = sum
	l.mu.Unlock()

	return sum, nil
}

// Pull copies an archived capture to localPath.
func (l *LocalArchive) Pull(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath := l.fullPath(key)
	if _, err := os.Stat(srcPath); os.IsNotExist(err) {
		return ErrObjectNotFound
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrPullFailed, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPullFailed, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPullFailed, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: %v", ErrPullFailed, err)
	}
	return nil
}

// Exists checks whether a capture is archived under key.
func (l *LocalArchive) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Remove deletes an archived capture. Idempotent.
func (l *LocalArchive) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(l.fullPath(key)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRemoveFailed, err)
	}

	l.mu.Lock()
	delete(l.checksums, key)
	l.mu.Unlock()
	return nil
}

// List returns all keys under the given prefix.
func (l *LocalArchive) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchDir := l.fullPath(prefix)
	var keys []string

	err := filepath.Walk(searchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(l.basePath, path)
			if err != nil {
				return err
			}
			keys = append(keys, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Checksum returns the recorded checksum for a pushed key.
func (l *LocalArchive) Checksum(key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sum, ok := l.checksums[key]
	return sum, ok
}

func (l *LocalArchive) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}
