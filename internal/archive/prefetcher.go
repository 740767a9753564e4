package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Prefetcher pulls multiple captures from the archive in parallel, keeping
// already-pulled files in a local cache directory.
type Prefetcher struct {
	archive     Archive
	concurrency int
	cacheDir    string
}

// PrefetchRequest names the captures to pull. Priority orders the pulls:
// 0 pulls before 1, and so on. An empty priority slice treats every key as
// priority 0.
type PrefetchRequest struct {
	Keys     []string
	Priority []int
}

// PrefetchResult reports the outcome of a prefetch.
type PrefetchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Pulls      int
}

// NewPrefetcher creates a prefetcher over the given archive. An empty
// cacheDir disables caching and writes into the working directory.
func NewPrefetcher(archive Archive, concurrency int, cacheDir string) *Prefetcher {
	return &Prefetcher{
		archive:     archive,
		concurrency: concurrency,
		cacheDir:    cacheDir,
	}
}

// Fetch pulls the requested captures, highest priority first.
func (p *Prefetcher) Fetch(ctx context.Context, req *PrefetchRequest) (*PrefetchResult, error) {
	result := &PrefetchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(req.Keys) == 0 {
		return result, nil
	}

	priority := req.Priority
	if len(priority) == 0 {
		priority = make([]int, len(req.Keys))
	} else if len(priority) != len(req.Keys) {
		return nil, fmt.Errorf("priority length must match key count")
	}

	type keyed struct {
		key       string
		priority  int
		localPath string
	}
	keys := make([]keyed, len(req.Keys))
	for i, k := range req.Keys {
		keys[i] = keyed{key: k, priority: priority[i], localPath: p.localPath(k)}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].priority < keys[j].priority
	})

	var queue []keyed
	for _, k := range keys {
		if p.cacheDir != "" {
			if _, err := os.Stat(k.localPath); err == nil {
				result.LocalPaths[k.key] = k.localPath
				result.CacheHits++
				continue
			}
		}
		queue = append(queue, k)
	}

	sem := semaphore.NewWeighted(int64(p.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, k := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[k.key] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(key, local string) {
			defer sem.Release(1)
			defer wg.Done()

			if err := p.archive.Pull(ctx, key, local); err != nil {
				mu.Lock()
				result.Errors[key] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			result.LocalPaths[key] = local
			result.Pulls++
			mu.Unlock()
		}(k.key, k.localPath)
	}

	wg.Wait()
	return result, nil
}

// localPath maps an archive key to a cache file. Only the base name of the
// key is kept so keys cannot escape the cache directory.
func (p *Prefetcher) localPath(key string) string {
	base := filepath.Base(filepath.FromSlash(key))
	if p.cacheDir == "" {
		return base
	}
	return filepath.Join(p.cacheDir, base)
}
