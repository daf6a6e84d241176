package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchDownloader mirrors objects from object storage into a local
// directory in parallel, preserving their relative paths.
type BatchDownloader struct {
	storage     ObjectStorage
	concurrency int
	destDir     string
}

// BatchRequest specifies which objects to download. Lower priorities are
// started first.
type BatchRequest struct {
	ObjectPaths []string
	Priority    []int

	// Overwrite re-downloads objects that already exist locally.
	Overwrite bool
}

// BatchResult contains the outcome of a batch download.
type BatchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	Skipped    int
	Downloads  int
}

// NewBatchDownloader creates a downloader writing under destDir.
func NewBatchDownloader(storage ObjectStorage, concurrency int, destDir string) *BatchDownloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchDownloader{
		storage:     storage,
		concurrency: concurrency,
		destDir:     destDir,
	}
}

// Download fetches every requested object. Per-object failures are reported
// in the result; the returned error covers invalid requests only.
func (b *BatchDownloader) Download(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	result := &BatchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(req.ObjectPaths) == 0 {
		return result, nil
	}

	priority := req.Priority
	if len(priority) == 0 {
		priority = make([]int, len(req.ObjectPaths))
	} else if len(priority) != len(req.ObjectPaths) {
		return nil, fmt.Errorf("storage: priority array length must match object paths count")
	}

	type job struct {
		object   string
		local    string
		priority int
	}
	jobs := make([]job, 0, len(req.ObjectPaths))
	for i, p := range req.ObjectPaths {
		local, err := b.localPath(p)
		if err != nil {
			result.Errors[p] = err
			continue
		}
		if !req.Overwrite {
			if _, err := os.Stat(local); err == nil {
				result.LocalPaths[p] = local
				result.Skipped++
				continue
			}
		}
		jobs = append(jobs, job{object: p, local: local, priority: priority[i]})
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].priority < jobs[j].priority })

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, j := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[j.object] = fmt.Errorf("storage: semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(j job) {
			defer sem.Release(1)
			defer wg.Done()

			err := b.storage.Download(ctx, j.object, j.local)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[j.object] = err
				return
			}
			result.LocalPaths[j.object] = j.local
			result.Downloads++
		}(j)
	}

	wg.Wait()
	return result, nil
}

// localPath maps a slash-separated object path under destDir, refusing
// paths that would escape it.
func (b *BatchDownloader) localPath(objectPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(objectPath, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: object path %q escapes destination", objectPath)
	}
	return filepath.Join(b.destDir, clean), nil
}
