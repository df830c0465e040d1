package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PollingWatcher scans a directory tree on an interval and diffs mtimes to
// synthesize Created/Changed/Deleted events, for filesystems where
// fsnotify's inotify/kqueue backends don't see changes at all (some Docker
// bind mounts, certain network filesystems).
type PollingWatcher struct {
	root       string
	extensions []string
	interval   time.Duration
	workers    int
	onChange   func(path string, t ChangeType)

	mu      sync.Mutex
	fileMap map[string]time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPollingWatcher(root string, extensions []string, interval time.Duration, workers int, onChange func(string, ChangeType)) *PollingWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if workers <= 0 {
		workers = 8
	}
	return &PollingWatcher{
		root:       root,
		extensions: extensions,
		interval:   interval,
		workers:    workers,
		onChange:   onChange,
		fileMap:    make(map[string]time.Time),
	}
}

func (p *PollingWatcher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.fileMap = p.scan()
	p.wg.Add(1)
	go p.loop(ctx)
}

func (p *PollingWatcher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *PollingWatcher) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkForChanges()
		}
	}
}

func (p *PollingWatcher) checkForChanges() {
	next := p.scan()

	p.mu.Lock()
	prev := p.fileMap
	p.fileMap = next
	p.mu.Unlock()

	for path, mtime := range next {
		if prevMtime, ok := prev[path]; !ok {
			p.onChange(path, Created)
		} else if mtime.After(prevMtime) {
			p.onChange(path, Changed)
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			p.onChange(path, Deleted)
		}
	}
}

// scan walks the tree with a worker pool sized to p.workers: the root's
// immediate subdirectories are distributed across workers, each of which
// recurses its assigned subtree independently. A large workspace can have
// tens of thousands of files, and a single-goroutine walk dominates the
// polling interval itself.
func (p *PollingWatcher) scan() map[string]time.Time {
	result := make(map[string]time.Time)
	var resultMu sync.Mutex

	entries, err := os.ReadDir(p.root)
	if err != nil {
		return result
	}

	jobs := make(chan string, len(entries))
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dir := range jobs {
				p.walkSubdir(dir, result, &resultMu)
			}
		}()
	}

	for _, entry := range entries {
		full := filepath.Join(p.root, entry.Name())
		if entry.IsDir() {
			if shouldSkipDir(entry.Name()) {
				continue
			}
			jobs <- full
			continue
		}
		if !p.matchesExtension(full) {
			continue
		}
		if info, err := entry.Info(); err == nil {
			resultMu.Lock()
			result[full] = info.ModTime()
			resultMu.Unlock()
		}
	}
	close(jobs)
	wg.Wait()

	return result
}

// walkSubdir walks one subdirectory's tree synchronously; scan's worker
// goroutines call it once for each directory they take from the job
// channel.
func (p *PollingWatcher) walkSubdir(dir string, result map[string]time.Time, mu *sync.Mutex) {
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != dir && shouldSkipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !p.matchesExtension(path) {
			return nil
		}
		mu.Lock()
		result[path] = info.ModTime()
		mu.Unlock()
		return nil
	})
}

func (p *PollingWatcher) matchesExtension(path string) bool {
	if len(p.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, e := range p.extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func pollingIntervalFromEnv() time.Duration {
	if v := os.Getenv("CATENARY_FILE_WATCHER_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return 30 * time.Second
}

func pollingWorkersFromEnv() int {
	if v := os.Getenv("CATENARY_FILE_WATCHER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 8
}
