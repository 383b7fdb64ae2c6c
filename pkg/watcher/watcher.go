package watcher

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches fixture files and fires a callback when their content changes
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	fileHashes map[string]uint64
	groups     map[string]*group
	dirs       map[string]bool
	done       chan struct{}
	closeOnce  sync.Once
}

// group is a set of files sharing one callback and debounce timer.
// Editors often save by rename, so the parent directories are watched
// rather than the files themselves.
type group struct {
	paths    []string
	callback func(changed string)
	debounce time.Duration
	timer    *time.Timer
	// running serializes callbacks, a timer may fire while the last call is still busy
	running sync.Mutex
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &FileWatcher{
		watcher:    watcher,
		fileHashes: make(map[string]uint64),
		groups:     make(map[string]*group),
		dirs:       make(map[string]bool),
		done:       make(chan struct{}),
	}, nil
}

// Watch registers files that share a callback. Changes within the debounce
// window are coalesced into one call that receives the last changed path.
func (fw *FileWatcher) Watch(paths []string, callback func(string), debounceDuration time.Duration) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files to watch")
	}

	g := &group{callback: callback, debounce: debounceDuration}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}

		hash, err := fileHash(abs)
		if err != nil {
			return fmt.Errorf("failed to get initial hash: %w", err)
		}

		dir := filepath.Dir(abs)
		if !fw.dirs[dir] {
			if err := fw.watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", dir, err)
			}
			fw.dirs[dir] = true
		}

		fw.fileHashes[abs] = hash
		fw.groups[abs] = g
		g.paths = append(g.paths, abs)
	}

	return nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start() {
	go fw.watchLoop()
}

// watchLoop is the main event loop for file watching
func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			path, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			fw.schedule(path)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Watcher error: %v", err)
		}
	}
}

// schedule queues a change check for path, honouring its group's debounce
func (fw *FileWatcher) schedule(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	g, ok := fw.groups[path]
	if !ok {
		return
	}

	if g.debounce == 0 {
		go fw.handleFileChange(path)
		return
	}

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.debounce, func() {
		fw.handleFileChange(path)
	})
}

// handleFileChange fires the callback if any file of the group really changed
func (fw *FileWatcher) handleFileChange(path string) {
	fw.mu.Lock()
	g, ok := fw.groups[path]
	if !ok {
		fw.mu.Unlock()
		return
	}

	changed := false
	for _, p := range g.paths {
		newHash, err := fileHash(p)
		if err != nil {
			// A file mid-rename may be briefly missing
			continue
		}
		if newHash != fw.fileHashes[p] {
			fw.fileHashes[p] = newHash
			changed = true
		}
	}
	fw.mu.Unlock()

	if changed {
		g.running.Lock()
		defer g.running.Unlock()
		g.callback(path)
	}
}

// fileHash calculates the xxhash of a file's content
func fileHash(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, file); err != nil {
		return 0, err
	}

	return h.Sum64(), nil
}

// Close stops the file watcher
func (fw *FileWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		close(fw.done)

		fw.mu.Lock()
		for _, g := range fw.groups {
			if g.timer != nil {
				g.timer.Stop()
			}
		}
		fw.mu.Unlock()

		err = fw.watcher.Close()
	})
	return err
}

// Unwatch stops watching a specific file
func (fw *FileWatcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	g, ok := fw.groups[abs]
	if !ok {
		return fmt.Errorf("not watching %s", path)
	}
	for i, p := range g.paths {
		if p == abs {
			g.paths = append(g.paths[:i], g.paths[i+1:]...)
			break
		}
	}
	delete(fw.fileHashes, abs)
	delete(fw.groups, abs)

	return nil
}
