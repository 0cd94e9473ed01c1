package sde

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/logger"
)

// BridgeWatcher reloads a jump bridge file whenever it changes on disk.
type BridgeWatcher struct {
	path     string
	debounce time.Duration
	onChange func([]graph.Bridge)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewBridgeWatcher watches path. onChange receives the parsed bridge list
// after writes settle for debounce; a file that fails to parse is logged and
// skipped.
func NewBridgeWatcher(path string, debounce time.Duration, onChange func([]graph.Bridge)) (*BridgeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &BridgeWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		watcher:  w,
		done:     make(chan struct{}),
	}, nil
}

// Run processes events until ctx is cancelled.
func (bw *BridgeWatcher) Run(ctx context.Context) {
	defer close(bw.done)
	defer bw.watcher.Close()

	timer := time.NewTimer(bw.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != bw.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(bw.debounce)
			}
		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Bridges", fmt.Sprintf("watch error: %v", err))
		case <-timer.C:
			bridges, err := LoadBridgesFile(bw.path)
			if err != nil {
				logger.Warn("Bridges", fmt.Sprintf("reload skipped: %v", err))
				continue
			}
			logger.Info("Bridges", fmt.Sprintf("Reloaded %d bridges from %s", len(bridges), bw.path))
			bw.onChange(bridges)
		}
	}
}

// Done is closed when Run returns.
func (bw *BridgeWatcher) Done() <-chan struct{} { return bw.done }
