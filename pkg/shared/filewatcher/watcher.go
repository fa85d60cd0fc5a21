// Package filewatcher reports debounced changes to a file or to the entries
// of a directory.
package filewatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent describes a change (or a watch error) under the watched path.
type ChangeEvent struct {
	Path      string
	Timestamp time.Time
	Error     error
}

// ChangeListener receives change notifications.
type ChangeListener interface {
	OnFileChange(event ChangeEvent)
}

// ListenerFunc adapts a function to ChangeListener.
type ListenerFunc func(ChangeEvent)

// OnFileChange calls f(event).
func (f ListenerFunc) OnFileChange(event ChangeEvent) { f(event) }

// Watcher monitors a file or directory and notifies listeners once a burst
// of events has been quiet for the debounce delay.
type Watcher struct {
	watcher       *fsnotify.Watcher
	root          string
	isDir         bool
	debounceDelay time.Duration

	mu        sync.RWMutex
	listeners []ChangeListener
}

// NewWatcher watches path, which may be a regular file or a directory.
func NewWatcher(path string, debounceDelay time.Duration) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watched path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fsWatcher.Add(absPath); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to add path to watcher: %w", err)
	}

	return &Watcher{
		watcher:       fsWatcher,
		root:          absPath,
		isDir:         info.IsDir(),
		debounceDelay: debounceDelay,
	}, nil
}

// AddListener registers a listener.
func (w *Watcher) AddListener(listener ChangeListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, listener)
}

// Start blocks until ctx is done or the underlying watcher is closed.
func (w *Watcher) Start(ctx context.Context) error {
	pending := make(chan fsnotify.Event, 1)
	go w.debounce(ctx, pending)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			select {
			case pending <- event:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.notify(ChangeEvent{Path: w.root, Timestamp: time.Now(), Error: err})
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if w.isDir {
		if filepath.Dir(eventPath) != w.root && eventPath != w.root {
			return false
		}
	} else if eventPath != w.root {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) debounce(ctx context.Context, events <-chan fsnotify.Event) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event := <-events:
			if timer != nil {
				timer.Stop()
			}
			name := event.Name
			timer = time.AfterFunc(w.debounceDelay, func() {
				w.notify(ChangeEvent{Path: name, Timestamp: time.Now()})
			})
		}
	}
}

func (w *Watcher) notify(event ChangeEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, listener := range w.listeners {
		go listener.OnFileChange(event)
	}
}
