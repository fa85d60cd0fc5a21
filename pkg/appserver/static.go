package appserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/ideamans/cmsgate/pkg/shared/filewatcher"
	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

const indexFile = "index.html"

// Static serves a built single-page app from a directory. Paths without a
// file extension that do not exist fall back to index.html so client-side
// routes work on reload.
type Static struct {
	root   string
	policy *CachePolicy
	logger logging.Logger

	mu    sync.RWMutex
	index *cachedFile
}

type cachedFile struct {
	content []byte
	modTime time.Time
}

// NewStatic serves files under dir.
func NewStatic(dir string, policy *CachePolicy, logger logging.Logger) (*Static, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("appserver: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("appserver: bundle directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("appserver: bundle directory %s is not a directory", root)
	}
	return &Static{root: root, policy: policy, logger: logger}, nil
}

// Root returns the absolute bundle directory.
func (s *Static) Root() string { return s.root }

// ServeHTTP serves the file for r.URL.Path.
func (s *Static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		httperr.Write(w, http.StatusMethodNotAllowed)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if clean == "/" || clean == "/"+indexFile {
		s.serveIndex(w, r)
		return
	}

	name := filepath.Join(s.root, filepath.FromSlash(clean))
	f, err := os.Open(name)
	if err == nil {
		defer f.Close()
		info, statErr := f.Stat()
		if statErr == nil && !info.IsDir() {
			w.Header().Set("Cache-Control", s.policy.CacheControl(clean))
			http.ServeContent(w, r, info.Name(), info.ModTime(), f)
			return
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to open bundle file", "path", clean, "error", err)
		httperr.Write(w, http.StatusInternalServerError)
		return
	}

	// Directories and extension-less routes belong to the SPA router.
	if path.Ext(clean) == "" {
		s.serveIndex(w, r)
		return
	}
	httperr.WriteError(w, httperr.ErrRouteNotFound)
}

func (s *Static) serveIndex(w http.ResponseWriter, r *http.Request) {
	index, err := s.loadIndex()
	if err != nil {
		s.logger.Error("index.html unavailable", "root", s.root, "error", err)
		httperr.WriteError(w, httperr.ErrRouteNotFound)
		return
	}
	w.Header().Set("Cache-Control", revalidateCacheControl)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, indexFile, index.modTime, bytes.NewReader(index.content))
}

func (s *Static) loadIndex() (*cachedFile, error) {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()
	if index != nil {
		return index, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}

	name := filepath.Join(s.root, indexFile)
	info, err := os.Stat(name)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	s.index = &cachedFile{content: content, modTime: info.ModTime()}
	return s.index, nil
}

// Invalidate drops the cached index.html; the next request rereads it.
func (s *Static) Invalidate() {
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()
}

// Watch invalidates the index cache whenever the bundle directory changes,
// until ctx is done. It blocks.
func (s *Static) Watch(ctx context.Context) error {
	w, err := filewatcher.NewWatcher(s.root, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("appserver: watch %s: %w", s.root, err)
	}
	defer w.Close()

	w.AddListener(filewatcher.ListenerFunc(func(event filewatcher.ChangeEvent) {
		if event.Error != nil {
			s.logger.Warn("Bundle watcher error", "error", event.Error)
			return
		}
		s.logger.Debug("Bundle changed, dropping cached index.html", "path", event.Path)
		s.Invalidate()
	}))

	s.logger.Info("Watching bundle directory", "dir", s.root)
	err = w.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
