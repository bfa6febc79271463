package activity

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

var ignoredDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".idea":        true,
	".vscode":      true,
	"node_modules": true,
	"vendor":       true,
}

// DocumentWatcher reports edits to files under a project directory.
type DocumentWatcher struct {
	root    string
	sink    Sink
	logger  *log.Logger
	watcher *fsnotify.Watcher
	limiter *rate.Limiter
	now     func() time.Time
}

// NewDocumentWatcher watches root and all of its non-ignored directories.
func NewDocumentWatcher(root string, sink Sink, logger *log.Logger) (*DocumentWatcher, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	documents := &DocumentWatcher{
		root:    root,
		sink:    sink,
		logger:  logger.With("component", "documents"),
		watcher: watcher,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		now:     time.Now,
	}
	if err := documents.addTree(root); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return documents, nil
}

// Run delivers events until ctx is done, then closes the watcher.
func (documents *DocumentWatcher) Run(ctx context.Context) error {
	defer documents.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-documents.watcher.Events:
			if !ok {
				return nil
			}
			documents.handle(event)
		case err, ok := <-documents.watcher.Errors:
			if !ok {
				return nil
			}
			documents.logger.Warn("watch error", "error", err)
		}
	}
}

func (documents *DocumentWatcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && !ignoredDir(info.Name()) {
			if err := documents.addTree(event.Name); err != nil {
				documents.logger.Debug("watch new directory failed", "path", event.Name, "error", err)
			}
		}
		return
	}

	focused := !strings.HasPrefix(filepath.Base(event.Name), ".")
	if focused && !documents.limiter.Allow() {
		return
	}
	documents.sink.OnEditableDocumentChanged(documents.now(), focused)
}

func (documents *DocumentWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("walk %s: %w", root, err)
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && ignoredDir(entry.Name()) {
			return filepath.SkipDir
		}
		if err := documents.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func ignoredDir(name string) bool {
	return ignoredDirs[name] || (strings.HasPrefix(name, ".") && len(name) > 1)
}

// Close releases the watcher. It is safe to call after Run returned.
func (documents *DocumentWatcher) Close() error {
	return documents.watcher.Close()
}
