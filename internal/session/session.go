// Package session wires settings, the subject store, the tracker and its
// activity sources into one lifecycle shared by the tray and the TUI.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"worktally/internal/activity"
	"worktally/internal/config"
	"worktally/internal/core/tracker"
	"worktally/internal/platform"
	"worktally/internal/storage"
)

const defaultPersistInterval = time.Minute

// Options configures New. Zero fields fall back to the OS implementations.
type Options struct {
	Settings        config.Settings
	Logger          *log.Logger
	Fs              afero.Fs
	IdleProvider    platform.IdleProvider
	Clock           tracker.Clock
	PersistInterval time.Duration
	// DisableDocumentWatch skips the project file watcher.
	DisableDocumentWatch bool
}

// Session owns the tracker and the goroutines feeding and saving it.
type Session struct {
	settings config.Settings
	logger   *log.Logger
	store    *storage.SubjectStore
	tracker  *tracker.Tracker

	idle            *activity.IdleWatcher
	documents       *activity.DocumentWatcher
	persistInterval time.Duration

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu      sync.Mutex
	idleErr error
}

// New loads the configured subject and builds its tracker.
func New(options Options) (*Session, error) {
	settings := options.Settings
	settings.Validate()

	logger := options.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	fs := options.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	idleProvider := options.IdleProvider
	if idleProvider == nil {
		idleProvider = platform.NewIdleProvider()
	}
	persistInterval := options.PersistInterval
	if persistInterval <= 0 {
		persistInterval = defaultPersistInterval
	}

	store := storage.NewSubjectStore(fs, settings.DataDir, settings.SubjectDefaults())
	subject, err := store.CanonicalName(settings.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidSubject) {
			return nil, fmt.Errorf("subject %q: %w", settings.Subject, err)
		}
		logger.Warn("read subject name failed", "subject", settings.Subject, "error", err)
		subject = settings.Subject
	}
	settings.Subject = subject

	state, err := store.LoadState(settings.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidSubject) {
			return nil, fmt.Errorf("subject %q: %w", settings.Subject, err)
		}
		logger.Warn("load subject failed, using defaults", "subject", settings.Subject, "error", err)
		state = settings.SubjectDefaults()
	}

	trackerConfig := settings.TrackerConfig()
	trackerConfig.Logger = logger
	trackerConfig.Clock = options.Clock
	trackerConfig.SubjectKey = subjectKey
	keeper := tracker.New(settings.Subject, state, trackerConfig)
	keeper.SetPersistence(store)

	session := &Session{
		settings:        settings,
		logger:          logger.With("component", "app"),
		store:           store,
		tracker:         keeper,
		idle:            activity.NewIdleWatcher(idleProvider, keeper, settings.IdlePollInterval, logger),
		persistInterval: persistInterval,
	}
	if _, err := idleProvider.IdleDuration(); errors.Is(err, platform.ErrIdleUnsupported) {
		session.disableIdleDetection(err)
	}

	if !options.DisableDocumentWatch {
		documents, err := activity.NewDocumentWatcher(settings.WatchDir, keeper, logger)
		if err != nil {
			session.logger.Warn("document watch disabled", "dir", settings.WatchDir, "error", err)
		} else {
			session.documents = documents
		}
	}

	return session, nil
}

// Tracker returns the live tracker.
func (session *Session) Tracker() *tracker.Tracker {
	return session.tracker
}

// Store returns the subject store.
func (session *Session) Store() *storage.SubjectStore {
	return session.store
}

// Settings returns the validated settings.
func (session *Session) Settings() config.Settings {
	return session.settings
}

// Run starts the activity sources and the periodic save. It returns
// immediately; Close stops everything.
func (session *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	session.cancel = cancel

	events := session.tracker.Subscribe(16)

	if session.IdleDetectionErr() == nil {
		session.goRun(func() {
			if err := session.idle.Run(ctx); err != nil {
				session.disableIdleDetection(err)
			}
		})
	}
	if session.documents != nil {
		session.goRun(func() {
			if err := session.documents.Run(ctx); err != nil {
				session.logger.Warn("document watcher stopped", "error", err)
			}
		})
	}
	session.goRun(func() {
		session.persistLoop(ctx, events)
	})

	session.logger.Info("tracking", "subject", session.settings.Subject, "dir", session.settings.WatchDir)
}

// IdleDetectionErr reports why inactivity no longer stops tracking, or nil
// while idle detection works.
func (session *Session) IdleDetectionErr() error {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.idleErr
}

// disableIdleDetection keeps the tracker running through inactivity once the
// OS stops reporting idle time. Tracking then ends only on Stop or Close.
func (session *Session) disableIdleDetection(err error) {
	session.mu.Lock()
	if session.idleErr != nil {
		session.mu.Unlock()
		return
	}
	session.idleErr = err
	session.mu.Unlock()

	session.logger.Warn("idle detection unavailable, inactivity will not stop tracking", "error", err)
	session.tracker.SetIdleDetection(false)
}

// Subjects lists stored subject names, always including the current one.
func (session *Session) Subjects() []string {
	current := session.tracker.Peek().Subject
	entries, err := session.store.List()
	if err != nil {
		session.logger.Warn("list subjects failed", "error", err)
	}

	seen := map[string]bool{current: true}
	names := []string{current}
	for _, entry := range entries {
		if seen[entry.Name] {
			continue
		}
		seen[entry.Name] = true
		names = append(names, entry.Name)
	}
	sort.Strings(names)
	return names
}

// SwitchSubject saves the current subject and continues with subject.
// Names sharing a slug are the same subject under its first stored name.
func (session *Session) SwitchSubject(subject string) error {
	canonical, err := session.store.CanonicalName(subject)
	if err != nil {
		return fmt.Errorf("switch to %q: %w", subject, err)
	}
	subject = canonical
	if err := session.tracker.SwitchSubject(subject); err != nil {
		return fmt.Errorf("switch to %q: %w", subject, err)
	}
	session.logger.Info("switched subject", "subject", subject)
	return nil
}

// ApplySubjectConfig updates the live subject's settings and saves it.
func (session *Session) ApplySubjectConfig(idleThreshold time.Duration, autoStart bool) error {
	session.tracker.UpdateConfig(idleThreshold, autoStart)
	return session.tracker.Persist()
}

// Close stops the background goroutines, stops tracking and saves.
func (session *Session) Close() error {
	var err error
	session.closeOnce.Do(func() {
		if session.cancel != nil {
			session.cancel()
		}
		session.wg.Wait()
		if session.documents != nil {
			_ = session.documents.Close()
		}
		session.tracker.Close()
		if persistErr := session.tracker.Persist(); persistErr != nil {
			err = persistErr
		}
	})
	return err
}

func subjectKey(subject string) string {
	slug, err := storage.Slug(subject)
	if err != nil {
		return subject
	}
	return slug
}

func (session *Session) goRun(fn func()) {
	session.wg.Add(1)
	go func() {
		defer session.wg.Done()
		fn()
	}()
}

// persistLoop saves after status and config changes and every interval
// while running.
func (session *Session) persistLoop(ctx context.Context, events <-chan tracker.Event) {
	ticker := time.NewTicker(session.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Type {
			case tracker.EventStatusChange, tracker.EventConfigChanged, tracker.EventFreezeReverted:
				session.persist()
			}
		case <-ticker.C:
			if session.tracker.Peek().Status == tracker.StatusRunning {
				session.persist()
			}
		}
	}
}

func (session *Session) persist() {
	if err := session.tracker.Persist(); err != nil {
		session.logger.Error("save subject failed", "error", err)
	}
}
