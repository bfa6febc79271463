package activity

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"worktally/internal/platform"
)

// IdleWatcher polls the OS idle time and reports input that happened since
// the previous poll.
type IdleWatcher struct {
	provider platform.IdleProvider
	sink     Sink
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// NewIdleWatcher creates a watcher polling provider every interval.
func NewIdleWatcher(provider platform.IdleProvider, sink Sink, interval time.Duration, logger *log.Logger) *IdleWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &IdleWatcher{
		provider: provider,
		sink:     sink,
		interval: interval,
		logger:   logger.With("component", "idle"),
		now:      time.Now,
	}
}

// Run polls until ctx is done. It returns platform.ErrIdleUnsupported when
// the OS cannot report idle time.
func (watcher *IdleWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(watcher.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := watcher.poll(); err != nil {
				watcher.logger.Warn("idle detection disabled", "error", err)
				return err
			}
		}
	}
}

func (watcher *IdleWatcher) poll() error {
	idle, err := watcher.provider.IdleDuration()
	if err != nil {
		if errors.Is(err, platform.ErrIdleUnsupported) {
			return err
		}
		watcher.logger.Debug("idle query failed", "error", err)
		return nil
	}
	if idle < watcher.interval+watcher.interval/2 {
		watcher.sink.OnActivity(watcher.now().Add(-idle))
	}
	return nil
}
