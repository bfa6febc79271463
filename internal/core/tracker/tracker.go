package tracker

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"worktally/internal/core/model"
)

// ErrNoPersistence is returned by operations that need a Persistence when
// none was injected.
var ErrNoPersistence = errors.New("no persistence configured")

const defaultFreezeFactor = 20

// Persistence loads and stores subject records.
type Persistence interface {
	LoadState(subject string) (model.SubjectState, error)
	SaveState(subject string, state model.SubjectState) error
}

// Config contains runtime options for Tracker.
type Config struct {
	TickInterval time.Duration
	// FreezeFactor times TickInterval is the tick gap treated as a freeze.
	FreezeFactor int
	// Defaults replace a subject record that fails to load.
	Defaults model.SubjectState
	Clock    Clock
	Logger   *log.Logger
	// SubjectKey maps a subject name to its identity. Names with the same key
	// are one subject. The default ignores case and surrounding space.
	SubjectKey func(subject string) string
}

// Tracker is the time accounting state machine for one tracked subject at
// a time. All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	options Config
	clock   Clock
	logger  *log.Logger

	subject string
	state   model.SubjectState

	status          Status
	runStartedAt    time.Time
	lastActivityAt  time.Time
	lastTickAt      time.Time
	freezeThreshold time.Duration

	ticker            Timer
	tickGeneration    uint64
	subjectGeneration uint64

	idleDetection bool

	notifier       Notifier
	persistence    Persistence
	pendingNotices []FreezeNotice
	events         []chan Event
	closed         bool
}

// New creates a stopped Tracker for subject.
func New(subject string, state model.SubjectState, options Config) *Tracker {
	if options.TickInterval <= 0 {
		options.TickInterval = time.Second
	}
	if options.FreezeFactor <= 0 {
		options.FreezeFactor = defaultFreezeFactor
	}
	if options.Defaults.IdleThreshold <= 0 {
		options.Defaults = model.DefaultSubjectState()
	}
	if options.Clock == nil {
		options.Clock = RealClock()
	}
	if options.Logger == nil {
		options.Logger = log.New(io.Discard)
	}
	if options.SubjectKey == nil {
		options.SubjectKey = defaultSubjectKey
	}

	return &Tracker{
		options:        options,
		clock:          options.Clock,
		logger:         options.Logger.With("component", "tracker"),
		subject:        subject,
		state:          state.Normalized(),
		status:         StatusStopped,
		lastActivityAt: options.Clock.Now(),
		idleDetection:  true,
	}
}

func defaultSubjectKey(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

// SetNotifier injects the freeze notification sink.
func (keeper *Tracker) SetNotifier(notifier Notifier) {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	keeper.notifier = notifier
}

// SetPersistence injects the subject store used by SwitchSubject and Persist.
func (keeper *Tracker) SetPersistence(persistence Persistence) {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	keeper.persistence = persistence
}

// SetIdleDetection turns inactivity auto-stop on or off. Without an input
// source every run would go idle after the threshold, so hosts that cannot
// observe input switch it off.
func (keeper *Tracker) SetIdleDetection(enabled bool) {
	keeper.mu.Lock()
	if keeper.idleDetection == enabled {
		keeper.mu.Unlock()
		return
	}
	now := keeper.clock.Now()
	keeper.idleDetection = enabled
	keeper.touchLocked(now)
	keeper.logger.Info("inactivity detection changed", "enabled", enabled)
	keeper.emitLocked(EventConfigChanged, now, nil)
	keeper.unlock()
}

// Subscribe registers a new observer channel. Slow observers miss events
// rather than block the tracker.
func (keeper *Tracker) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	keeper.mu.Lock()
	if keeper.closed {
		close(ch)
	} else {
		keeper.events = append(keeper.events, ch)
	}
	keeper.mu.Unlock()
	return ch
}

// Start begins a run segment. A user start counts as activity.
func (keeper *Tracker) Start() {
	keeper.mu.Lock()
	now := keeper.clock.Now()
	keeper.touchLocked(now)
	keeper.startLocked(now)
	keeper.unlock()
}

// Stop folds the running segment and stops. An idle tracker becomes stopped,
// so that activity no longer resumes it.
func (keeper *Tracker) Stop() {
	keeper.mu.Lock()
	now := keeper.clock.Now()
	if keeper.status == StatusIdle {
		keeper.status = StatusStopped
		keeper.emitLocked(EventStatusChange, now, nil)
	} else {
		keeper.stopLocked(now, StatusStopped)
	}
	keeper.unlock()
}

// Toggle flips between running and not running.
func (keeper *Tracker) Toggle() {
	keeper.mu.Lock()
	now := keeper.clock.Now()
	if keeper.status == StatusRunning {
		keeper.stopLocked(now, StatusStopped)
	} else {
		keeper.touchLocked(now)
		keeper.startLocked(now)
	}
	keeper.unlock()
}

// OnActivity records user input at now and resumes an idle tracker.
func (keeper *Tracker) OnActivity(now time.Time) {
	keeper.mu.Lock()
	keeper.touchLocked(now)
	if keeper.status == StatusIdle {
		keeper.startLocked(now)
	}
	keeper.unlock()
}

// OnEditableDocumentChanged reports an edit to a project document. Edits to
// the focused document count as activity and, when the subject allows it,
// start tracking from stopped.
func (keeper *Tracker) OnEditableDocumentChanged(now time.Time, focused bool) {
	if !focused {
		return
	}
	keeper.mu.Lock()
	keeper.touchLocked(now)
	switch keeper.status {
	case StatusIdle:
		keeper.startLocked(now)
	case StatusStopped:
		if keeper.state.AutoStartOnActivity {
			keeper.startLocked(now)
		}
	}
	keeper.unlock()
}

// OnTick runs the periodic check: freeze detection, then idle detection.
// It is a no-op unless running.
func (keeper *Tracker) OnTick(now time.Time) {
	keeper.mu.Lock()
	keeper.tickLocked(now)
	keeper.unlock()
}

// DisplayState reconciles pending time and returns what should be rendered.
// A detected freeze is excluded and notified, but never stops tracking here.
func (keeper *Tracker) DisplayState() DisplayState {
	keeper.mu.Lock()
	now := keeper.clock.Now()
	keeper.reconcileLocked(now)
	keeper.foldLocked(now)
	display := DisplayState{
		Subject:          keeper.subject,
		Status:           keeper.status,
		TotalSeconds:     keeper.state.AccumulatedSeconds,
		IdleDetectionOff: !keeper.idleDetection,
	}
	keeper.unlock()
	return display
}

// Peek returns the current status and total without mutating anything. It
// performs no freeze detection.
func (keeper *Tracker) Peek() DisplayState {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	return DisplayState{
		Subject:          keeper.subject,
		Status:           keeper.status,
		TotalSeconds:     keeper.state.AccumulatedSeconds + keeper.runningSecondsLocked(keeper.clock.Now()),
		IdleDetectionOff: !keeper.idleDetection,
	}
}

// Snapshot reconciles pending time and returns the subject record.
func (keeper *Tracker) Snapshot() (string, model.SubjectState) {
	keeper.mu.Lock()
	subject, state := keeper.foldCurrentLocked()
	keeper.unlock()
	return subject, state
}

// Persist saves the current subject record.
func (keeper *Tracker) Persist() error {
	keeper.mu.Lock()
	persistence := keeper.persistence
	keeper.mu.Unlock()
	if persistence == nil {
		return ErrNoPersistence
	}

	subject, state := keeper.Snapshot()
	if err := persistence.SaveState(subject, state); err != nil {
		return fmt.Errorf("persist %q: %w", subject, err)
	}
	return nil
}

// UpdateConfig changes the live subject's idle threshold and auto-start flag.
func (keeper *Tracker) UpdateConfig(idleThreshold time.Duration, autoStart bool) {
	keeper.mu.Lock()
	if idleThreshold > 0 {
		keeper.state.IdleThreshold = idleThreshold
	}
	keeper.state.AutoStartOnActivity = autoStart
	keeper.emitLocked(EventConfigChanged, keeper.clock.Now(), nil)
	keeper.unlock()
}

// ReplaceState swaps in a new record for the current subject and returns the
// outgoing one with its running segment folded in.
func (keeper *Tracker) ReplaceState(state model.SubjectState) model.SubjectState {
	keeper.mu.Lock()
	outgoing := keeper.swapLocked(keeper.subject, state)
	keeper.unlock()
	return outgoing
}

// SwitchSubject folds the running segment into the current subject, saves
// it, and continues with the stored record of subject. A subject that fails
// to load starts from defaults. Switching to the current subject keeps the
// live record and only saves it.
func (keeper *Tracker) SwitchSubject(subject string) error {
	keeper.mu.Lock()
	persistence := keeper.persistence
	keeper.mu.Unlock()
	if persistence == nil {
		return ErrNoPersistence
	}

	var incoming model.SubjectState
	loaded := false
	for {
		keeper.mu.Lock()
		if keeper.isCurrentLocked(subject) {
			current, state := keeper.foldCurrentLocked()
			keeper.unlock()
			if err := persistence.SaveState(current, state); err != nil {
				return fmt.Errorf("save subject %q: %w", current, err)
			}
			return nil
		}
		if loaded {
			outgoingSubject := keeper.subject
			outgoing := keeper.swapLocked(subject, incoming)
			keeper.unlock()

			if err := persistence.SaveState(outgoingSubject, outgoing); err != nil {
				return fmt.Errorf("save outgoing subject %q: %w", outgoingSubject, err)
			}
			return nil
		}
		keeper.mu.Unlock()

		// The stored record is read outside the lock; the current subject is
		// checked again before swapping.
		state, err := persistence.LoadState(subject)
		if err != nil {
			keeper.logger.Warn("load subject failed, using defaults", "subject", subject, "error", err)
			state = keeper.options.Defaults
		}
		incoming = state
		loaded = true
	}
}

// Close stops tracking and closes observer channels.
func (keeper *Tracker) Close() {
	keeper.mu.Lock()
	if keeper.closed {
		keeper.mu.Unlock()
		return
	}
	keeper.stopLocked(keeper.clock.Now(), StatusStopped)
	keeper.closed = true
	events := keeper.events
	keeper.events = nil
	keeper.unlock()

	for _, ch := range events {
		close(ch)
	}
}

func (keeper *Tracker) revert(ticket *RevertTicket) bool {
	keeper.mu.Lock()
	if ticket.consumed {
		keeper.mu.Unlock()
		return false
	}
	ticket.consumed = true
	if ticket.generation != keeper.subjectGeneration {
		keeper.mu.Unlock()
		return false
	}
	keeper.state.AccumulatedSeconds += ticket.excluded
	keeper.logger.Info("freeze exclusion reverted", "subject", keeper.subject, "seconds", ticket.excluded)
	keeper.emitLocked(EventFreezeReverted, keeper.clock.Now(), nil)
	keeper.unlock()
	return true
}

func (keeper *Tracker) startLocked(now time.Time) {
	if keeper.closed || keeper.status == StatusRunning {
		return
	}
	keeper.foldLocked(now)
	keeper.status = StatusRunning
	keeper.runStartedAt = now
	keeper.lastTickAt = now
	keeper.freezeThreshold = keeper.options.TickInterval * time.Duration(keeper.options.FreezeFactor)
	keeper.armLocked()
	keeper.logger.Debug("tracking started", "subject", keeper.subject)
	keeper.emitLocked(EventStatusChange, now, nil)
}

func (keeper *Tracker) stopLocked(now time.Time, next Status) {
	if keeper.status != StatusRunning {
		return
	}
	keeper.reconcileLocked(now)
	keeper.foldLocked(now)
	keeper.status = next
	keeper.runStartedAt = time.Time{}
	keeper.cancelTickLocked()
	keeper.logger.Debug("tracking stopped", "subject", keeper.subject, "status", next,
		"total", keeper.state.AccumulatedSeconds)
	keeper.emitLocked(EventStatusChange, now, nil)
}

func (keeper *Tracker) tickLocked(now time.Time) {
	if keeper.status != StatusRunning {
		return
	}
	if keeper.reconcileLocked(now) {
		keeper.stopLocked(now, StatusIdle)
		return
	}
	keeper.lastTickAt = now
	if keeper.idleDetection && now.Sub(keeper.lastActivityAt) > keeper.state.IdleThreshold {
		keeper.logger.Debug("inactivity threshold passed", "subject", keeper.subject,
			"threshold", keeper.state.IdleThreshold)
		keeper.stopLocked(now, StatusIdle)
		return
	}
	keeper.emitLocked(EventTick, now, nil)
}

// reconcileLocked excludes an unexplained tick gap from the total. It
// reports whether a freeze was found and never changes status.
func (keeper *Tracker) reconcileLocked(now time.Time) bool {
	if keeper.status != StatusRunning {
		return false
	}
	gap := now.Sub(keeper.lastTickAt)
	if gap < 0 {
		gap = 0
	}
	if gap <= keeper.freezeThreshold {
		return false
	}

	keeper.lastTickAt = now
	excluded := int64((gap - keeper.freezeThreshold/2) / time.Second)
	keeper.foldLocked(now)
	if excluded > keeper.state.AccumulatedSeconds {
		excluded = keeper.state.AccumulatedSeconds
	}
	keeper.state.AccumulatedSeconds -= excluded

	notice := FreezeNotice{
		Subject:         keeper.subject,
		Gap:             gap,
		ExcludedSeconds: excluded,
		Ticket: &RevertTicket{
			keeper:     keeper,
			generation: keeper.subjectGeneration,
			excluded:   excluded,
		},
		At: now,
	}
	keeper.pendingNotices = append(keeper.pendingNotices, notice)
	keeper.logger.Warn("freeze detected", "subject", keeper.subject, "gap", gap, "excluded", excluded)
	keeper.emitLocked(EventFreezeDetected, now, &notice)
	return true
}

func (keeper *Tracker) foldLocked(now time.Time) {
	seconds := keeper.runningSecondsLocked(now)
	if seconds > 0 {
		keeper.state.AccumulatedSeconds += seconds
		keeper.runStartedAt = keeper.runStartedAt.Add(time.Duration(seconds) * time.Second)
	}
}

func (keeper *Tracker) runningSecondsLocked(now time.Time) int64 {
	if keeper.status != StatusRunning {
		return 0
	}
	elapsed := now.Sub(keeper.runStartedAt)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / time.Second)
}

func (keeper *Tracker) touchLocked(now time.Time) {
	if now.After(keeper.lastActivityAt) {
		keeper.lastActivityAt = now
	}
}

func (keeper *Tracker) isCurrentLocked(subject string) bool {
	return keeper.options.SubjectKey(subject) == keeper.options.SubjectKey(keeper.subject)
}

func (keeper *Tracker) foldCurrentLocked() (string, model.SubjectState) {
	now := keeper.clock.Now()
	keeper.reconcileLocked(now)
	keeper.foldLocked(now)
	return keeper.subject, keeper.state
}

func (keeper *Tracker) swapLocked(subject string, incoming model.SubjectState) model.SubjectState {
	now := keeper.clock.Now()
	keeper.reconcileLocked(now)
	keeper.foldLocked(now)
	outgoing := keeper.state
	keeper.subject = subject
	keeper.state = incoming.Normalized()
	keeper.subjectGeneration++
	keeper.logger.Info("subject loaded", "subject", subject, "total", keeper.state.AccumulatedSeconds)
	keeper.emitLocked(EventSubjectChanged, now, nil)
	return outgoing
}

// armLocked replaces any scheduled tick with a fresh one. Callbacks from
// earlier generations are ignored when they fire.
func (keeper *Tracker) armLocked() {
	keeper.cancelTickLocked()
	generation := keeper.tickGeneration
	keeper.ticker = keeper.clock.AfterFunc(keeper.options.TickInterval, func() {
		keeper.scheduledTick(generation)
	})
}

func (keeper *Tracker) cancelTickLocked() {
	if keeper.ticker != nil {
		keeper.ticker.Stop()
		keeper.ticker = nil
	}
	keeper.tickGeneration++
}

func (keeper *Tracker) scheduledTick(generation uint64) {
	keeper.mu.Lock()
	if generation != keeper.tickGeneration || keeper.status != StatusRunning {
		keeper.mu.Unlock()
		return
	}
	keeper.tickLocked(keeper.clock.Now())
	if keeper.status == StatusRunning {
		keeper.armLocked()
	}
	keeper.unlock()
}

// unlock releases the lock and then delivers queued freeze notices, so the
// notifier may call back into the tracker.
func (keeper *Tracker) unlock() {
	notices := keeper.pendingNotices
	keeper.pendingNotices = nil
	notifier := keeper.notifier
	keeper.mu.Unlock()

	if notifier == nil {
		return
	}
	for _, notice := range notices {
		notifier.NotifyFreezeDetected(notice)
	}
}

func (keeper *Tracker) emitLocked(eventType EventType, now time.Time, notice *FreezeNotice) {
	event := Event{
		Type:         eventType,
		Subject:      keeper.subject,
		Status:       keeper.status,
		TotalSeconds: keeper.state.AccumulatedSeconds + keeper.runningSecondsLocked(now),
		Freeze:       notice,
		At:           now,
	}
	for _, ch := range keeper.events {
		select {
		case ch <- event:
		default:
		}
	}
}
