package tracker_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worktally/internal/core/model"
	"worktally/internal/core/tracker"
)

type noticeRecorder struct {
	mu      sync.Mutex
	notices []tracker.FreezeNotice
}

func (recorder *noticeRecorder) NotifyFreezeDetected(notice tracker.FreezeNotice) {
	recorder.mu.Lock()
	recorder.notices = append(recorder.notices, notice)
	recorder.mu.Unlock()
}

func (recorder *noticeRecorder) all() []tracker.FreezeNotice {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([]tracker.FreezeNotice(nil), recorder.notices...)
}

type memoryStore struct {
	mu      sync.Mutex
	states  map[string]model.SubjectState
	loadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: map[string]model.SubjectState{}}
}

func (store *memoryStore) LoadState(subject string) (model.SubjectState, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.loadErr != nil {
		return model.SubjectState{}, store.loadErr
	}
	state, ok := store.states[subject]
	if !ok {
		return model.DefaultSubjectState(), nil
	}
	return state, nil
}

func (store *memoryStore) SaveState(subject string, state model.SubjectState) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.states[subject] = state
	return nil
}

func newTracker(clock *fakeClock, state model.SubjectState) *tracker.Tracker {
	return tracker.New("alpha", state, tracker.Config{
		TickInterval: time.Second,
		Clock:        clock,
	})
}

func TestStartStopCountsElapsedSeconds(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{AccumulatedSeconds: 42, IdleThreshold: 5 * time.Minute})

	keeper.Toggle()
	require.Equal(t, tracker.StatusRunning, keeper.DisplayState().Status)
	clock.Run(90)
	keeper.Toggle()

	display := keeper.DisplayState()
	assert.Equal(t, tracker.StatusStopped, display.Status)
	assert.EqualValues(t, 42+90, display.TotalSeconds)
	assert.Zero(t, clock.Pending(), "stop must cancel the scheduled tick")
}

func TestFoldIsIdempotentWithoutElapsedTime(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.DefaultSubjectState())

	keeper.Start()
	clock.Advance(5 * time.Second)
	assert.EqualValues(t, 5, keeper.DisplayState().TotalSeconds)
	assert.EqualValues(t, 5, keeper.DisplayState().TotalSeconds)
}

func TestSubSecondRemainderCarriesOver(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.DefaultSubjectState())

	keeper.Start()
	clock.Advance(1500 * time.Millisecond)
	assert.EqualValues(t, 1, keeper.DisplayState().TotalSeconds)
	clock.Advance(1500 * time.Millisecond)
	assert.EqualValues(t, 3, keeper.DisplayState().TotalSeconds)
}

func TestGapEqualToFreezeThresholdIsNotAFreeze(t *testing.T) {
	clock := newFakeClock()
	recorder := &noticeRecorder{}
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetNotifier(recorder)

	keeper.Start()
	clock.Advance(20 * time.Second)
	keeper.OnTick(clock.Now())

	display := keeper.DisplayState()
	assert.Equal(t, tracker.StatusRunning, display.Status)
	assert.EqualValues(t, 20, display.TotalSeconds)
	assert.Empty(t, recorder.all())
}

func TestGapAboveFreezeThresholdGoesIdleAndExcludes(t *testing.T) {
	clock := newFakeClock()
	recorder := &noticeRecorder{}
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetNotifier(recorder)

	keeper.Start()
	clock.Advance(20*time.Second + time.Millisecond)
	keeper.OnTick(clock.Now())

	display := keeper.DisplayState()
	assert.Equal(t, tracker.StatusIdle, display.Status)
	// 20s credited, (20001ms - 10000ms) / 1s = 10s excluded.
	assert.EqualValues(t, 10, display.TotalSeconds)

	notices := recorder.all()
	require.Len(t, notices, 1)
	assert.Equal(t, "alpha", notices[0].Subject)
	assert.Equal(t, 20*time.Second+time.Millisecond, notices[0].Gap)
	assert.EqualValues(t, 10, notices[0].ExcludedSeconds)
	assert.Zero(t, clock.Pending())
}

func TestRevertTicketCreditsExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	recorder := &noticeRecorder{}
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetNotifier(recorder)

	keeper.Start()
	clock.Run(10)
	clock.Advance(2 * time.Hour)
	clock.FireDue()

	notices := recorder.all()
	require.Len(t, notices, 1)
	ticket := notices[0].Ticket
	excluded := ticket.ExcludedSeconds()
	before := keeper.DisplayState().TotalSeconds
	require.True(t, ticket.Live())

	assert.True(t, ticket.Revert())
	assert.EqualValues(t, before+excluded, keeper.DisplayState().TotalSeconds)
	assert.False(t, ticket.Revert())
	assert.EqualValues(t, before+excluded, keeper.DisplayState().TotalSeconds)
	assert.False(t, ticket.Live())
}

func TestExpiredTicketDoesNothing(t *testing.T) {
	clock := newFakeClock()
	recorder := &noticeRecorder{}
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetNotifier(recorder)

	keeper.Start()
	clock.Advance(time.Minute)
	keeper.OnTick(clock.Now())
	notices := recorder.all()
	require.Len(t, notices, 1)

	total := keeper.DisplayState().TotalSeconds
	notices[0].Ticket.Expire()
	assert.False(t, notices[0].Ticket.Revert())
	assert.Equal(t, total, keeper.DisplayState().TotalSeconds)
}

func TestReadDetectsFreezeWithoutStopping(t *testing.T) {
	clock := newFakeClock()
	recorder := &noticeRecorder{}
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetNotifier(recorder)

	keeper.Start()
	clock.Advance(time.Minute)

	display := keeper.DisplayState()
	assert.Equal(t, tracker.StatusRunning, display.Status)
	// 60s credited, (60000ms - 10000ms) / 1s = 50s excluded.
	assert.EqualValues(t, 10, display.TotalSeconds)
	assert.Len(t, recorder.all(), 1)

	// The gap was consumed by the read, so the next tick finds nothing.
	clock.Advance(time.Second)
	keeper.OnTick(clock.Now())
	assert.Equal(t, tracker.StatusRunning, keeper.DisplayState().Status)
	assert.Len(t, recorder.all(), 1)
}

func TestNotifierMayCallBackIntoTracker(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.DefaultSubjectState())
	reverted := false
	keeper.SetNotifier(tracker.NotifierFunc(func(notice tracker.FreezeNotice) {
		reverted = notice.Ticket.Revert()
	}))

	keeper.Start()
	clock.Advance(time.Minute)
	keeper.OnTick(clock.Now())

	assert.True(t, reverted)
	assert.EqualValues(t, 60, keeper.DisplayState().TotalSeconds)
}

func TestPeekDoesNotReconcile(t *testing.T) {
	clock := newFakeClock()
	recorder := &noticeRecorder{}
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetNotifier(recorder)

	keeper.Start()
	clock.Advance(time.Minute)

	peek := keeper.Peek()
	assert.Equal(t, tracker.StatusRunning, peek.Status)
	assert.EqualValues(t, 60, peek.TotalSeconds)
	assert.Empty(t, recorder.all())
}

func TestInactivityGoesIdleAndActivityResumesFromNow(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{IdleThreshold: 5 * time.Second})

	keeper.Start()
	clock.Run(7)
	display := keeper.DisplayState()
	require.Equal(t, tracker.StatusIdle, display.Status)
	assert.EqualValues(t, 6, display.TotalSeconds)

	clock.Advance(10 * time.Second)
	assert.Zero(t, clock.FireDue(), "idle tracker must not tick")
	keeper.OnActivity(clock.Now())
	require.Equal(t, tracker.StatusRunning, keeper.DisplayState().Status)

	clock.Run(3)
	keeper.Stop()
	assert.EqualValues(t, 9, keeper.DisplayState().TotalSeconds)
}

func TestActivityKeepsTrackerRunning(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{IdleThreshold: 5 * time.Second})

	keeper.Start()
	for i := 0; i < 4; i++ {
		clock.Run(4)
		keeper.OnActivity(clock.Now())
	}
	display := keeper.DisplayState()
	assert.Equal(t, tracker.StatusRunning, display.Status)
	assert.EqualValues(t, 16, display.TotalSeconds)
}

func TestActivityDoesNotStartStoppedTracker(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.DefaultSubjectState())

	keeper.OnActivity(clock.Now())
	assert.Equal(t, tracker.StatusStopped, keeper.DisplayState().Status)
}

func TestStopFromIdleBecomesStopped(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{IdleThreshold: 2 * time.Second})

	keeper.Start()
	clock.Run(4)
	require.Equal(t, tracker.StatusIdle, keeper.DisplayState().Status)

	keeper.Stop()
	keeper.OnActivity(clock.Now())
	assert.Equal(t, tracker.StatusStopped, keeper.DisplayState().Status)
}

func TestTicksWhileStoppedAreNoOps(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{AccumulatedSeconds: 7, IdleThreshold: time.Minute})
	events := keeper.Subscribe(4)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Hour)
		keeper.OnTick(clock.Now())
	}

	display := keeper.DisplayState()
	assert.Equal(t, tracker.StatusStopped, display.Status)
	assert.EqualValues(t, 7, display.TotalSeconds)
	assert.Empty(t, events)
}

func TestDocumentChangeRespectsAutoStart(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{IdleThreshold: time.Minute, AutoStartOnActivity: false})

	keeper.OnEditableDocumentChanged(clock.Now(), true)
	assert.Equal(t, tracker.StatusStopped, keeper.DisplayState().Status)

	keeper.UpdateConfig(time.Minute, true)
	keeper.OnEditableDocumentChanged(clock.Now(), false)
	assert.Equal(t, tracker.StatusStopped, keeper.DisplayState().Status)

	keeper.OnEditableDocumentChanged(clock.Now(), true)
	assert.Equal(t, tracker.StatusRunning, keeper.DisplayState().Status)
}

func TestRestartLeavesSingleTickLoop(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.DefaultSubjectState())

	keeper.Start()
	keeper.Stop()
	keeper.Start()
	keeper.Start()
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, 1, clock.FireDue())
	assert.Equal(t, 1, clock.Pending())
}

func TestSwitchSubjectFoldsIntoOutgoingState(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()
	store.states["beta"] = model.SubjectState{AccumulatedSeconds: 7, IdleThreshold: time.Minute}
	keeper := newTracker(clock, model.SubjectState{AccumulatedSeconds: 100, IdleThreshold: time.Minute})
	keeper.SetPersistence(store)

	keeper.Start()
	clock.Run(30)
	require.NoError(t, keeper.SwitchSubject("beta"))

	assert.EqualValues(t, 130, store.states["alpha"].AccumulatedSeconds)
	display := keeper.DisplayState()
	assert.Equal(t, "beta", display.Subject)
	assert.Equal(t, tracker.StatusRunning, display.Status)
	assert.EqualValues(t, 7, display.TotalSeconds)

	clock.Run(5)
	assert.EqualValues(t, 12, keeper.DisplayState().TotalSeconds)
}

func TestSwitchSubjectUsesDefaultsWhenLoadFails(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()
	store.loadErr = errors.New("disk on fire")
	keeper := newTracker(clock, model.SubjectState{AccumulatedSeconds: 3, IdleThreshold: time.Minute})
	keeper.SetPersistence(store)

	require.NoError(t, keeper.SwitchSubject("beta"))
	assert.EqualValues(t, 3, store.states["alpha"].AccumulatedSeconds)
	subject, state := keeper.Snapshot()
	assert.Equal(t, "beta", subject)
	assert.Equal(t, model.DefaultSubjectState(), state)
}

func TestSwitchSubjectExpiresTickets(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()
	recorder := &noticeRecorder{}
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetPersistence(store)
	keeper.SetNotifier(recorder)

	keeper.Start()
	clock.Advance(time.Minute)
	keeper.OnTick(clock.Now())
	notices := recorder.all()
	require.Len(t, notices, 1)

	require.NoError(t, keeper.SwitchSubject("beta"))
	assert.False(t, notices[0].Ticket.Live())
	assert.False(t, notices[0].Ticket.Revert())
	assert.Zero(t, keeper.DisplayState().TotalSeconds)
}

func TestSwitchToCurrentSubjectKeepsLiveRecord(t *testing.T) {
	for _, name := range []string{"alpha", " ALPHA "} {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			store := newMemoryStore()
			store.states["alpha"] = model.SubjectState{AccumulatedSeconds: 100, IdleThreshold: time.Minute}
			keeper := newTracker(clock, model.SubjectState{AccumulatedSeconds: 100, IdleThreshold: time.Minute})
			keeper.SetPersistence(store)

			keeper.Start()
			clock.Run(30)
			require.NoError(t, keeper.SwitchSubject(name))

			display := keeper.DisplayState()
			assert.Equal(t, "alpha", display.Subject)
			assert.Equal(t, tracker.StatusRunning, display.Status)
			assert.EqualValues(t, 130, display.TotalSeconds)
			assert.EqualValues(t, 130, store.states["alpha"].AccumulatedSeconds)

			require.NoError(t, keeper.Persist())
			assert.EqualValues(t, 130, store.states["alpha"].AccumulatedSeconds)
		})
	}
}

func TestSwitchToCurrentSubjectKeepsTicketsLive(t *testing.T) {
	clock := newFakeClock()
	recorder := &noticeRecorder{}
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetPersistence(newMemoryStore())
	keeper.SetNotifier(recorder)

	keeper.Start()
	clock.Advance(time.Minute)
	keeper.OnTick(clock.Now())
	notices := recorder.all()
	require.Len(t, notices, 1)

	require.NoError(t, keeper.SwitchSubject("alpha"))
	assert.True(t, notices[0].Ticket.Live())
}

func TestSubjectKeyDecidesIdentity(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()
	store.states["alpha"] = model.SubjectState{AccumulatedSeconds: 1, IdleThreshold: time.Minute}
	keeper := tracker.New("alpha", model.SubjectState{AccumulatedSeconds: 40, IdleThreshold: time.Minute}, tracker.Config{
		Clock:      clock,
		SubjectKey: func(subject string) string { return "same" },
	})
	keeper.SetPersistence(store)

	require.NoError(t, keeper.SwitchSubject("beta"))
	assert.Equal(t, "alpha", keeper.Peek().Subject)
	assert.EqualValues(t, 40, keeper.Peek().TotalSeconds)
}

func TestIdleDetectionOffKeepsRunning(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{IdleThreshold: 5 * time.Second})
	keeper.SetIdleDetection(false)

	keeper.Start()
	clock.Run(30)

	display := keeper.DisplayState()
	assert.Equal(t, tracker.StatusRunning, display.Status)
	assert.EqualValues(t, 30, display.TotalSeconds)
	assert.True(t, display.IdleDetectionOff)

	keeper.SetIdleDetection(true)
	assert.False(t, keeper.Peek().IdleDetectionOff)
	clock.Run(5)
	assert.Equal(t, tracker.StatusRunning, keeper.Peek().Status)
	clock.Run(1)
	assert.Equal(t, tracker.StatusIdle, keeper.Peek().Status)
}

func TestReplaceStateReturnsFoldedOutgoing(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{AccumulatedSeconds: 1, IdleThreshold: time.Minute})

	keeper.Start()
	clock.Run(4)
	outgoing := keeper.ReplaceState(model.SubjectState{AccumulatedSeconds: 50, IdleThreshold: time.Minute})

	assert.EqualValues(t, 5, outgoing.AccumulatedSeconds)
	assert.EqualValues(t, 50, keeper.DisplayState().TotalSeconds)
}

func TestPersistWithoutStore(t *testing.T) {
	keeper := newTracker(newFakeClock(), model.DefaultSubjectState())
	assert.ErrorIs(t, keeper.Persist(), tracker.ErrNoPersistence)
	assert.ErrorIs(t, keeper.SwitchSubject("beta"), tracker.ErrNoPersistence)
}

func TestPersistSavesFoldedState(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()
	keeper := newTracker(clock, model.DefaultSubjectState())
	keeper.SetPersistence(store)

	keeper.Start()
	clock.Run(12)
	require.NoError(t, keeper.Persist())
	assert.EqualValues(t, 12, store.states["alpha"].AccumulatedSeconds)
}

func TestSubscribeReceivesStatusChanges(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.DefaultSubjectState())
	events := keeper.Subscribe(8)

	keeper.Start()
	clock.Run(1)
	keeper.Stop()

	var types []tracker.EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []tracker.EventType{
		tracker.EventStatusChange,
		tracker.EventTick,
		tracker.EventStatusChange,
	}, types)
}

func TestCloseStopsAndClosesSubscribers(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.DefaultSubjectState())
	events := keeper.Subscribe(8)

	keeper.Start()
	clock.Run(3)
	keeper.Close()
	keeper.Close()

	for range events {
	}
	keeper.Start()
	display := keeper.DisplayState()
	assert.Equal(t, tracker.StatusStopped, display.Status)
	assert.EqualValues(t, 3, display.TotalSeconds)
}

func TestConcurrentCallers(t *testing.T) {
	clock := newFakeClock()
	keeper := newTracker(clock, model.SubjectState{IdleThreshold: time.Hour})
	keeper.Start()

	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				keeper.OnActivity(clock.Now())
				keeper.DisplayState()
				keeper.Peek()
				keeper.OnTick(clock.Now())
			}
		}()
	}
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		clock.FireDue()
	}
	wg.Wait()

	keeper.Stop()
	assert.EqualValues(t, 5, keeper.DisplayState().TotalSeconds)
}
