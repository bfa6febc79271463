package tracker

import "time"

// Status represents the current accounting mode.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusIdle    Status = "idle"
)

// EventType defines the type of Tracker event.
type EventType string

const (
	EventStatusChange   EventType = "status_change"
	EventTick           EventType = "tick"
	EventFreezeDetected EventType = "freeze_detected"
	EventFreezeReverted EventType = "freeze_reverted"
	EventSubjectChanged EventType = "subject_changed"
	EventConfigChanged  EventType = "config_changed"
)

// Event represents a Tracker update for observers. Observers treat every
// event as a repaint request.
type Event struct {
	Type         EventType
	Subject      string
	Status       Status
	TotalSeconds int64
	Freeze       *FreezeNotice
	At           time.Time
}

// DisplayState is what a presentation sink renders.
type DisplayState struct {
	Subject      string
	Status       Status
	TotalSeconds int64
	// IdleDetectionOff is set when inactivity no longer stops tracking.
	IdleDetectionOff bool
}

// FreezeNotice describes a detected hibernation or freeze.
type FreezeNotice struct {
	Subject string
	// Gap is the raw wall-clock interval between two checks.
	Gap time.Duration
	// ExcludedSeconds were subtracted from the subject total.
	ExcludedSeconds int64
	Ticket          *RevertTicket
	At              time.Time
}

// Notifier receives freeze notices. Calls are made without the tracker lock
// held, so implementations may call back into the tracker.
type Notifier interface {
	NotifyFreezeDetected(notice FreezeNotice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(notice FreezeNotice)

// NotifyFreezeDetected calls fn(notice).
func (fn NotifierFunc) NotifyFreezeDetected(notice FreezeNotice) {
	fn(notice)
}
