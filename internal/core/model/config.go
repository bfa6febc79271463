package model

import "time"

// Default values applied to subjects that have never been persisted.
const (
	DefaultIdleThreshold = 2 * time.Minute
	DefaultAutoStart     = true
)

// SubjectState is the persisted accounting record of one tracked subject.
type SubjectState struct {
	AccumulatedSeconds  int64
	IdleThreshold       time.Duration
	AutoStartOnActivity bool
}

// DefaultSubjectState returns a zeroed record with default configuration.
func DefaultSubjectState() SubjectState {
	return SubjectState{
		IdleThreshold:       DefaultIdleThreshold,
		AutoStartOnActivity: DefaultAutoStart,
	}
}

// Normalized replaces invalid fields with defaults.
func (state SubjectState) Normalized() SubjectState {
	if state.AccumulatedSeconds < 0 {
		state.AccumulatedSeconds = 0
	}
	if state.IdleThreshold <= 0 {
		state.IdleThreshold = DefaultIdleThreshold
	}
	return state
}
