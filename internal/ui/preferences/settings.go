package preferences

import (
	"time"

	"worktally/internal/core/model"
)

// Settings defines editable user preferences.
type Settings struct {
	IdleThreshold time.Duration
	AutoStart     bool
	LaunchAtLogin bool
}

// DefaultSettings returns default settings for WorkTally.
func DefaultSettings() Settings {
	return Settings{
		IdleThreshold: model.DefaultIdleThreshold,
		AutoStart:     model.DefaultAutoStart,
		LaunchAtLogin: false,
	}
}

// FromSubject reads the per-subject preferences out of state.
func FromSubject(state model.SubjectState, launchAtLogin bool) Settings {
	state = state.Normalized()
	return Settings{
		IdleThreshold: state.IdleThreshold,
		AutoStart:     state.AutoStartOnActivity,
		LaunchAtLogin: launchAtLogin,
	}
}

// Apply writes the per-subject preferences into state, keeping its total.
func (settings Settings) Apply(state model.SubjectState) model.SubjectState {
	state.IdleThreshold = settings.IdleThreshold
	state.AutoStartOnActivity = settings.AutoStart
	return state.Normalized()
}
