package cli

import (
	"fmt"

	"worktally/internal/config"
	"worktally/internal/platform"
	"worktally/internal/session"
)

// openSession takes the single instance lock for the configured subject and
// builds its session. release undoes both.
func openSession(env *environment) (*session.Session, func(), error) {
	settings := env.settings
	guard, err := platform.AcquireSingleInstance(config.AppName, settings.DataDir, settings.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("track %q: %w", settings.Subject, err)
	}

	tracked, err := session.New(session.Options{
		Settings: settings,
		Logger:   env.logger,
	})
	if err != nil {
		_ = guard.Release()
		return nil, nil, err
	}

	release := func() {
		if err := tracked.Close(); err != nil {
			env.logger.Error("save on exit failed", "error", err)
		}
		_ = guard.Release()
	}
	return tracked, release, nil
}
