package cli

import (
	"errors"
	"fmt"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/cobra"

	"worktally/internal/config"
	"worktally/internal/core/tracker"
	"worktally/internal/platform"
	"worktally/internal/ui/preferences"
	"worktally/internal/ui/tray"
	"worktally/resources"
)

var errTrayUnsupported = errors.New("system tray unsupported on this platform")

// NewTrayCmd runs the system tray widget.
func NewTrayCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Track in the system tray (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd, env)
		},
	}
}

func runTray(cmd *cobra.Command, env *environment) error {
	fyneApp := app.NewWithID("com.worktally.app")
	fyneApp.SetIcon(resources.Logo())
	desktopApp, ok := fyneApp.(desktop.App)
	if !ok {
		return errTrayUnsupported
	}

	tracked, release, err := openSession(env)
	if err != nil {
		return err
	}
	defer release()

	keeper := tracked.Tracker()
	autostart := platform.NewService()

	trayWindow := fyneApp.NewWindow(config.AppName)
	trayWindow.SetContent(widget.NewLabel("WorkTally is running in the system tray."))
	trayWindow.SetCloseIntercept(func() {
		trayWindow.Hide()
	})
	trayWindow.Hide()
	desktopApp.SetSystemTrayWindow(trayWindow)

	launchAtLogin := env.settings.LaunchAtLogin
	if enabled, err := autostart.AutostartEnabled(config.AppName); err == nil {
		launchAtLogin = enabled
	}
	_, state := keeper.Snapshot()
	prefsWindow := preferences.New(fyneApp, preferences.FromSubject(state, launchAtLogin), func(updated preferences.Settings) {
		if err := tracked.ApplySubjectConfig(updated.IdleThreshold, updated.AutoStart); err != nil {
			env.logger.Error("save preferences failed", "error", err)
		}
		if err := applyLaunchAtLogin(env, autostart, updated.LaunchAtLogin); err != nil {
			env.logger.Error("update launch at login failed", "error", err)
		}
	})

	var trayManager *tray.Manager
	trayManager = tray.New(fyneApp, desktopApp, tray.Callbacks{
		OnToggle: keeper.Toggle,
		OnSwitch: func(subject string) {
			if err := tracked.SwitchSubject(subject); err != nil {
				env.logger.Error("switch subject failed", "subject", subject, "error", err)
			}
		},
		OnPreferences: func() {
			subject, state := keeper.Snapshot()
			prefsWindow.SetSubject(subject)
			prefsWindow.UpdateSettings(preferences.FromSubject(state, launchAtLoginSetting(env, autostart)))
			prefsWindow.Show()
		},
		OnQuit: func() {
			fyneApp.Quit()
		},
	})
	keeper.SetNotifier(trayManager)

	events := keeper.Subscribe(8)
	go func() {
		for event := range events {
			display := keeper.Peek()
			var subjects []string
			if event.Type == tracker.EventSubjectChanged {
				subjects = tracked.Subjects()
			}
			fyne.Do(func() {
				trayManager.SetDisplay(display)
				if subjects != nil {
					trayManager.SetSubjects(subjects)
				}
			})
		}
	}()

	trayManager.SetDisplay(keeper.DisplayState())
	trayManager.SetSubjects(tracked.Subjects())

	tracked.Run(cmd.Context())
	fyneApp.Run()
	return nil
}

func launchAtLoginSetting(env *environment, autostart platform.Service) bool {
	if enabled, err := autostart.AutostartEnabled(config.AppName); err == nil {
		return enabled
	}
	return env.viper.GetBool(config.KeyLaunchAtLogin)
}

func applyLaunchAtLogin(env *environment, autostart platform.Service, enabled bool) error {
	if enabled {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		entry := platform.LaunchEntry{
			AppName:  config.AppName,
			ExecPath: execPath,
			Args:     launchArgs(env.settings),
		}
		if err := autostart.EnableAutostart(entry); err != nil {
			return err
		}
	} else if err := autostart.DisableAutostart(config.AppName); err != nil {
		return err
	}
	return config.SaveLaunchAtLogin(env.viper, enabled)
}

func launchArgs(settings config.Settings) []string {
	return []string{
		"tray",
		"--subject", settings.Subject,
		"--watch-dir", settings.WatchDir,
		"--data-dir", settings.DataDir,
	}
}
