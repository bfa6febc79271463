package cli

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"worktally/internal/ui/statusbar"
)

const tuiLogFile = "worktally.log"

// NewTUICmd runs the terminal status bar.
func NewTUICmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Track in a terminal status bar",
		Long:  `Track in a terminal status bar. Logs go to worktally.log in the data directory while the bar is shown.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logFile, err := redirectLogs(env)
			if err != nil {
				return err
			}
			defer logFile.Close()

			tracked, release, err := openSession(env)
			if err != nil {
				return err
			}
			defer release()

			keeper := tracked.Tracker()
			program := tea.NewProgram(statusbar.New(keeper, keeper.Subscribe(8)), tea.WithContext(cmd.Context()))
			keeper.SetNotifier(statusbar.Notifier(program))

			tracked.Run(cmd.Context())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("status bar: %w", err)
			}
			return nil
		},
	}
}

func redirectLogs(env *environment) (*os.File, error) {
	if err := os.MkdirAll(env.settings.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(env.settings.DataDir, tuiLogFile)
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	env.logger.SetOutput(logFile)
	return logFile, nil
}
