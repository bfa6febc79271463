package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"worktally/internal/config"
	"worktally/internal/platform"
	"worktally/internal/storage"
)

// NewResetCmd zeroes the stored total of a project.
func NewResetCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <subject>",
		Short: "Set a project's tracked time back to zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := args[0]

			guard, err := platform.AcquireSingleInstance(config.AppName, env.settings.DataDir, subject)
			if err != nil {
				if errors.Is(err, platform.ErrAlreadyRunning) {
					return fmt.Errorf("%q is being tracked right now, quit that tracker first: %w", subject, err)
				}
				return err
			}
			defer func() {
				_ = guard.Release()
			}()

			store := storage.NewSubjectStore(afero.NewOsFs(), env.settings.DataDir, env.settings.SubjectDefaults())
			state, err := store.LoadState(subject)
			if err != nil {
				return err
			}
			previous := state.AccumulatedSeconds
			state.AccumulatedSeconds = 0
			if err := store.SaveState(subject, state); err != nil {
				return err
			}

			env.logger.Info("reset", "subject", subject, "seconds", previous)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s reset to 0\n", subject)
			return err
		},
	}
}
