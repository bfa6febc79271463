// Package cli defines the worktally command tree.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"worktally/internal/config"
)

// environment is shared by every command and filled in before it runs.
type environment struct {
	configFile string
	viper      *viper.Viper
	settings   config.Settings
	logger     *log.Logger
}

// NewRootCmd builds the command tree. Without a subcommand it runs the tray.
func NewRootCmd() *cobra.Command {
	env := &environment{}

	cmd := &cobra.Command{
		Use:           "worktally",
		Short:         "Track active work time per project",
		Long:          `WorkTally counts the time you actively work on a project. It stops when you go idle and leaves out time the machine spent asleep.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd, env)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&env.configFile, "config", "", "Config file (default is <user config dir>/WorkTally/config.yaml)")
	flags.String("subject", "", "Project to track (default is the working directory name)")
	flags.String("watch-dir", "", "Directory whose file edits count as activity (default is the working directory)")
	flags.String("data-dir", "", "Directory holding subject records")
	flags.String("log-level", "", "Log level: debug, info, warn or error")

	cmd.AddCommand(NewTrayCmd(env))
	cmd.AddCommand(NewTUICmd(env))
	cmd.AddCommand(NewStatusCmd(env))
	cmd.AddCommand(NewResetCmd(env))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the command tree and reports a failure on stderr.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "worktally"})
		logger.Error(err)
		return 1
	}
	return 0
}

var flagKeys = map[string]string{
	"subject":   config.KeySubject,
	"watch-dir": config.KeyWatchDir,
	"data-dir":  config.KeyDataDir,
	"log-level": config.KeyLogLevel,
}

func (env *environment) load(cmd *cobra.Command) error {
	v, err := config.NewViper(env.configFile)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}

	settings := config.Load(v)
	logger, err := newLogger(cmd.ErrOrStderr(), settings.LogLevel)
	if err != nil {
		return err
	}

	env.viper = v
	env.settings = settings
	env.logger = logger
	return nil
}

func newLogger(w io.Writer, level string) (*log.Logger, error) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "worktally",
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           parsed,
	})
	return logger, nil
}
