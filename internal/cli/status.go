package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"worktally/internal/core/tracker"
	"worktally/internal/storage"
)

type statusRow struct {
	Name          string    `yaml:"name"`
	TotalSeconds  int64     `yaml:"total_seconds"`
	Total         string    `yaml:"total"`
	IdleThreshold string    `yaml:"idle_threshold"`
	AutoStart     bool      `yaml:"auto_start"`
	UpdatedAt     time.Time `yaml:"updated_at,omitempty"`
}

// NewStatusCmd prints the stored totals.
func NewStatusCmd(env *environment) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status [subject...]",
		Short: "Show tracked time per project",
		Long:  `Show the stored total of every project, or of the named ones. A running tracker saves at least once a minute.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := storage.NewSubjectStore(afero.NewOsFs(), env.settings.DataDir, env.settings.SubjectDefaults())
			rows, err := statusRows(store, args)
			if err != nil {
				return err
			}

			switch format {
			case "text":
				return writeStatusText(cmd.OutOrStdout(), rows)
			case "yaml":
				encoder := yaml.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent(2)
				if err := encoder.Encode(rows); err != nil {
					return fmt.Errorf("encode status: %w", err)
				}
				return encoder.Close()
			default:
				return fmt.Errorf("unknown format %q, want text or yaml", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or yaml")
	return cmd
}

func statusRows(store *storage.SubjectStore, subjects []string) ([]statusRow, error) {
	var entries []storage.Entry
	if len(subjects) == 0 {
		listed, err := store.List()
		if err != nil {
			return nil, err
		}
		entries = listed
	} else {
		for _, subject := range subjects {
			state, err := store.LoadState(subject)
			if err != nil {
				return nil, err
			}
			entries = append(entries, storage.Entry{Name: subject, State: state})
		}
	}

	rows := make([]statusRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, statusRow{
			Name:          entry.Name,
			TotalSeconds:  entry.State.AccumulatedSeconds,
			Total:         tracker.FormatDuration(entry.State.AccumulatedSeconds),
			IdleThreshold: entry.State.IdleThreshold.String(),
			AutoStart:     entry.State.AutoStartOnActivity,
			UpdatedAt:     entry.UpdatedAt,
		})
	}
	return rows, nil
}

func writeStatusText(w io.Writer, rows []statusRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No tracked projects yet.")
		return err
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row.Name))
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-*s  %s\n", width, row.Name, row.Total); err != nil {
			return err
		}
	}
	return nil
}
