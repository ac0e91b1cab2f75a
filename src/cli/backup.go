package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/steplov/pvtools/src/backup"
	"github.com/steplov/pvtools/src/lockfile"
)

// errRunFailed signals a completed run with failed items; the report has
// already been rendered when it is returned.
var errRunFailed = errors.New("run completed with failures")

func newBackupCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up node volumes into a repository",
	}
	cmd.AddCommand(newBackupRunCmd(stdout, stderr))
	cmd.AddCommand(newBackupListArchivesCmd(stdout, stderr))
	return cmd
}

// newBackupListArchivesCmd prints the current plan: the in-scope volumes
// and the archive names one run would produce. Purely local discovery,
// nothing is snapshotted or contacted.
func newBackupListArchivesCmd(stdout, stderr io.Writer) *cobra.Command {
	var repoAlias, output string
	cmd := &cobra.Command{
		Use:   "list-archives",
		Short: "List the archives a backup run would produce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			report, err := backup.Run(cmd.Context(), cfg, backup.Deps{
				Providers: buildProviders(),
				Log:       newLogger(cmd, stderr),
			}, backup.Options{Repo: repoAlias, DryRun: true}, time.Now())
			if err != nil {
				return err
			}
			return renderReport(stdout, report, output)
		},
	}
	cmd.Flags().StringVar(&repoAlias, "repo", "", "Repository alias from the config (defaults to default_repo)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func newBackupRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var repoAlias, output string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Snapshot and stream every in-scope volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := getSafetyOptions(cmd)
			log := newLogger(cmd, stderr)

			if !opts.DryRun {
				lock, err := lockfile.Acquire(cfg.LockDir, "backup")
				if err != nil {
					return err
				}
				defer lock.Release()
			}

			report, err := backup.Run(cmd.Context(), cfg, backup.Deps{
				Providers: buildProviders(),
				OpenRepo:  repoOpener(cmd, cfg, stderr),
				Log:       log,
				Progress:  stderr,
			}, backup.Options{Repo: repoAlias, DryRun: opts.DryRun}, time.Now())
			if err != nil {
				return err
			}
			if err := renderReport(stdout, report, output); err != nil {
				return err
			}
			if !report.OK() {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repoAlias, "repo", "", "Repository alias from the config (defaults to default_repo)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

// renderReport writes a run report either as its table form or as JSON.
func renderReport(w io.Writer, report interface{ Render(io.Writer) error }, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "table", "":
		return report.Render(w)
	default:
		return fmt.Errorf("unsupported --output: %s", output)
	}
}
