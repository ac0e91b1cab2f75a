package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steplov/pvtools/src/lockfile"
	"github.com/steplov/pvtools/src/restore"
	"github.com/steplov/pvtools/src/safety"
)

func newRestoreCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore archives from a repository into node volumes",
	}
	cmd.AddCommand(newRestoreRunCmd(stdout, stderr))
	cmd.AddCommand(newListSnapshotsCmd(stdout, stderr))
	cmd.AddCommand(newListArchivesCmd(stdout, stderr))
	return cmd
}

func newRestoreRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var repoAlias, snapshot, output string
	var all bool
	var archives []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Materialize archives onto node storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(archives) > 0 {
				return errors.New("pass either --all or --archive, not both")
			}
			if !all && len(archives) == 0 {
				return errors.New("nothing selected: pass --all or --archive")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := getSafetyOptions(cmd)
			log := newLogger(cmd, stderr)

			if !opts.DryRun {
				what := fmt.Sprintf("%d selected archive(s)", len(archives))
				if all {
					what = "every archive"
				}
				question := fmt.Sprintf("Restore %s from snapshot %q onto this node?", what, snapshot)
				ok, err := safety.Confirm(opts, cmd.InOrStdin(), cmd.OutOrStdout(), question)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("aborted by user")
				}
				lock, err := lockfile.Acquire(cfg.LockDir, "restore")
				if err != nil {
					return err
				}
				defer lock.Release()
			}

			report, err := restore.Run(cmd.Context(), cfg, restore.Deps{
				Providers: buildProviders(),
				OpenRepo:  repoOpener(cmd, cfg, stderr),
				Log:       log,
				Progress:  stderr,
			}, restore.Options{
				Repo:     repoAlias,
				Snapshot: snapshot,
				All:      all,
				Archives: archives,
				DryRun:   opts.DryRun,
				Force:    opts.Force,
			})
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
	cmd.Flags().StringVar(&snapshot, "snapshot", "latest", "Snapshot-set selector: latest, a set ID, a unix epoch, or RFC3339")
	cmd.Flags().BoolVar(&all, "all", false, "Restore every archive in the selected snapshot-set")
	cmd.Flags().StringArrayVar(&archives, "archive", nil, "Archive name to restore (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}
