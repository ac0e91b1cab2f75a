package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/steplov/pvtools/src/repository"
)

// newListSnapshotsCmd lists the repository's snapshot-sets.
func newListSnapshotsCmd(stdout, stderr io.Writer) *cobra.Command {
	var repoAlias, output string
	cmd := &cobra.Command{
		Use:   "list-snapshots",
		Short: "List snapshot-sets in the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			arch, _, err := openArchiver(cmd, cfg, repoAlias, stderr)
			if err != nil {
				return err
			}
			sets, err := arch.ListSnapshotSets(cmd.Context())
			if err != nil {
				return err
			}
			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sets)
			case "table", "":
				return renderSets(stdout, sets)
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().StringVar(&repoAlias, "repo", "", "Repository alias from the config (defaults to default_repo)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

// newListArchivesCmd lists the archives of one snapshot-set. It hangs off
// both the backup and the restore command groups.
func newListArchivesCmd(stdout, stderr io.Writer) *cobra.Command {
	var repoAlias, snapshot, output string
	cmd := &cobra.Command{
		Use:   "list-archives",
		Short: "List archives in a snapshot-set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			arch, _, err := openArchiver(cmd, cfg, repoAlias, stderr)
			if err != nil {
				return err
			}
			sets, err := arch.ListSnapshotSets(cmd.Context())
			if err != nil {
				return err
			}
			set, err := repository.Select(sets, snapshot)
			if err != nil {
				return err
			}
			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(set)
			case "table", "":
				return renderArchives(stdout, set)
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().StringVar(&repoAlias, "repo", "", "Repository alias from the config (defaults to default_repo)")
	cmd.Flags().StringVar(&snapshot, "snapshot", "latest", "Snapshot-set selector: latest, a set ID, a unix epoch, or RFC3339")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func renderSets(w io.Writer, sets []repository.SnapshotSet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SET\tTIME\tARCHIVES\tTOTAL")
	for _, set := range sets {
		var total int64
		for _, a := range set.Archives {
			total += a.SizeBytes
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			set.ID, set.Time.UTC().Format(time.RFC3339), len(set.Archives), humanize.IBytes(uint64(total)))
	}
	return tw.Flush()
}

func renderArchives(w io.Writer, set repository.SnapshotSet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVE\tPROVIDER\tVOLUME\tSIZE")
	for _, a := range set.Archives {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Name, a.Provider, a.Volume, humanize.IBytes(uint64(a.SizeBytes)))
	}
	return tw.Flush()
}
