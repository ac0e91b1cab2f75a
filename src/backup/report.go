package backup

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// Status is a volume's final outcome within one run.
type Status string

const (
	// StatusPlanned marks a dry-run entry: the volume would be backed up.
	StatusPlanned Status = "planned"
	// StatusCommitted means the archive is durably stored.
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
	// StatusSkipped marks volumes not attempted because an earlier
	// failure stopped the run (fail_fast).
	StatusSkipped Status = "skipped"
)

// Item is one volume's outcome, in processing order.
type Item struct {
	Archive   string `json:"archive"`
	Provider  string `json:"provider"`
	Volume    string `json:"volume"`
	SizeBytes int64  `json:"size_bytes"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Report is the result of one backup run.
type Report struct {
	SetID  string `json:"set_id"`
	Repo   string `json:"repo"`
	DryRun bool   `json:"dry_run"`
	Items  []Item `json:"items"`
}

// OK reports whether every item succeeded (or, in a dry run, was
// planned). Any failed or skipped item makes the run non-zero.
func (r *Report) OK() bool {
	for _, item := range r.Items {
		if item.Status == StatusFailed || item.Status == StatusSkipped {
			return false
		}
	}
	return true
}

// Failed counts items that ended in failure.
func (r *Report) Failed() int {
	n := 0
	for _, item := range r.Items {
		if item.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Render writes the report as a table followed by a one-line summary.
func (r *Report) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVE\tPROVIDER\tVOLUME\tSIZE\tSTATUS\tERROR")
	for _, item := range r.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.Archive, item.Provider, item.Volume,
			humanize.IBytes(uint64(item.SizeBytes)), item.Status, item.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", r.summary())
	return err
}

func (r *Report) summary() string {
	var planned, committed, failed, skipped int
	for _, item := range r.Items {
		switch item.Status {
		case StatusPlanned:
			planned++
		case StatusCommitted:
			committed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	if r.DryRun {
		return fmt.Sprintf("dry-run: %d volume(s) would be backed up to set %s", planned, r.SetID)
	}
	s := fmt.Sprintf("set %s: %d committed, %d failed", r.SetID, committed, failed)
	if skipped > 0 {
		s += fmt.Sprintf(", %d skipped", skipped)
	}
	return s
}
