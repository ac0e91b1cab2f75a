package restore

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// Status is an archive's final outcome within one restore run.
type Status string

const (
	// StatusPlanned marks a dry-run entry together with its resolved
	// route.
	StatusPlanned  Status = "planned"
	StatusRestored Status = "restored"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Item is one archive's outcome, in selection order.
type Item struct {
	Archive   string `json:"archive"`
	Provider  string `json:"provider"`
	Target    string `json:"target,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Volume    string `json:"volume,omitempty"` // destination volume ref
	SizeBytes int64  `json:"size_bytes"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Report is the result of one restore run.
type Report struct {
	SetID  string `json:"set_id"`
	Repo   string `json:"repo"`
	DryRun bool   `json:"dry_run"`
	Items  []Item `json:"items"`
}

// OK reports whether every selected archive was restored (or, in a dry
// run, routed).
func (r *Report) OK() bool {
	for _, item := range r.Items {
		if item.Status == StatusFailed || item.Status == StatusSkipped {
			return false
		}
	}
	return true
}

// Failed counts archives that ended in failure.
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
// The route tier appears per row so operators can audit why an archive
// landed on a target.
func (r *Report) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVE\tTARGET\tTIER\tVOLUME\tSIZE\tSTATUS\tERROR")
	for _, item := range r.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			item.Archive, item.Target, item.Tier, item.Volume,
			humanize.IBytes(uint64(item.SizeBytes)), item.Status, item.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", r.summary())
	return err
}

func (r *Report) summary() string {
	var planned, restored, failed, skipped int
	for _, item := range r.Items {
		switch item.Status {
		case StatusPlanned:
			planned++
		case StatusRestored:
			restored++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	if r.DryRun {
		return fmt.Sprintf("dry-run: %d archive(s) routed from set %s, %d failed", planned, r.SetID, failed)
	}
	s := fmt.Sprintf("set %s: %d restored, %d failed", r.SetID, restored, failed)
	if skipped > 0 {
		s += fmt.Sprintf(", %d skipped", skipped)
	}
	return s
}
