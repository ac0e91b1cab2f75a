package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks before a destructive action. Dry runs decline without
// prompting, --yes accepts without prompting; otherwise the answer is
// read from in. Only "y" and "yes" count as acceptance.
func Confirm(opts Options, in io.Reader, out io.Writer, question string) (bool, error) {
	if opts.DryRun {
		return false, nil
	}
	if opts.Yes {
		return true, nil
	}
	if out != nil {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.TrimSpace(strings.ToLower(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
