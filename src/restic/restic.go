// Package restic wraps the restic CLI operations pvtools depends on:
// repository probing/creation, stdin-streamed backups, snapshot listing,
// and dump-based fetches.
package restic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Conn couples a detected restic binary with one repository and its
// credentials. The zero value is unusable; build it with the config's
// repository entry.
type Conn struct {
	Bin          BinaryInfo
	URL          string
	PasswordFile string
}

func (c Conn) env() []string {
	env := append(os.Environ(), "RESTIC_REPOSITORY="+c.URL)
	if c.PasswordFile != "" {
		env = append(env, "RESTIC_PASSWORD_FILE="+c.PasswordFile)
	}
	return env
}

func (c Conn) run(ctx context.Context, args []string, stdin io.Reader) (string, string, error) {
	cmd := exec.CommandContext(ctx, c.Bin.Path, args...)
	cmd.Env = c.env()
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	err := cmd.Run()
	return stdoutBuf.String(), stderrBuf.String(), err
}

// Ensure verifies the repository is reachable and initialised, running
// `restic init` when it does not exist yet.
func (c Conn) Ensure(ctx context.Context) error {
	_, stderr, err := c.run(ctx, []string{"cat", "config"}, nil)
	if err == nil {
		return nil
	}
	if !isNotRepository(stderr) {
		return fmt.Errorf("restic: probe repository: %w: %s", err, strings.TrimSpace(stderr))
	}
	if _, initStderr, initErr := c.run(ctx, []string{"init"}, nil); initErr != nil {
		return fmt.Errorf("restic: init repository: %w: %s", initErr, strings.TrimSpace(initStderr))
	}
	return nil
}

func isNotRepository(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "is not a repository") ||
		strings.Contains(s, "does not look like a restic repository") ||
		strings.Contains(s, "unable to open config file")
}

// BackupStream runs `restic backup --stdin` feeding it from r. Output
// goes to progress when given; the copy goroutine mirrors how the stdin
// pipe must be closed before Wait can finish.
func (c Conn) BackupStream(ctx context.Context, filename string, tags []string, r io.Reader, progress io.Writer) error {
	args := []string{"backup", "--stdin", "--stdin-filename", filename}
	for _, tag := range tags {
		args = append(args, "--tag", tag)
	}
	cmd := exec.CommandContext(ctx, c.Bin.Path, args...)
	cmd.Env = c.env()
	if progress != nil {
		cmd.Stdout = progress
		cmd.Stderr = progress
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("restic: acquire stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("restic: start backup: %w", err)
	}
	copyErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(stdin, r)
		stdin.Close()
		copyErr <- err
	}()
	waitErr := cmd.Wait()
	streamErr := <-copyErr
	if streamErr != nil {
		return fmt.Errorf("restic: stream backup data: %w", streamErr)
	}
	if waitErr != nil {
		return fmt.Errorf("restic: backup failed: %w", waitErr)
	}
	return nil
}

// Dump streams one file out of a snapshot via `restic dump`.
func (c Conn) Dump(ctx context.Context, snapshotID, path string, w io.Writer, progress io.Writer) error {
	cmd := exec.CommandContext(ctx, c.Bin.Path, "dump", snapshotID, path)
	cmd.Env = c.env()
	cmd.Stdout = w
	if progress != nil {
		cmd.Stderr = progress
	} else {
		cmd.Stderr = io.Discard
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("restic: dump %s: %w", path, err)
	}
	return nil
}

// Snapshot is one entry of `restic snapshots --json`.
type Snapshot struct {
	ID      string    `json:"id"`
	ShortID string    `json:"short_id"`
	Time    time.Time `json:"time"`
	Tags    []string  `json:"tags"`
	Paths   []string  `json:"paths"`
}

// TagMap converts key=value tags into a map; bare tags map to "".
func (s Snapshot) TagMap() map[string]string {
	out := make(map[string]string, len(s.Tags))
	for _, tag := range s.Tags {
		if k, v, found := strings.Cut(tag, "="); found {
			out[k] = v
		} else {
			out[tag] = ""
		}
	}
	return out
}

// ListSnapshots returns snapshots carrying all the given tags, oldest
// first.
func (c Conn) ListSnapshots(ctx context.Context, tags []string) ([]Snapshot, error) {
	args := []string{"snapshots", "--json"}
	if len(tags) > 0 {
		// One --tag flag: restic ORs across flags but ANDs within one
		// comma-separated list.
		args = append(args, "--tag", strings.Join(tags, ","))
	}
	stdout, stderr, err := c.run(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("restic: list snapshots: %w: %s", err, strings.TrimSpace(stderr))
	}
	var snaps []Snapshot
	if err := json.Unmarshal([]byte(stdout), &snaps); err != nil {
		return nil, fmt.Errorf("restic: parse snapshots json: %w", err)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Time.Before(snaps[j].Time) })
	return snaps, nil
}
