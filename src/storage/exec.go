package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// runCommand executes a storage tool and captures its output. Package
// variable so provider tests can intercept subprocess calls.
var runCommand runFunc = execCommand

func execCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	err := cmd.Run()
	return stdoutBuf.String(), stderrBuf.String(), err
}

// waitForDevice polls until the device node appears; udev publishes
// zvol/LV nodes asynchronously after creation.
var waitForDevice = func(ctx context.Context, path string) error {
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("device %s did not appear", path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// SetRunCommandForTest replaces the subprocess runner; the returned
// function restores the previous one.
func SetRunCommandForTest(fn runFunc) func() {
	prev := runCommand
	runCommand = fn
	return func() { runCommand = prev }
}

// SetWaitForDeviceForTest replaces the device-node wait.
func SetWaitForDeviceForTest(fn func(context.Context, string) error) func() {
	prev := waitForDevice
	waitForDevice = fn
	return func() { waitForDevice = prev }
}
