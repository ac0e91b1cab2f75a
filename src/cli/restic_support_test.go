package cli

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplov/pvtools/src/restic"
)

func stubDetector(t *testing.T, version string) {
	t.Helper()
	reset := SetResticDetectorForTest(func(ctx context.Context) (restic.BinaryInfo, error) {
		return restic.BinaryInfo{Path: "/usr/bin/restic", Version: version}, nil
	})
	t.Cleanup(reset)
}

func TestCheckResticBinaryAcceptsCompatible(t *testing.T) {
	stubDetector(t, "0.17.3")
	cmd := NewRootCmd(io.Discard, io.Discard)

	info, err := checkResticBinary(cmd, false)

	require.NoError(t, err)
	assert.Equal(t, "0.17.3", info.Version)
}

func TestCheckResticBinaryRejectsOldNonInteractive(t *testing.T) {
	stubDetector(t, "0.12.0")
	cmd := NewRootCmd(io.Discard, io.Discard)

	_, err := checkResticBinary(cmd, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than required")
}

func TestCheckResticBinaryYesOverridesVersionGate(t *testing.T) {
	stubDetector(t, "0.12.0")
	cmd := NewRootCmd(io.Discard, io.Discard)
	require.NoError(t, cmd.PersistentFlags().Set("yes", "true"))

	info, err := checkResticBinary(cmd, true)

	require.NoError(t, err)
	assert.Equal(t, "0.12.0", info.Version)
}
