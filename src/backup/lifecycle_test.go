package backup_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplov/pvtools/src/backup"
	"github.com/steplov/pvtools/src/repository"
	"github.com/steplov/pvtools/src/storage"
)

func TestLifecycleCleanupFailureNeverMasksStreamError(t *testing.T) {
	provider := storage.NewFake(storage.TypeZFS, t.TempDir())
	provider.AddVolume("tank", storage.Volume{Name: "vm-100-disk-0", UID: "1a2b3c4d"}, []byte("payload"))
	provider.FailDelete["tank/vm-100-disk-0@fake"] = assert.AnError

	arch := repository.NewFakeArchiver()
	arch.FailStream["zfs_vm-100-disk-0_1a2b3c4d.img"] = assert.AnError

	var logBuf bytes.Buffer
	lc := &backup.Lifecycle{
		Provider: provider,
		Archiver: arch,
		Log:      zerolog.New(&logBuf),
	}
	vol := provider.VolumesBySource["tank"][0]
	archive := repository.Archive{Name: "zfs_vm-100-disk-0_1a2b3c4d.img", Provider: storage.TypeZFS, Volume: vol.Name}

	err := lc.Run(context.Background(), "20240301T120000Z", vol, archive)

	var archErr *repository.ArchiverError
	require.ErrorAs(t, err, &archErr, "the stream failure is the primary error")
	assert.Equal(t, 1, provider.DeleteCalls, "cleanup is still attempted")
	assert.Contains(t, logBuf.String(), "snapshot cleanup failed")
}

func TestLifecycleCleanupFailureAfterSuccessIsAWarning(t *testing.T) {
	provider := storage.NewFake(storage.TypeZFS, t.TempDir())
	provider.AddVolume("tank", storage.Volume{Name: "vm-100-disk-0", UID: "1a2b3c4d"}, []byte("payload"))
	provider.FailDelete["tank/vm-100-disk-0@fake"] = assert.AnError

	lc := &backup.Lifecycle{
		Provider: provider,
		Archiver: repository.NewFakeArchiver(),
		Log:      zerolog.Nop(),
	}
	vol := provider.VolumesBySource["tank"][0]
	archive := repository.Archive{Name: "zfs_vm-100-disk-0_1a2b3c4d.img", Provider: storage.TypeZFS, Volume: vol.Name}

	err := lc.Run(context.Background(), "20240301T120000Z", vol, archive)

	assert.NoError(t, err, "a committed archive with a leaked snapshot is still a success")
}

func TestSnapStateStrings(t *testing.T) {
	assert.Equal(t, "absent", backup.SnapAbsent.String())
	assert.Equal(t, "streaming", backup.SnapStreaming.String())
	assert.Equal(t, "cleaned", backup.SnapCleaned.String())
}

func TestReportRender(t *testing.T) {
	report := &backup.Report{
		SetID: "20240301T120000Z",
		Repo:  "primary",
		Items: []backup.Item{
			{Archive: "zfs_vm-100-disk-0_1a2b3c4d.img", Provider: "zfs", Volume: "vm-100-disk-0", SizeBytes: 8 << 30, Status: backup.StatusCommitted},
			{Archive: "lvmthin_vm-101-disk-0_9f8e7d6c.img", Provider: "lvmthin", Volume: "vm-101-disk-0", SizeBytes: 4 << 30, Status: backup.StatusFailed, Error: "stream aborted"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "ARCHIVE")
	assert.Contains(t, out, "8.0 GiB")
	assert.Contains(t, out, "stream aborted")
	assert.Contains(t, out, "1 committed, 1 failed")
	assert.True(t, strings.Index(out, "vm-100-disk-0") < strings.Index(out, "vm-101-disk-0"), "rows keep processing order")
}

func TestReportRenderDryRun(t *testing.T) {
	report := &backup.Report{
		SetID:  "20240301T120000Z",
		Repo:   "primary",
		DryRun: true,
		Items: []backup.Item{
			{Archive: "zfs_vm-100-disk-0_1a2b3c4d.img", Provider: "zfs", Volume: "vm-100-disk-0", SizeBytes: 1 << 20, Status: backup.StatusPlanned},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.Render(&buf))

	assert.Contains(t, buf.String(), "dry-run: 1 volume(s) would be backed up")
	assert.True(t, report.OK())
}
