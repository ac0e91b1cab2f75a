package restore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplov/pvtools/src/config"
	"github.com/steplov/pvtools/src/repository"
	"github.com/steplov/pvtools/src/restore"
	"github.com/steplov/pvtools/src/storage"
)

const (
	zfsArchive = "zfs_vm-100-disk-0_1a2b3c4d.img"
	lvmArchive = "lvmthin_vm-101-disk-0_9f8e7d6c.img"
)

type fixture struct {
	cfg  *config.Config
	zfs  *storage.FakeProvider
	lvm  *storage.FakeProvider
	arch *repository.Fake
	deps restore.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cfg: &config.Config{
			BackupID: "pve1-pv",
			Repos:    map[string]config.Repository{"primary": {URL: "rest:http://backup.local/pv"}},
			Restore: config.Restore{
				Targets: []config.RestoreTarget{
					{Name: "zfs_pv", Type: storage.TypeZFS, Dataset: "rpool/restore"},
					{Name: "lvm_pve", Type: storage.TypeLVMThin, VolumeGroup: "pve", Thinpool: "data"},
				},
			},
		},
		zfs:  storage.NewFake(storage.TypeZFS, t.TempDir()),
		lvm:  storage.NewFake(storage.TypeLVMThin, t.TempDir()),
		arch: repository.NewFakeArchiver(),
	}
	require.NoError(t, f.cfg.Validate())
	f.deps = restore.Deps{
		Providers: []storage.Provider{f.zfs, f.lvm},
		OpenRepo: func(alias string, repo config.Repository) (repository.Archiver, error) {
			return f.arch, nil
		},
		Log: zerolog.Nop(),
	}
	f.arch.Seed(repository.SnapshotSet{
		ID:       "20240301T120000Z",
		Time:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		BackupID: "pve1-pv",
		Archives: []repository.Archive{
			{Name: zfsArchive, Provider: storage.TypeZFS, Volume: "vm-100-disk-0", SizeBytes: 6},
			{Name: lvmArchive, Provider: storage.TypeLVMThin, Volume: "vm-101-disk-0", SizeBytes: 6},
		},
	}, map[string][]byte{
		zfsArchive: []byte("zvol-a"),
		lvmArchive: []byte("thin-a"),
	})
	return f
}

func destPath(p *storage.FakeProvider, leaf string) string {
	return filepath.Join(p.Dir, "dest-"+leaf)
}

func TestRunRestoresAllArchives(t *testing.T) {
	f := newFixture(t)

	report, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{All: true})
	require.NoError(t, err)

	require.Len(t, report.Items, 2)
	assert.True(t, report.OK())
	for _, item := range report.Items {
		assert.Equal(t, restore.StatusRestored, item.Status)
		assert.Equal(t, "same-type-default", item.Tier)
	}
	assert.Equal(t, "zfs_pv", report.Items[0].Target)
	assert.Equal(t, "lvm_pve", report.Items[1].Target)

	data, err := os.ReadFile(destPath(f.zfs, "vm-100-disk-0"))
	require.NoError(t, err)
	assert.Equal(t, []byte("zvol-a"), data)
	data, err = os.ReadFile(destPath(f.lvm, "vm-101-disk-0"))
	require.NoError(t, err)
	assert.Equal(t, []byte("thin-a"), data)
}

func TestRunRestoresSelectedArchiveAndReportsUnknown(t *testing.T) {
	f := newFixture(t)

	report, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{
		Archives: []string{zfsArchive, "zfs_vm-999-disk-0_00000000.img"},
	})
	require.NoError(t, err)

	require.Len(t, report.Items, 2)
	assert.Equal(t, restore.StatusRestored, report.Items[0].Status)
	assert.Equal(t, restore.StatusFailed, report.Items[1].Status)
	assert.Contains(t, report.Items[1].Error, "not in snapshot set")
	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, f.zfs.MaterializeCalls, "the unknown archive must not touch storage")
}

func TestRunDryRunRoutesWithoutMutations(t *testing.T) {
	f := newFixture(t)
	f.cfg.Restore.Rules = []config.RestoreRule{
		{Provider: storage.TypeZFS, Archive: "vm-100-.*", Target: "zfs_pv"},
	}
	require.NoError(t, f.cfg.Validate())

	report, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{All: true, DryRun: true})
	require.NoError(t, err)

	require.Len(t, report.Items, 2)
	assert.Equal(t, restore.StatusPlanned, report.Items[0].Status)
	assert.Equal(t, "rule", report.Items[0].Tier)
	assert.Equal(t, "same-type-default", report.Items[1].Tier)

	assert.Zero(t, f.zfs.MaterializeCalls)
	assert.Zero(t, f.lvm.MaterializeCalls)
	assert.Zero(t, f.arch.FetchCalls)
}

func TestRunDestinationExists(t *testing.T) {
	f := newFixture(t)
	f.zfs.Existing["vm-100-disk-0"] = true

	report, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{Archives: []string{zfsArchive}})
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	assert.Equal(t, restore.StatusFailed, report.Items[0].Status)
	assert.Contains(t, report.Items[0].Error, "already exists")
	assert.Zero(t, f.arch.FetchCalls, "no data is pulled onto an existing volume")
}

func TestRunDestinationExistsForce(t *testing.T) {
	f := newFixture(t)
	f.zfs.Existing["vm-100-disk-0"] = true

	report, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{
		Archives: []string{zfsArchive},
		Force:    true,
	})
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	assert.Equal(t, restore.StatusRestored, report.Items[0].Status)
	assert.Equal(t, 1, f.arch.FetchCalls)
}

func TestRunNoRouteIsPerItemFailure(t *testing.T) {
	f := newFixture(t)
	f.cfg.Restore = config.Restore{} // no targets, no rules, no default

	report, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{All: true})
	require.NoError(t, err)

	require.Len(t, report.Items, 2)
	for _, item := range report.Items {
		assert.Equal(t, restore.StatusFailed, item.Status)
		assert.Contains(t, item.Error, "no restore route")
	}
	assert.False(t, report.OK())
}

func TestRunCrossTypeGlobalDefault(t *testing.T) {
	f := newFixture(t)
	// Only a ZFS target remains; the LVM archive can reach it solely
	// through the global default.
	f.cfg.Restore = config.Restore{
		DefaultTarget: "zfs_pv",
		Targets: []config.RestoreTarget{
			{Name: "zfs_pv", Type: storage.TypeZFS, Dataset: "rpool/restore"},
		},
	}
	require.NoError(t, f.cfg.Validate())

	report, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{Archives: []string{lvmArchive}})
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	assert.Equal(t, restore.StatusRestored, report.Items[0].Status)
	assert.Equal(t, "zfs_pv", report.Items[0].Target)
	assert.Equal(t, "global-default", report.Items[0].Tier)
	assert.Equal(t, 1, f.zfs.MaterializeCalls, "the archive lands on the cross-type target's provider")
	assert.Zero(t, f.lvm.MaterializeCalls)
}

func TestRunSnapshotSelectors(t *testing.T) {
	f := newFixture(t)
	older := "20240201T100000Z"
	f.arch.Seed(repository.SnapshotSet{
		ID:       older,
		Time:     time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		BackupID: "pve1-pv",
		Archives: []repository.Archive{
			{Name: zfsArchive, Provider: storage.TypeZFS, Volume: "vm-100-disk-0", SizeBytes: 3},
		},
	}, map[string][]byte{zfsArchive: []byte("old")})

	report, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{All: true, Snapshot: "latest"})
	require.NoError(t, err)
	assert.Equal(t, "20240301T120000Z", report.SetID)

	report, err = restore.Run(context.Background(), f.cfg, f.deps, restore.Options{All: true, Snapshot: older, Force: true})
	require.NoError(t, err)
	assert.Equal(t, older, report.SetID)

	_, err = restore.Run(context.Background(), f.cfg, f.deps, restore.Options{All: true, Snapshot: "20990101T000000Z"})
	var notFound *repository.SetNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRunRequiresSelection(t *testing.T) {
	f := newFixture(t)

	_, err := restore.Run(context.Background(), f.cfg, f.deps, restore.Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all or --archive")
}
