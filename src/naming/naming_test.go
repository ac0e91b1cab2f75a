package naming_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplov/pvtools/src/naming"
)

func TestArchiveName_RoundTrip(t *testing.T) {
	name := naming.ArchiveName("zfs", "vm-100-disk-0", "1a2b3c4d")
	require.Equal(t, "zfs_vm-100-disk-0_1a2b3c4d.img", name)

	p, err := naming.Parse(name)
	require.NoError(t, err)
	assert.Equal(t, "zfs", p.Provider)
	assert.Equal(t, "vm-100-disk-0", p.Leaf)
	assert.Equal(t, "1a2b3c4d", p.ID)
}

func TestParse_LeafWithUnderscores(t *testing.T) {
	p, err := naming.Parse("lvmthin_data_vol_7_deadbeef.img")
	require.NoError(t, err)
	assert.Equal(t, "lvmthin", p.Provider)
	assert.Equal(t, "data_vol_7", p.Leaf)
	assert.Equal(t, "deadbeef", p.ID)
}

func TestParse_FidxSuffixTolerated(t *testing.T) {
	p, err := naming.Parse("zfs_pvc-4f21_0badc0de.fidx")
	require.NoError(t, err)
	assert.Equal(t, "pvc-4f21", p.Leaf)
}

func TestParse_Invalid(t *testing.T) {
	for _, name := range []string{
		"",
		"zfs_vol_abc",          // no suffix
		"noseparator.img",      // no underscores
		"zfs_only-one.img",     // a single separator cannot carry three parts
		"_vol_abcd.img",        // empty provider
		"zfs__.img",            // empty leaf and id
		"zfs_vm-1-disk-0_.img", // empty id
	} {
		_, err := naming.Parse(name)
		assert.Errorf(t, err, "Parse(%q) should fail", name)
	}
}
