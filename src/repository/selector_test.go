package repository_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplov/pvtools/src/repository"
)

func threeSets(t *testing.T) []repository.SnapshotSet {
	t.Helper()
	mk := func(id string, ts string) repository.SnapshotSet {
		parsed, err := time.Parse(time.RFC3339, ts)
		require.NoError(t, err)
		return repository.SnapshotSet{ID: id, Time: parsed}
	}
	// Deliberately out of order; Select must sort by time itself.
	return []repository.SnapshotSet{
		mk("20240301T120000Z", "2024-03-01T12:00:00Z"),
		mk("20240101T090000Z", "2024-01-01T09:00:00Z"),
		mk("20240201T100000Z", "2024-02-01T10:00:00Z"),
	}
}

func TestSelectLatest(t *testing.T) {
	sets := threeSets(t)

	for _, selector := range []string{"latest", ""} {
		got, err := repository.Select(sets, selector)
		require.NoError(t, err, "selector %q", selector)
		assert.Equal(t, "20240301T120000Z", got.ID)
	}
}

func TestSelectExactID(t *testing.T) {
	sets := threeSets(t)

	got, err := repository.Select(sets, "20240201T100000Z")
	require.NoError(t, err)
	assert.Equal(t, "20240201T100000Z", got.ID)
}

func TestSelectByEpoch(t *testing.T) {
	sets := threeSets(t)

	// 2024-02-15 sits between the second and third set; the newest set at
	// or before the instant wins.
	cutoff := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC).Unix()
	got, err := repository.Select(sets, strconv.FormatInt(cutoff, 10))
	require.NoError(t, err)
	assert.Equal(t, "20240201T100000Z", got.ID)
}

func TestSelectByRFC3339(t *testing.T) {
	sets := threeSets(t)

	got, err := repository.Select(sets, "2024-02-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "20240201T100000Z", got.ID, "a set exactly at the cutoff is eligible")

	got, err = repository.Select(sets, "2024-12-31T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "20240301T120000Z", got.ID)
}

func TestSelectNoMatch(t *testing.T) {
	sets := threeSets(t)

	cases := []string{
		"2023-01-01T00:00:00Z", // before every set
		"100",                  // epoch before every set
		"no-such-id",
	}
	for _, selector := range cases {
		_, err := repository.Select(sets, selector)
		var notFound *repository.SetNotFoundError
		assert.ErrorAs(t, err, &notFound, "selector %q", selector)
	}
}

func TestSelectEmptyRepository(t *testing.T) {
	_, err := repository.Select(nil, "latest")

	var notFound *repository.SetNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, err.Error(), "latest")
}
