package repository

import (
	"context"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/steplov/pvtools/src/restic"
)

// Client is the restic-backed Archiver. Each archive becomes one restic
// snapshot holding a single stdin file; the set/run structure lives in
// tags so no index object ever needs updating.
type Client struct {
	conn     restic.Conn
	backupID string
	progress io.Writer
}

// NewClient builds an Archiver for one repository. backupID scopes every
// tag query, so several nodes can share a repository without seeing each
// other's sets.
func NewClient(conn restic.Conn, backupID string, progress io.Writer) *Client {
	return &Client{conn: conn, backupID: backupID, progress: progress}
}

func (c *Client) Ensure(ctx context.Context) error {
	if err := c.conn.Ensure(ctx); err != nil {
		return &ArchiverError{Op: "ensure", Err: err}
	}
	return nil
}

func (c *Client) Stream(ctx context.Context, setID string, archive Archive, data io.Reader) error {
	tags := []string{
		"backup_id=" + c.backupID,
		"run=" + setID,
		"archive=" + archive.Name,
		"provider=" + archive.Provider,
		"volume=" + archive.Volume,
		"size=" + strconv.FormatInt(archive.SizeBytes, 10),
	}
	if err := c.conn.BackupStream(ctx, archive.Name, tags, data, c.progress); err != nil {
		return &ArchiverError{Op: "stream " + archive.Name, Err: err}
	}
	return nil
}

func (c *Client) ListSnapshotSets(ctx context.Context) ([]SnapshotSet, error) {
	snaps, err := c.conn.ListSnapshots(ctx, []string{"backup_id=" + c.backupID})
	if err != nil {
		return nil, &ArchiverError{Op: "list snapshot sets", Err: err}
	}
	return BuildSets(snaps), nil
}

func (c *Client) ListArchives(ctx context.Context, setID string) ([]Archive, error) {
	sets, err := c.ListSnapshotSets(ctx)
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		if set.ID == setID {
			return set.Archives, nil
		}
	}
	return nil, &SetNotFoundError{Selector: setID}
}

func (c *Client) Fetch(ctx context.Context, archive Archive, dst io.Writer) error {
	if err := c.conn.Dump(ctx, archive.SnapshotID, "/"+archive.Name, dst, c.progress); err != nil {
		return &ArchiverError{Op: "fetch " + archive.Name, Err: err}
	}
	return nil
}

// BuildSets groups raw repository snapshots into snapshot-sets by their
// run tag. Snapshots without the pvtools tag schema are ignored, so a
// repository shared with other tools stays listable.
func BuildSets(snaps []restic.Snapshot) []SnapshotSet {
	byRun := map[string]*SnapshotSet{}
	var order []string
	for _, snap := range snaps {
		tags := snap.TagMap()
		runID := tags["run"]
		name := tags["archive"]
		if runID == "" || name == "" {
			continue
		}
		set, ok := byRun[runID]
		if !ok {
			set = &SnapshotSet{ID: runID, BackupID: tags["backup_id"], Time: setTime(runID, snap.Time)}
			byRun[runID] = set
			order = append(order, runID)
		}
		size, _ := strconv.ParseInt(tags["size"], 10, 64)
		set.Archives = append(set.Archives, Archive{
			Name:       name,
			Provider:   tags["provider"],
			Volume:     tags["volume"],
			SizeBytes:  size,
			SnapshotID: snap.ID,
		})
	}
	sets := make([]SnapshotSet, 0, len(order))
	for _, runID := range order {
		sets = append(sets, *byRun[runID])
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Time.Before(sets[j].Time) })
	return sets
}

// setTime prefers the run ID itself (it encodes the run start) over the
// first snapshot's commit time.
func setTime(runID string, fallback time.Time) time.Time {
	if t, err := time.Parse(SetIDFormat, runID); err == nil {
		return t
	}
	return fallback
}
