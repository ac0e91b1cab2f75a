// Package repository is the archive side of pvtools: what a backup run
// writes and what a restore run reads. A snapshot-set is one backup
// run's worth of archives; sets and archives are reconstructed purely
// from repository metadata, never from local state.
package repository

import (
	"context"
	"fmt"
	"io"
	"time"
)

// SetIDFormat is the snapshot-set identifier layout (UTC).
const SetIDFormat = "20060102T150405Z"

// NewSetID derives the snapshot-set ID for a run starting at now.
func NewSetID(now time.Time) string {
	return now.UTC().Format(SetIDFormat)
}

// Archive is one streamed volume inside a snapshot-set.
type Archive struct {
	Name       string // naming.ArchiveName form
	Provider   string
	Volume     string // leaf name
	SizeBytes  int64
	SnapshotID string // backing repository snapshot
}

// SnapshotSet groups the archives of one backup run.
type SnapshotSet struct {
	ID       string
	Time     time.Time
	BackupID string
	Archives []Archive
}

// Archiver is the repository contract consumed by the orchestrators.
// Ensure and Stream mutate the repository; the rest only read.
type Archiver interface {
	Ensure(ctx context.Context) error
	Stream(ctx context.Context, setID string, archive Archive, data io.Reader) error
	ListSnapshotSets(ctx context.Context) ([]SnapshotSet, error)
	ListArchives(ctx context.Context, setID string) ([]Archive, error)
	Fetch(ctx context.Context, archive Archive, dst io.Writer) error
}

// ArchiverError wraps a repository transfer/listing failure.
type ArchiverError struct {
	Op  string
	Err error
}

func (e *ArchiverError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *ArchiverError) Unwrap() error { return e.Err }

// SetNotFoundError means a snapshot-set selector matched nothing.
type SetNotFoundError struct {
	Selector string
}

func (e *SetNotFoundError) Error() string {
	return fmt.Sprintf("no snapshot set matches %q", e.Selector)
}
