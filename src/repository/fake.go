package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"
)

// Fake is an in-memory Archiver for unit tests. Streams are captured
// byte-for-byte and mutation calls are counted so dry-run behavior is
// assertable.
type Fake struct {
	Sets  []SnapshotSet
	Blobs map[string][]byte // snapshot ID -> payload

	FailStream map[string]error // archive name -> error
	FailFetch  map[string]error

	EnsureCalls      int
	StreamCalls      int
	ListSetCalls     int
	ListArchiveCalls int
	FetchCalls       int
	StreamedOrder    []string
}

func NewFakeArchiver() *Fake {
	return &Fake{
		Blobs:      map[string][]byte{},
		FailStream: map[string]error{},
		FailFetch:  map[string]error{},
	}
}

// Seed registers an existing snapshot-set with archive payloads keyed by
// archive name. Snapshot IDs are filled in when absent.
func (f *Fake) Seed(set SnapshotSet, payloads map[string][]byte) {
	for i := range set.Archives {
		if set.Archives[i].SnapshotID == "" {
			set.Archives[i].SnapshotID = fmt.Sprintf("snap-%s-%d", set.ID, i)
		}
		if data, ok := payloads[set.Archives[i].Name]; ok {
			f.Blobs[set.Archives[i].SnapshotID] = data
		}
	}
	f.Sets = append(f.Sets, set)
}

func (f *Fake) Ensure(ctx context.Context) error {
	f.EnsureCalls++
	return nil
}

func (f *Fake) Stream(ctx context.Context, setID string, archive Archive, data io.Reader) error {
	f.StreamCalls++
	if err := f.FailStream[archive.Name]; err != nil {
		return &ArchiverError{Op: "stream " + archive.Name, Err: err}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return &ArchiverError{Op: "stream " + archive.Name, Err: err}
	}

	set := f.setByID(setID)
	if set == nil {
		f.Sets = append(f.Sets, SnapshotSet{ID: setID, Time: setTime(setID, time.Now().UTC())})
		set = &f.Sets[len(f.Sets)-1]
	}
	archive.SnapshotID = fmt.Sprintf("snap-%s-%d", setID, len(set.Archives))
	set.Archives = append(set.Archives, archive)
	f.Blobs[archive.SnapshotID] = buf.Bytes()
	f.StreamedOrder = append(f.StreamedOrder, archive.Name)
	return nil
}

func (f *Fake) ListSnapshotSets(ctx context.Context) ([]SnapshotSet, error) {
	f.ListSetCalls++
	out := append([]SnapshotSet(nil), f.Sets...)
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (f *Fake) ListArchives(ctx context.Context, setID string) ([]Archive, error) {
	f.ListArchiveCalls++
	if set := f.setByID(setID); set != nil {
		return append([]Archive(nil), set.Archives...), nil
	}
	return nil, &SetNotFoundError{Selector: setID}
}

func (f *Fake) Fetch(ctx context.Context, archive Archive, dst io.Writer) error {
	f.FetchCalls++
	if err := f.FailFetch[archive.Name]; err != nil {
		return &ArchiverError{Op: "fetch " + archive.Name, Err: err}
	}
	data, ok := f.Blobs[archive.SnapshotID]
	if !ok {
		return &ArchiverError{Op: "fetch " + archive.Name, Err: fmt.Errorf("no payload for snapshot %q", archive.SnapshotID)}
	}
	if _, err := dst.Write(data); err != nil {
		return &ArchiverError{Op: "fetch " + archive.Name, Err: err}
	}
	return nil
}

func (f *Fake) setByID(id string) *SnapshotSet {
	for i := range f.Sets {
		if f.Sets[i].ID == id {
			return &f.Sets[i]
		}
	}
	return nil
}
