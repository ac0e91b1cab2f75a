package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FakeProvider is an in-memory Provider for unit tests. Snapshot devices
// and materialized destinations are plain files under Dir, so the real
// open/stream code paths run against it unchanged. Calls are counted so
// tests can assert mutation behavior (dry-run, cleanup invariants).
type FakeProvider struct {
	Kind string // provider type tag to report
	Dir  string // scratch directory backing fake devices

	VolumesBySource map[string][]Volume
	Content         map[string][]byte // volume ref -> snapshot payload
	Existing        map[string]bool   // destination names that pre-exist

	FailCreate      map[string]error // volume ref -> CreateSnapshot error
	FailDelete      map[string]error // snapshot ref -> DeleteSnapshot error
	FailMaterialize map[string]error // destination name -> error

	ListCalls        int
	CreateCalls      int
	DeleteCalls      int
	MaterializeCalls int

	CreatedSnapshots []string
	DeletedSnapshots []string
	live             map[string]bool
}

func NewFake(kind, dir string) *FakeProvider {
	return &FakeProvider{
		Kind:            kind,
		Dir:             dir,
		VolumesBySource: map[string][]Volume{},
		Content:         map[string][]byte{},
		Existing:        map[string]bool{},
		FailCreate:      map[string]error{},
		FailDelete:      map[string]error{},
		FailMaterialize: map[string]error{},
		live:            map[string]bool{},
	}
}

// AddVolume registers a volume under source with the payload its
// snapshots will expose.
func (f *FakeProvider) AddVolume(source string, vol Volume, content []byte) {
	vol.Provider = f.Kind
	vol.Source = source
	if vol.Ref == "" {
		vol.Ref = source + "/" + vol.Name
	}
	if vol.SizeBytes == 0 {
		vol.SizeBytes = int64(len(content))
	}
	f.VolumesBySource[source] = append(f.VolumesBySource[source], vol)
	f.Content[vol.Ref] = content
}

func (f *FakeProvider) Type() string { return f.Kind }

func (f *FakeProvider) ListVolumes(ctx context.Context, source string) ([]Volume, error) {
	f.ListCalls++
	return append([]Volume(nil), f.VolumesBySource[source]...), nil
}

func (f *FakeProvider) CreateSnapshot(ctx context.Context, vol Volume) (Snapshot, error) {
	f.CreateCalls++
	if err := f.FailCreate[vol.Ref]; err != nil {
		return Snapshot{}, &ProviderError{Provider: f.Kind, Op: "snapshot", Ref: vol.Ref, Err: err}
	}
	ref := vol.Ref + "@fake"
	device := filepath.Join(f.Dir, fmt.Sprintf("snap-%d-%s", f.CreateCalls, vol.Name))
	if err := os.WriteFile(device, f.Content[vol.Ref], 0o600); err != nil {
		return Snapshot{}, &ProviderError{Provider: f.Kind, Op: "snapshot", Ref: vol.Ref, Err: err}
	}
	f.CreatedSnapshots = append(f.CreatedSnapshots, ref)
	f.live[ref] = true
	return Snapshot{Volume: vol, Ref: ref, DevicePath: device}, nil
}

func (f *FakeProvider) DeleteSnapshot(ctx context.Context, snap Snapshot) error {
	f.DeleteCalls++
	if err := f.FailDelete[snap.Ref]; err != nil {
		return &ProviderError{Provider: f.Kind, Op: "delete", Ref: snap.Ref, Err: err}
	}
	// Idempotent like the real providers: unknown refs are fine.
	delete(f.live, snap.Ref)
	if snap.DevicePath != "" {
		_ = os.Remove(snap.DevicePath)
	}
	f.DeletedSnapshots = append(f.DeletedSnapshots, snap.Ref)
	return nil
}

func (f *FakeProvider) MaterializeVolume(ctx context.Context, dest Destination, name string, sizeBytes int64) (VolumeHandle, error) {
	f.MaterializeCalls++
	if err := f.FailMaterialize[name]; err != nil {
		return VolumeHandle{}, &ProviderError{Provider: f.Kind, Op: "materialize", Ref: name, Err: err}
	}
	device := filepath.Join(f.Dir, "dest-"+name)
	existed := f.Existing[name]
	if _, err := os.Stat(device); err != nil {
		if err := os.WriteFile(device, nil, 0o600); err != nil {
			return VolumeHandle{}, &ProviderError{Provider: f.Kind, Op: "materialize", Ref: name, Err: err}
		}
	} else {
		existed = true
	}
	return VolumeHandle{Name: name, Ref: "fake/" + name, DevicePath: device, Existed: existed}, nil
}

// LiveSnapshots returns refs created but not yet deleted, sorted.
func (f *FakeProvider) LiveSnapshots() []string {
	out := make([]string, 0, len(f.live))
	for ref := range f.live {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}
