// Package storage abstracts the node's volume backends (ZFS zvols, LVM
// thin volumes) behind a narrow provider contract.
package storage

import (
	"context"
	"fmt"
)

// Provider type tags. A Volume or restore target carries one of these;
// provider selection is always by tag, never by inspecting names.
const (
	TypeZFS     = "zfs"
	TypeLVMThin = "lvmthin"
)

// Volume is a discovery-time view of one backup candidate. Values are a
// snapshot of storage-layer state at scan time and are discarded after
// the run.
type Volume struct {
	Provider  string // TypeZFS or TypeLVMThin
	Source    string // configured discovery source (pool dataset or VG)
	Name      string // leaf name, the unit filtering applies to
	Ref       string // provider-qualified reference (dataset or vg/lv)
	SizeBytes int64
	UID       string // 8 hex chars from the zfs guid / lv uuid
}

// Snapshot is a temporary, read-only capture of one Volume. It exists
// only for the duration of a single backup step.
type Snapshot struct {
	Volume     Volume
	Ref        string // snapshot reference (dataset@snap or vg/snap-lv)
	CloneRef   string // zfs only: the readonly clone exposing the device
	DevicePath string // block device to stream from
}

// Destination carries the provider-specific parameters of a restore
// target (exactly one provider's fields are set).
type Destination struct {
	Dataset     string // zfs: parent dataset for new zvols
	VolumeGroup string // lvmthin
	Thinpool    string // lvmthin
}

// VolumeHandle is a materialized restore destination. Existed reports
// whether the volume was already present; materializing an existing
// volume never touches its data.
type VolumeHandle struct {
	Name       string
	Ref        string
	DevicePath string
	Existed    bool
}

// Provider is the storage backend contract. Keep it at these four
// operations so every implementation stays trivially fakeable.
type Provider interface {
	Type() string
	ListVolumes(ctx context.Context, source string) ([]Volume, error)
	CreateSnapshot(ctx context.Context, vol Volume) (Snapshot, error)
	// DeleteSnapshot is idempotent: deleting an already-absent snapshot
	// succeeds.
	DeleteSnapshot(ctx context.Context, snap Snapshot) error
	MaterializeVolume(ctx context.Context, dest Destination, name string, sizeBytes int64) (VolumeHandle, error)
}

// ProviderError wraps a storage tool failure with enough context to
// report it per item.
type ProviderError struct {
	Provider string
	Op       string
	Ref      string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Provider, e.Op, e.Ref, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ByType returns the provider carrying the wanted type tag.
func ByType(providers []Provider, typ string) (Provider, bool) {
	for _, p := range providers {
		if p.Type() == typ {
			return p, true
		}
	}
	return nil, false
}
