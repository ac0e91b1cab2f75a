package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

const lvmDevDir = "/dev"

// LVMThinProvider drives thin-provisioned LVs through the lvm2 CLIs.
type LVMThinProvider struct{}

func NewLVMThin() *LVMThinProvider { return &LVMThinProvider{} }

func (p *LVMThinProvider) Type() string { return TypeLVMThin }

type lvsReport struct {
	Report []struct {
		LV []lvsRow `json:"lv"`
	} `json:"report"`
}

type lvsRow struct {
	Name    string `json:"lv_name"`
	VG      string `json:"vg_name"`
	Size    string `json:"lv_size"`
	PoolLV  string `json:"pool_lv"`
	Origin  string `json:"origin"`
	UUID    string `json:"lv_uuid"`
	SegType string `json:"segtype"`
}

// ListVolumes enumerates thin LVs in the volume group. Thin snapshots
// (origin set) are skipped; they are transient pvtools artifacts or
// foreign snapshots, not backup candidates.
func (p *LVMThinProvider) ListVolumes(ctx context.Context, source string) ([]Volume, error) {
	stdout, stderr, err := runCommand(ctx, "lvs", "--reportformat", "json", "--units", "b", "--nosuffix",
		"-o", "lv_name,vg_name,lv_size,pool_lv,origin,lv_uuid,segtype", source)
	if err != nil {
		return nil, &ProviderError{Provider: TypeLVMThin, Op: "list", Ref: source, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	var report lvsReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		return nil, &ProviderError{Provider: TypeLVMThin, Op: "list", Ref: source, Err: fmt.Errorf("parse lvs json: %w", err)}
	}
	var vols []Volume
	for _, group := range report.Report {
		for _, row := range group.LV {
			if row.SegType != "thin" || row.Origin != "" {
				continue
			}
			size, err := strconv.ParseInt(row.Size, 10, 64)
			if err != nil {
				return nil, &ProviderError{Provider: TypeLVMThin, Op: "list", Ref: row.Name, Err: fmt.Errorf("parse lv_size %q: %w", row.Size, err)}
			}
			vols = append(vols, Volume{
				Provider:  TypeLVMThin,
				Source:    source,
				Name:      row.Name,
				Ref:       row.VG + "/" + row.Name,
				SizeBytes: size,
				UID:       shortLVUUID(row.UUID),
			})
		}
	}
	return vols, nil
}

// CreateSnapshot takes a thin snapshot and activates it; thin snapshots
// are skipped by autoactivation, hence the explicit -K.
func (p *LVMThinProvider) CreateSnapshot(ctx context.Context, vol Volume) (Snapshot, error) {
	suffix := "tmppv-" + time.Now().UTC().Format("20060102T150405Z")
	snapName := vol.Name + "-" + suffix
	vg := volumeGroupOf(vol)
	snapRef := vg + "/" + snapName

	if _, stderr, err := runCommand(ctx, "lvcreate", "-s", "-n", snapName, vol.Ref); err != nil {
		return Snapshot{}, &ProviderError{Provider: TypeLVMThin, Op: "snapshot", Ref: snapRef, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	snap := Snapshot{
		Volume:     vol,
		Ref:        snapRef,
		DevicePath: path.Join(lvmDevDir, vg, snapName),
	}
	if _, stderr, err := runCommand(ctx, "lvchange", "-K", "-ay", snapRef); err != nil {
		return snap, &ProviderError{Provider: TypeLVMThin, Op: "activate", Ref: snapRef, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	if err := waitForDevice(ctx, snap.DevicePath); err != nil {
		return snap, &ProviderError{Provider: TypeLVMThin, Op: "activate", Ref: snapRef, Err: err}
	}
	return snap, nil
}

// DeleteSnapshot removes the snapshot LV; an already-removed LV is
// success.
func (p *LVMThinProvider) DeleteSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.Ref == "" {
		return nil
	}
	if _, stderr, err := runCommand(ctx, "lvremove", "-f", snap.Ref); err != nil && !lvmAbsent(stderr) {
		return &ProviderError{Provider: TypeLVMThin, Op: "remove", Ref: snap.Ref, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	return nil
}

// MaterializeVolume ensures a thin LV named name exists in the target
// thinpool and is active.
func (p *LVMThinProvider) MaterializeVolume(ctx context.Context, dest Destination, name string, sizeBytes int64) (VolumeHandle, error) {
	ref := dest.VolumeGroup + "/" + name
	handle := VolumeHandle{Name: name, Ref: ref, DevicePath: path.Join(lvmDevDir, dest.VolumeGroup, name)}

	if _, _, err := runCommand(ctx, "lvs", "--noheadings", "-o", "lv_name", ref); err == nil {
		handle.Existed = true
		if _, stderr, err := runCommand(ctx, "lvchange", "-K", "-ay", ref); err != nil {
			return VolumeHandle{}, &ProviderError{Provider: TypeLVMThin, Op: "activate", Ref: ref, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
		}
		return handle, nil
	}
	if _, stderr, err := runCommand(ctx, "lvcreate", "-V", strconv.FormatInt(sizeBytes, 10)+"b",
		"-T", dest.VolumeGroup+"/"+dest.Thinpool, "-n", name); err != nil {
		return VolumeHandle{}, &ProviderError{Provider: TypeLVMThin, Op: "create", Ref: ref, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	if _, stderr, err := runCommand(ctx, "lvchange", "-K", "-ay", ref); err != nil {
		return VolumeHandle{}, &ProviderError{Provider: TypeLVMThin, Op: "activate", Ref: ref, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	if err := waitForDevice(ctx, handle.DevicePath); err != nil {
		return VolumeHandle{}, &ProviderError{Provider: TypeLVMThin, Op: "create", Ref: ref, Err: err}
	}
	return handle, nil
}

func volumeGroupOf(vol Volume) string {
	if i := strings.Index(vol.Ref, "/"); i > 0 {
		return vol.Ref[:i]
	}
	return vol.Source
}

func lvmAbsent(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "failed to find logical volume")
}

// shortLVUUID condenses an lv_uuid into the 8-char id used in archive
// names.
func shortLVUUID(uuid string) string {
	s := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}
