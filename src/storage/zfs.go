package storage

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

const zvolDevDir = "/dev/zvol"

// ZFSProvider drives zvol-backed volumes through the zfs CLI. Snapshots
// are not directly readable as block devices, so a backup snapshot is
// paired with a readonly clone whose device node is streamed instead.
type ZFSProvider struct{}

func NewZFS() *ZFSProvider { return &ZFSProvider{} }

func (p *ZFSProvider) Type() string { return TypeZFS }

// ListVolumes enumerates zvols below the source dataset. Clones are
// skipped: they share blocks with their origin and backing them up as
// independent volumes duplicates data and identity.
func (p *ZFSProvider) ListVolumes(ctx context.Context, source string) ([]Volume, error) {
	stdout, stderr, err := runCommand(ctx, "zfs", "list", "-Hp", "-o", "name,volsize,origin,guid", "-t", "volume", "-r", source)
	if err != nil {
		return nil, &ProviderError{Provider: TypeZFS, Op: "list", Ref: source, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	var vols []Volume
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, &ProviderError{Provider: TypeZFS, Op: "list", Ref: source, Err: fmt.Errorf("unexpected zfs list line %q", line)}
		}
		name, volsize, origin, guid := fields[0], fields[1], fields[2], fields[3]
		if origin != "-" {
			continue
		}
		size, err := strconv.ParseInt(volsize, 10, 64)
		if err != nil {
			return nil, &ProviderError{Provider: TypeZFS, Op: "list", Ref: name, Err: fmt.Errorf("parse volsize %q: %w", volsize, err)}
		}
		uid, err := shortGUID(guid)
		if err != nil {
			return nil, &ProviderError{Provider: TypeZFS, Op: "list", Ref: name, Err: err}
		}
		vols = append(vols, Volume{
			Provider:  TypeZFS,
			Source:    source,
			Name:      path.Base(name),
			Ref:       name,
			SizeBytes: size,
			UID:       uid,
		})
	}
	return vols, nil
}

// CreateSnapshot snapshots the zvol and clones the snapshot readonly with
// volmode=dev so a /dev/zvol node exists to stream from.
func (p *ZFSProvider) CreateSnapshot(ctx context.Context, vol Volume) (Snapshot, error) {
	suffix := "tmppv-" + time.Now().UTC().Format("20060102T150405Z")
	snapRef := vol.Ref + "@" + suffix
	cloneRef := vol.Ref + "-" + suffix

	if _, stderr, err := runCommand(ctx, "zfs", "snapshot", snapRef); err != nil {
		return Snapshot{}, &ProviderError{Provider: TypeZFS, Op: "snapshot", Ref: snapRef, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	if _, stderr, err := runCommand(ctx, "zfs", "clone", "-o", "readonly=on", "-o", "volmode=dev", snapRef, cloneRef); err != nil {
		// The snapshot exists but is unusable without its clone; hand it
		// back so the caller's cleanup still runs.
		snap := Snapshot{Volume: vol, Ref: snapRef}
		return snap, &ProviderError{Provider: TypeZFS, Op: "clone", Ref: cloneRef, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	snap := Snapshot{
		Volume:     vol,
		Ref:        snapRef,
		CloneRef:   cloneRef,
		DevicePath: path.Join(zvolDevDir, cloneRef),
	}
	if err := waitForDevice(ctx, snap.DevicePath); err != nil {
		return snap, &ProviderError{Provider: TypeZFS, Op: "clone", Ref: cloneRef, Err: err}
	}
	return snap, nil
}

// DeleteSnapshot destroys the clone, then the snapshot. Already-absent
// datasets are treated as success.
func (p *ZFSProvider) DeleteSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.CloneRef != "" {
		if _, stderr, err := runCommand(ctx, "zfs", "destroy", snap.CloneRef); err != nil && !zfsAbsent(stderr) {
			return &ProviderError{Provider: TypeZFS, Op: "destroy", Ref: snap.CloneRef, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
		}
	}
	if snap.Ref != "" {
		if _, stderr, err := runCommand(ctx, "zfs", "destroy", snap.Ref); err != nil && !zfsAbsent(stderr) {
			return &ProviderError{Provider: TypeZFS, Op: "destroy", Ref: snap.Ref, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
		}
	}
	return nil
}

// MaterializeVolume ensures a zvol named name exists under the target
// dataset. An existing zvol is left untouched and reported via Existed.
func (p *ZFSProvider) MaterializeVolume(ctx context.Context, dest Destination, name string, sizeBytes int64) (VolumeHandle, error) {
	ref := dest.Dataset + "/" + name
	handle := VolumeHandle{Name: name, Ref: ref, DevicePath: path.Join(zvolDevDir, ref)}

	if _, _, err := runCommand(ctx, "zfs", "list", "-Hp", "-o", "name", ref); err == nil {
		handle.Existed = true
		return handle, nil
	}
	if _, stderr, err := runCommand(ctx, "zfs", "create", "-s", "-o", "volmode=dev", "-V", strconv.FormatInt(sizeBytes, 10), ref); err != nil {
		return VolumeHandle{}, &ProviderError{Provider: TypeZFS, Op: "create", Ref: ref, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))}
	}
	if err := waitForDevice(ctx, handle.DevicePath); err != nil {
		return VolumeHandle{}, &ProviderError{Provider: TypeZFS, Op: "create", Ref: ref, Err: err}
	}
	return handle, nil
}

func zfsAbsent(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "does not exist") || strings.Contains(s, "could not find any snapshots")
}

// shortGUID renders the decimal zfs guid as 8 hex chars, the stable
// volume id embedded in archive names.
func shortGUID(guid string) (string, error) {
	g, err := strconv.ParseUint(guid, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse guid %q: %w", guid, err)
	}
	return fmt.Sprintf("%016x", g)[:8], nil
}
