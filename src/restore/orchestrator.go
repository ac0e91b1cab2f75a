// Package restore runs one restore pass: pick a snapshot-set, route each
// selected archive to a target, and stream it into a destination volume.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/steplov/pvtools/src/config"
	"github.com/steplov/pvtools/src/naming"
	"github.com/steplov/pvtools/src/repository"
	"github.com/steplov/pvtools/src/routing"
	"github.com/steplov/pvtools/src/storage"
)

// DestinationExistsError means the destination volume is already present
// and overwriting was not requested.
type DestinationExistsError struct {
	Volume string
	Target string
}

func (e *DestinationExistsError) Error() string {
	return fmt.Sprintf("destination volume %s already exists on target %s (use --force to overwrite)", e.Volume, e.Target)
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Providers []storage.Provider
	OpenRepo  func(alias string, repo config.Repository) (repository.Archiver, error)
	Log       zerolog.Logger
	Progress  io.Writer
}

// Options are per-invocation switches.
type Options struct {
	Repo     string
	Snapshot string // latest, a set ID, a unix epoch, or RFC3339
	All      bool
	Archives []string
	DryRun   bool
	Force    bool
}

// Run executes one restore run and reports per-archive outcomes. The
// returned error covers setup problems (unknown repository, no matching
// snapshot-set, empty selection); per-archive failures land in the
// report.
func Run(ctx context.Context, cfg *config.Config, deps Deps, opts Options) (*Report, error) {
	if !opts.All && len(opts.Archives) == 0 {
		return nil, errors.New("nothing selected: pass --all or --archive")
	}
	alias, repoCfg, err := cfg.ResolveRepo(opts.Repo)
	if err != nil {
		return nil, err
	}
	arch, err := deps.OpenRepo(alias, repoCfg)
	if err != nil {
		return nil, err
	}

	sets, err := arch.ListSnapshotSets(ctx)
	if err != nil {
		return nil, err
	}
	set, err := repository.Select(sets, opts.Snapshot)
	if err != nil {
		return nil, err
	}

	report := &Report{SetID: set.ID, Repo: alias, DryRun: opts.DryRun}
	deps.Log.Info().Str("repo", alias).Str("set", set.ID).Bool("dry_run", opts.DryRun).Msg("restore run starting")

	stopped := false
	for _, sel := range selectArchives(set, opts) {
		outcome := Item{Archive: sel.name, SizeBytes: sel.archive.SizeBytes}
		switch {
		case stopped:
			outcome.Status = StatusSkipped
			outcome.Error = "not attempted"
		case ctx.Err() != nil:
			stopped = true
			outcome.Status = StatusSkipped
			outcome.Error = "run interrupted"
		case !sel.found:
			outcome.Status = StatusFailed
			outcome.Error = fmt.Sprintf("archive not in snapshot set %s", set.ID)
		default:
			outcome = restoreOne(ctx, cfg, deps, arch, sel.archive, opts)
		}
		report.Items = append(report.Items, outcome)
	}
	return report, nil
}

type selected struct {
	name    string
	archive repository.Archive
	found   bool
}

// selectArchives keeps set order for --all and request order for
// explicit names. Unknown names stay in the result so they can be
// reported as failures instead of silently dropped.
func selectArchives(set repository.SnapshotSet, opts Options) []selected {
	if opts.All {
		out := make([]selected, 0, len(set.Archives))
		for _, a := range set.Archives {
			out = append(out, selected{name: a.Name, archive: a, found: true})
		}
		return out
	}
	byName := make(map[string]repository.Archive, len(set.Archives))
	for _, a := range set.Archives {
		byName[a.Name] = a
	}
	out := make([]selected, 0, len(opts.Archives))
	for _, name := range opts.Archives {
		a, ok := byName[name]
		out = append(out, selected{name: name, archive: a, found: ok})
	}
	return out
}

// restoreOne routes and, unless dry-running, materializes and fills one
// archive's destination volume.
func restoreOne(ctx context.Context, cfg *config.Config, deps Deps, arch repository.Archiver, archive repository.Archive, opts Options) Item {
	item := Item{Archive: archive.Name, SizeBytes: archive.SizeBytes}

	provider, leaf := archiveIdentity(archive)
	if provider == "" {
		item.Status = StatusFailed
		item.Error = fmt.Sprintf("cannot determine source provider of %q", archive.Name)
		return item
	}
	item.Provider = provider

	res, err := routing.Resolve(
		routing.Archive{Name: archive.Name, Provider: provider},
		cfg.Restore.RoutingRules(),
		cfg.Restore.RoutingTargets(),
		cfg.Restore.DefaultTarget,
	)
	if err != nil {
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}
	item.Target = res.Target
	item.Tier = string(res.Tier)

	target, ok := cfg.Restore.TargetByName(res.Target)
	if !ok {
		item.Status = StatusFailed
		item.Error = fmt.Sprintf("routed to unknown target %q", res.Target)
		return item
	}
	storageProvider, ok := storage.ByType(deps.Providers, target.Type)
	if !ok {
		item.Status = StatusFailed
		item.Error = fmt.Sprintf("no storage provider for type %q", target.Type)
		return item
	}

	if opts.DryRun {
		item.Volume = leaf
		item.Status = StatusPlanned
		return item
	}

	handle, err := storageProvider.MaterializeVolume(ctx, target.Destination(), leaf, archive.SizeBytes)
	if err != nil {
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}
	item.Volume = handle.Ref
	if handle.Existed && !opts.Force {
		item.Status = StatusFailed
		item.Error = (&DestinationExistsError{Volume: handle.Ref, Target: res.Target}).Error()
		return item
	}

	deps.Log.Info().Str("archive", archive.Name).Str("target", res.Target).Str("volume", handle.Ref).Msg("restoring archive")
	if err := fill(ctx, arch, archive, handle.DevicePath); err != nil {
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}
	item.Status = StatusRestored
	return item
}

// archiveIdentity recovers provider type and volume leaf name, preferring
// repository metadata and falling back to the archive name itself.
func archiveIdentity(archive repository.Archive) (provider, leaf string) {
	provider = archive.Provider
	leaf = archive.Volume
	if provider != "" && leaf != "" {
		return provider, leaf
	}
	parsed, err := naming.Parse(archive.Name)
	if err != nil {
		return provider, leaf
	}
	if provider == "" {
		provider = parsed.Provider
	}
	if leaf == "" {
		leaf = parsed.Leaf
	}
	return provider, leaf
}

// fill streams the archive into the destination device and syncs it.
func fill(ctx context.Context, arch repository.Archiver, archive repository.Archive, devicePath string) error {
	device, err := os.OpenFile(devicePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open destination device %s: %w", devicePath, err)
	}
	if err := arch.Fetch(ctx, archive, device); err != nil {
		device.Close()
		return err
	}
	if err := device.Sync(); err != nil {
		device.Close()
		return fmt.Errorf("sync destination device %s: %w", devicePath, err)
	}
	return device.Close()
}
