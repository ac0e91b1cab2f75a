// Package backup runs one backup pass: discover volumes, filter them,
// and drive each through the snapshot lifecycle into the repository.
package backup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/steplov/pvtools/src/config"
	"github.com/steplov/pvtools/src/filter"
	"github.com/steplov/pvtools/src/naming"
	"github.com/steplov/pvtools/src/repository"
	"github.com/steplov/pvtools/src/storage"
)

// Deps are the orchestrator's collaborators, injected so tests can run
// against fakes.
type Deps struct {
	Providers []storage.Provider
	// OpenRepo turns a resolved repository entry into an Archiver. In a
	// dry run it is never called.
	OpenRepo func(alias string, repo config.Repository) (repository.Archiver, error)
	Log      zerolog.Logger
	Progress io.Writer
}

// Options are per-invocation switches.
type Options struct {
	Repo   string // repository alias; empty falls back to the config default
	DryRun bool
}

type planItem struct {
	provider storage.Provider
	volume   storage.Volume
	archive  repository.Archive
}

// Run executes one backup run and reports per-volume outcomes. The
// returned error covers only setup problems (unknown repository,
// unlistable source); per-volume failures land in the report.
func Run(ctx context.Context, cfg *config.Config, deps Deps, opts Options, now time.Time) (*Report, error) {
	alias, repoCfg, err := cfg.ResolveRepo(opts.Repo)
	if err != nil {
		return nil, err
	}

	volumes, err := discover(ctx, cfg, deps.Providers)
	if err != nil {
		return nil, err
	}

	rule := filter.Rule{Prefixes: cfg.Filter.Prefixes, Exclude: cfg.Filter.Pattern()}
	plan := make([]planItem, 0, len(volumes))
	seen := map[string]struct{}{}
	for _, entry := range volumes {
		if !rule.InScope(entry.volume.Name) {
			deps.Log.Debug().Str("volume", entry.volume.Name).Msg("volume filtered out")
			continue
		}
		name := naming.ArchiveName(entry.volume.Provider, entry.volume.Name, entry.volume.UID)
		item := planItem{
			provider: entry.provider,
			volume:   entry.volume,
			archive: repository.Archive{
				Name:      name,
				Provider:  entry.volume.Provider,
				Volume:    entry.volume.Name,
				SizeBytes: entry.volume.SizeBytes,
			},
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("archive name %q is not unique within this run (volume %s)", name, entry.volume.Ref)
		}
		seen[name] = struct{}{}
		plan = append(plan, item)
	}

	report := &Report{SetID: repository.NewSetID(now), Repo: alias, DryRun: opts.DryRun}

	if opts.DryRun {
		for _, item := range plan {
			report.Items = append(report.Items, Item{
				Archive:   item.archive.Name,
				Provider:  item.volume.Provider,
				Volume:    item.volume.Name,
				SizeBytes: item.volume.SizeBytes,
				Status:    StatusPlanned,
			})
		}
		return report, nil
	}

	arch, err := deps.OpenRepo(alias, repoCfg)
	if err != nil {
		return nil, err
	}
	if err := arch.Ensure(ctx); err != nil {
		return nil, err
	}

	deps.Log.Info().Str("repo", alias).Str("set", report.SetID).Int("volumes", len(plan)).Msg("backup run starting")

	stopped := false
	for _, item := range plan {
		outcome := Item{
			Archive:   item.archive.Name,
			Provider:  item.volume.Provider,
			Volume:    item.volume.Name,
			SizeBytes: item.volume.SizeBytes,
		}
		switch {
		case stopped:
			outcome.Status = StatusSkipped
			outcome.Error = "not attempted"
		case ctx.Err() != nil:
			stopped = true
			outcome.Status = StatusSkipped
			outcome.Error = "run interrupted"
		default:
			lc := &Lifecycle{Provider: item.provider, Archiver: arch, Log: deps.Log, Progress: deps.Progress}
			if err := lc.Run(ctx, report.SetID, item.volume, item.archive); err != nil {
				deps.Log.Error().Err(err).Str("volume", item.volume.Name).Msg("volume backup failed")
				outcome.Status = StatusFailed
				outcome.Error = err.Error()
				if cfg.Backup.FailFast {
					stopped = true
				}
			} else {
				outcome.Status = StatusCommitted
			}
		}
		report.Items = append(report.Items, outcome)
	}
	return report, nil
}

type discovered struct {
	provider storage.Provider
	volume   storage.Volume
}

// discover lists every configured source in declaration order. The merge
// order is stable so reports and dry runs are reproducible.
func discover(ctx context.Context, cfg *config.Config, providers []storage.Provider) ([]discovered, error) {
	var out []discovered
	for _, p := range providers {
		var sources []string
		switch p.Type() {
		case storage.TypeZFS:
			sources = cfg.ZFS.Pools
		case storage.TypeLVMThin:
			sources = cfg.LVMThin.VolumeGroups
		}
		for _, source := range sources {
			vols, err := p.ListVolumes(ctx, source)
			if err != nil {
				return nil, err
			}
			for _, vol := range vols {
				out = append(out, discovered{provider: p, volume: vol})
			}
		}
	}
	return out, nil
}
