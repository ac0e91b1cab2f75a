package backup

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/steplov/pvtools/src/repository"
	"github.com/steplov/pvtools/src/storage"
	pg "github.com/steplov/pvtools/src/util/progress"
)

// SnapState tracks one temporary snapshot through its life.
type SnapState int

const (
	SnapAbsent SnapState = iota
	SnapCreated
	SnapStreaming
	SnapCommitted
	SnapFailed
	SnapCleaned
)

func (s SnapState) String() string {
	switch s {
	case SnapAbsent:
		return "absent"
	case SnapCreated:
		return "created"
	case SnapStreaming:
		return "streaming"
	case SnapCommitted:
		return "committed"
	case SnapFailed:
		return "failed"
	case SnapCleaned:
		return "cleaned"
	}
	return fmt.Sprintf("SnapState(%d)", int(s))
}

// Lifecycle drives one volume through snapshot, stream, cleanup. The
// temporary snapshot never outlives the attempt that created it: once
// CreateSnapshot has run, DeleteSnapshot runs on every exit path,
// cancellation included.
type Lifecycle struct {
	Provider storage.Provider
	Archiver repository.Archiver
	Log      zerolog.Logger
	Progress io.Writer
}

// Run captures vol into archive within the snapshot-set setID. The
// returned error is the primary failure; cleanup problems are logged as
// warnings and never replace it.
func (l *Lifecycle) Run(ctx context.Context, setID string, vol storage.Volume, archive repository.Archive) (err error) {
	state := SnapAbsent
	log := l.Log.With().Str("provider", vol.Provider).Str("volume", vol.Name).Logger()

	snap, createErr := l.Provider.CreateSnapshot(ctx, vol)
	if snap.Ref != "" {
		defer func() {
			// Deletion still runs after an interrupt; the surrounding
			// context may already be cancelled.
			cleanupCtx := context.WithoutCancel(ctx)
			if delErr := l.Provider.DeleteSnapshot(cleanupCtx, snap); delErr != nil {
				log.Warn().Err(delErr).Str("snapshot", snap.Ref).Msg("snapshot cleanup failed")
				return
			}
			l.transition(log, &state, SnapCleaned)
		}()
	}
	if createErr != nil {
		return createErr
	}
	l.transition(log, &state, SnapCreated)

	device, err := os.Open(snap.DevicePath)
	if err != nil {
		l.transition(log, &state, SnapFailed)
		return &storage.ProviderError{Provider: vol.Provider, Op: "open snapshot device", Ref: snap.DevicePath, Err: err}
	}
	defer device.Close()

	var data io.Reader = device
	if l.Progress != nil {
		data = pg.NewReader(device, vol.SizeBytes, "backup "+vol.Name, l.Progress)
	}

	l.transition(log, &state, SnapStreaming)
	if err := l.Archiver.Stream(ctx, setID, archive, data); err != nil {
		l.transition(log, &state, SnapFailed)
		return err
	}
	l.transition(log, &state, SnapCommitted)
	return nil
}

func (l *Lifecycle) transition(log zerolog.Logger, state *SnapState, next SnapState) {
	log.Debug().Stringer("from", *state).Stringer("to", next).Msg("snapshot state")
	*state = next
}
