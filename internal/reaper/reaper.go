// Package reaper reconciles file-location rows against the recording table
// and removes files from disk that no row needs anymore.
package reaper

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/metrics"
)

// Store is the slice of the database the reaper needs.
type Store interface {
	UnreferencedRawFiles(ctx context.Context) ([]database.FileRef, error)
	UnreferencedTranscodedFiles(ctx context.Context) ([]database.FileRef, error)
	UnreferencedBifFiles(ctx context.Context) ([]database.FileRef, error)
	SupersededRawFiles(ctx context.Context) ([]database.FileRef, error)
	DeleteRawFileRecord(ctx context.Context, recordingID int) error
	DeleteTranscodedFileRecord(ctx context.Context, recordingID int) error
	DeleteBifFileRecord(ctx context.Context, recordingID int) error
}

type Reaper struct {
	store Store
	log   zerolog.Logger
	mu    sync.Mutex

	// remove is swapped in tests; defaults to os.Remove.
	remove func(string) error
}

func New(store Store, log zerolog.Logger) *Reaper {
	return &Reaper{store: store, log: log, remove: os.Remove}
}

// Tick runs one full sweep. The mutex covers the whole sweep so overlapping
// ticks queue rather than interleave.
func (r *Reaper) Tick(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info().Msg("reaping unneeded files")
	r.purge(ctx, "raw_orphan", r.store.UnreferencedRawFiles, r.store.DeleteRawFileRecord)
	r.purge(ctx, "transcoded_orphan", r.store.UnreferencedTranscodedFiles, r.store.DeleteTranscodedFileRecord)
	r.purge(ctx, "bif_orphan", r.store.UnreferencedBifFiles, r.store.DeleteBifFileRecord)
	r.purge(ctx, "raw_superseded", r.store.SupersededRawFiles, r.store.DeleteRawFileRecord)
}

func (r *Reaper) purge(ctx context.Context,
	kind string,
	query func(context.Context) ([]database.FileRef, error),
	deleteRecord func(context.Context, int) error,
) {
	refs, err := query(ctx)
	if err != nil {
		r.log.Error().Err(err).Str("kind", kind).Msg("reaper query failed")
		return
	}
	for _, ref := range refs {
		log := r.log.With().Str("kind", kind).Int("recording_id", ref.RecordingID).Str("file", ref.Filename).Logger()
		if err := r.remove(ref.Filename); err != nil {
			if os.IsNotExist(err) {
				log.Info().Msg("file already gone")
			} else {
				log.Error().Err(err).Msg("failed to delete file")
				continue
			}
		} else {
			log.Info().Msg("file deleted")
		}
		if err := deleteRecord(ctx, ref.RecordingID); err != nil {
			log.Error().Err(err).Msg("failed to delete file record")
			continue
		}
		metrics.ReapedFilesTotal.WithLabelValues(kind).Inc()
	}
}
