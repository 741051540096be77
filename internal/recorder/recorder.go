// Package recorder glues the scheduler's fired capture jobs to the capture
// driver and the store.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/capture"
	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/fileloc"
	"github.com/snarg/aerial/internal/metrics"
)

// Store is the slice of the database the recorder needs.
type Store interface {
	AllocateRecordingID(ctx context.Context) (int, error)
	InsertRecording(ctx context.Context, recordingID int, showID, episodeID string, duration time.Duration, categoryCode string) error
	InsertRawFileLocation(ctx context.Context, recordingID int, filename string) error
}

// Driver captures one airing to disk.
type Driver interface {
	Capture(ctx context.Context, channelMajor, channelMinor int, stopTime time.Time, destFile, logFile string) error
}

type Recorder struct {
	store     Store
	driver    Driver
	videoPath string // template containing {recordingID}
	logPath   string
	log       zerolog.Logger
}

func New(store Store, driver Driver, videoPath, logPath string, log zerolog.Logger) *Recorder {
	return &Recorder{
		store:     store,
		driver:    driver,
		videoPath: videoPath,
		logPath:   logPath,
		log:       log,
	}
}

// Capture records one planned airing. The recording stub is written before
// the capture starts, so the row exists even when the capture fails. The
// stub alone does not stop the episode from being planned again: only a raw
// or transcoded file row does. A failed capture leaves the stub, which
// FindInconsistencies reports as a recording without files.
func (r *Recorder) Capture(ctx context.Context, plan database.PlannedRecording) {
	log := r.log.With().
		Str("show_id", plan.ShowID).
		Str("episode_id", plan.EpisodeID).
		Int("channel_major", plan.ChannelMajor).
		Int("channel_minor", plan.ChannelMinor).
		Logger()
	log.Info().Time("start_time", plan.StartTime).Msg("recording")

	recordingID, err := r.store.AllocateRecordingID(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to allocate recording id")
		metrics.CapturesTotal.WithLabelValues("error").Inc()
		return
	}

	destFile := fileloc.Expand(r.videoPath, recordingID)
	logFile := fileloc.Expand(r.logPath, recordingID)
	stopTime := plan.StartTime.Add(plan.Duration)

	err = r.store.InsertRecording(ctx, recordingID, plan.ShowID, plan.EpisodeID, plan.Duration, plan.RerunCode)
	if err != nil {
		log.Error().Err(err).Int("recording_id", recordingID).Msg("failed to insert recording stub")
		metrics.CapturesTotal.WithLabelValues("error").Inc()
		return
	}

	err = r.driver.Capture(ctx, plan.ChannelMajor, plan.ChannelMinor, stopTime, destFile, logFile)
	switch {
	case err == nil:
		if err := r.store.InsertRawFileLocation(ctx, recordingID, destFile); err != nil {
			log.Error().Err(err).Int("recording_id", recordingID).Msg("capture succeeded but raw location insert failed")
			metrics.CapturesTotal.WithLabelValues("error").Inc()
			return
		}
		log.Info().Int("recording_id", recordingID).Msg("recording succeeded")
		metrics.CapturesTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, capture.ErrUnknownChannel),
		errors.Is(err, capture.ErrNoTuner),
		errors.Is(err, capture.ErrCaptureFailed):
		log.Error().Err(err).Int("recording_id", recordingID).Msg("recording failed")
		metrics.CapturesTotal.WithLabelValues("failed").Inc()
	default:
		log.Error().Err(err).Int("recording_id", recordingID).Msg("recording aborted")
		metrics.CapturesTotal.WithLabelValues("error").Inc()
	}
}
