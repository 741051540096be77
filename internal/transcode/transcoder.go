// Package transcode turns raw captures into streamable video with an
// external encoder, one recording per tick.
package transcode

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/fileloc"
	"github.com/snarg/aerial/internal/metrics"
)

// locationID for files written by this node. Multi-location storage keeps
// the column; a single server always writes location 1.
const locationID = 1

// Store is the slice of the database the transcoder needs.
type Store interface {
	RecordingsToTranscode(ctx context.Context) ([]database.FileRef, error)
	RecordingDuration(ctx context.Context, recordingID int) (time.Duration, error)
	InsertTranscodedFileLocation(ctx context.Context, recordingID, locationID int, filename string, state int) error
}

// Runner executes the encoder command; satisfied by capture.NewExecRunner.
type Runner interface {
	Run(ctx context.Context, logFile *os.File, name string, args ...string) error
}

// Preset names, keyed off the measured source bitrate.
const (
	PresetLow    = "low"
	PresetMedium = "medium"
	PresetHigh   = "high"
)

type Transcoder struct {
	store      Store
	runner     Runner
	commands   map[string]string // preset → command template
	outputPath string
	logPath    string
	log        zerolog.Logger

	busy atomic.Bool
}

func New(store Store, runner Runner, low, medium, high, outputPath, logPath string, log zerolog.Logger) *Transcoder {
	return &Transcoder{
		store:  store,
		runner: runner,
		commands: map[string]string{
			PresetLow:    low,
			PresetMedium: medium,
			PresetHigh:   high,
		},
		outputPath: outputPath,
		logPath:    logPath,
		log:        log,
	}
}

// Tick processes at most one recording awaiting transcode. Overlapping
// ticks no-op; a long encode simply absorbs the following ticks.
func (t *Transcoder) Tick(ctx context.Context) {
	if !t.busy.CompareAndSwap(false, true) {
		return
	}
	defer t.busy.Store(false)

	recs, err := t.store.RecordingsToTranscode(ctx)
	if err != nil {
		t.log.Error().Err(err).Msg("failed to query recordings to transcode")
		return
	}
	for _, rec := range recs[:min(1, len(recs))] {
		t.transcode(ctx, rec)
	}
}

func (t *Transcoder) transcode(ctx context.Context, rec database.FileRef) {
	log := t.log.With().Int("recording_id", rec.RecordingID).Str("source", rec.Filename).Logger()

	duration, err := t.store.RecordingDuration(ctx, rec.RecordingID)
	if err != nil {
		log.Error().Err(err).Msg("failed to read recording duration")
		return
	}

	bitrate := megabitsPerSecond(rec.Filename, duration)
	preset := selectPreset(bitrate)
	log.Info().Int("bitrate_mbps", bitrate).Str("preset", preset).Msg("transcoding")

	destFile := fileloc.Expand(t.outputPath, rec.RecordingID)
	logFile := fileloc.Expand(t.logPath, rec.RecordingID)

	lf, err := os.Create(logFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to create transcode log")
		return
	}
	defer lf.Close()

	command := fileloc.Expand(t.commands[preset], rec.RecordingID)
	fields := strings.Fields(command)
	if len(fields) == 0 {
		log.Error().Str("preset", preset).Msg("empty transcode command")
		return
	}

	state := database.TranscodeSuccess
	result := "ok"
	if err := t.runner.Run(ctx, lf, fields[0], fields[1:]...); err != nil {
		log.Error().Err(err).Msg("transcode failed")
		state = database.TranscodeFailureState
		result = "failed"
	}

	err = t.store.InsertTranscodedFileLocation(ctx, rec.RecordingID, locationID, destFile, state)
	if err != nil {
		log.Error().Err(err).Msg("failed to record transcode outcome")
		return
	}
	log.Info().Str("dest", destFile).Int("state", state).Msg("transcode recorded")
	metrics.TranscodesTotal.WithLabelValues(preset, result).Inc()
}

// megabitsPerSecond measures the source file's average bitrate in Mb/s.
// A missing file or zero duration yields 0.
func megabitsPerSecond(filename string, duration time.Duration) int {
	info, err := os.Stat(filename)
	if err != nil {
		return 0
	}
	seconds := duration.Seconds()
	if seconds == 0 {
		return 0
	}
	return int(float64(info.Size()) / seconds / 125000)
}

// selectPreset maps a measured bitrate to an encoder preset. Unknown (0)
// defaults to medium.
func selectPreset(bitrateMbps int) string {
	switch {
	case bitrateMbps == 0:
		return PresetMedium
	case bitrateMbps < 3:
		return PresetLow
	case bitrateMbps < 8:
		return PresetMedium
	default:
		return PresetHigh
	}
}
