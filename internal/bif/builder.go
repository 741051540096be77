package bif

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/fileloc"
	"github.com/snarg/aerial/internal/metrics"
)

const locationID = 1

// Store is the slice of the database the builder needs.
type Store interface {
	RecordingsToBif(ctx context.Context) ([]database.FileRef, error)
	InsertBifFileLocation(ctx context.Context, recordingID, locationID int, filename string) error
}

// Runner executes the frame extractor; satisfied by capture.NewExecRunner.
type Runner interface {
	Run(ctx context.Context, logFile *os.File, name string, args ...string) error
}

// Builder extracts frames from transcoded recordings and assembles them
// into BIF files, one recording per tick.
type Builder struct {
	store           Store
	runner          Runner
	imageCommand    string // template with {videoFile}, {framesPerSecond}, {imageDir}
	imageDir        string
	outputPath      string // template with {recordingID}
	frameIntervalMS int
	log             zerolog.Logger

	busy atomic.Bool
}

func New(store Store, runner Runner, imageCommand, imageDir, outputPath string, frameIntervalMS int, log zerolog.Logger) *Builder {
	return &Builder{
		store:           store,
		runner:          runner,
		imageCommand:    imageCommand,
		imageDir:        imageDir,
		outputPath:      outputPath,
		frameIntervalMS: frameIntervalMS,
		log:             log,
	}
}

// Tick builds the thumbnail index for at most one eligible recording.
func (b *Builder) Tick(ctx context.Context) {
	if !b.busy.CompareAndSwap(false, true) {
		return
	}
	defer b.busy.Store(false)

	recs, err := b.store.RecordingsToBif(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to query recordings to bif")
		return
	}
	for _, rec := range recs[:min(1, len(recs))] {
		b.build(ctx, rec)
	}
}

func (b *Builder) build(ctx context.Context, rec database.FileRef) {
	log := b.log.With().Int("recording_id", rec.RecordingID).Logger()
	log.Info().Str("video", rec.Filename).Msg("building thumbnail index")

	if err := b.clearImageDir(); err != nil {
		log.Error().Err(err).Msg("failed to clear image directory")
		return
	}

	fps := 1000 / float64(b.frameIntervalMS)
	command := b.imageCommand
	command = strings.ReplaceAll(command, "{videoFile}", rec.Filename)
	command = strings.ReplaceAll(command, "{framesPerSecond}", strconv.FormatFloat(fps, 'g', -1, 64))
	command = strings.ReplaceAll(command, "{imageDir}", b.imageDir)

	fields := strings.Fields(command)
	if len(fields) == 0 {
		log.Error().Msg("empty image command")
		return
	}
	log.Info().Str("command", command).Msg("extracting frames")
	if err := b.runner.Run(ctx, nil, fields[0], fields[1:]...); err != nil {
		log.Error().Err(err).Msg("frame extraction failed")
		metrics.BifsTotal.WithLabelValues("failed").Inc()
		return
	}

	// Extractors number frames from 1; BIF consumers index from 0.
	count, err := b.renumberFrames()
	if err != nil {
		log.Error().Err(err).Msg("failed to renumber frames")
		return
	}
	log.Debug().Int("frames", count).Msg("frames renumbered")

	bifFile := fileloc.Expand(b.outputPath, rec.RecordingID)
	if err := EncodeDir(bifFile, b.imageDir, b.frameIntervalMS); err != nil {
		log.Error().Err(err).Str("bif", bifFile).Msg("failed to write bif file")
		metrics.BifsTotal.WithLabelValues("failed").Inc()
		return
	}

	err = b.store.InsertBifFileLocation(ctx, rec.RecordingID, locationID, bifFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to record bif location")
		return
	}

	if err := b.clearImageDir(); err != nil {
		log.Warn().Err(err).Msg("failed to clear image directory after build")
	}
	log.Info().Str("bif", bifFile).Msg("thumbnail index complete")
	metrics.BifsTotal.WithLabelValues("ok").Inc()
}

func (b *Builder) clearImageDir() error {
	names, err := jpegFiles(b.imageDir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// renumberFrames shifts the extractor's 1-indexed frames down to a
// 0-indexed contiguous sequence and returns the frame count.
func (b *Builder) renumberFrames() (int, error) {
	i := 0
	for {
		src := imageFile(b.imageDir, i+1)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				return i, nil
			}
			return i, err
		}
		if err := os.Rename(src, imageFile(b.imageDir, i)); err != nil {
			return i, err
		}
		i++
	}
}
