// Package capture drives the hdhomerun_config CLI: tune, start the save
// subprocess, sleep out the airing, terminate, validate the output.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/tuner"
)

// Tagged capture outcomes. The caller abandons the airing on any of these;
// the next planning cycle picks up the next airing if one exists.
var (
	ErrUnknownChannel = errors.New("capture: unrecognized channel")
	ErrNoTuner        = errors.New("capture: no tuners available")
	ErrCaptureFailed  = errors.New("capture: output missing or too small")
)

// Driver is a stateless façade over the capture binary. It may be invoked
// concurrently; the tuner pool serializes the resource contention.
type Driver struct {
	channels     map[[2]int]database.ChannelInfo
	tuners       *tuner.Pool
	binary       string
	minFileBytes int64
	runner       Runner
	log          zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewDriver(channels []database.ChannelInfo, tuners *tuner.Pool, binary string, minFileBytes int64, runner Runner, log zerolog.Logger) *Driver {
	m := make(map[[2]int]database.ChannelInfo, len(channels))
	for _, c := range channels {
		m[[2]int{c.Major, c.Minor}] = c
	}
	return &Driver{
		channels:     m,
		tuners:       tuners,
		binary:       binary,
		minFileBytes: minFileBytes,
		runner:       runner,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		sleep:        sleepUntilDone,
	}
}

func sleepUntilDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Capture records channel major-minor until stopTime into destFile, with
// subprocess output going to logFile. The tuner is released whatever
// happens after acquisition.
func (d *Driver) Capture(ctx context.Context, channelMajor, channelMinor int, stopTime time.Time, destFile, logFile string) error {
	log := d.log.With().
		Int("channel_major", channelMajor).
		Int("channel_minor", channelMinor).
		Str("dest", destFile).
		Logger()
	log.Info().Time("stop_time", stopTime).Msg("capture starting")

	channel, ok := d.channels[[2]int{channelMajor, channelMinor}]
	if !ok {
		log.Error().Msg("unrecognized channel")
		return ErrUnknownChannel
	}

	t, ok := d.tuners.Acquire()
	if !ok {
		log.Error().Msg("no tuners available")
		return ErrNoTuner
	}
	defer d.tuners.Release(t)
	log.Info().Str("device_id", t.DeviceID).Int("tuner", t.TunerIndex).Msg("tuner leased")

	lf, err := os.Create(logFile)
	if err != nil {
		return fmt.Errorf("capture: create log file: %w", err)
	}
	defer lf.Close()

	tunerPath := fmt.Sprintf("/tuner%d", t.TunerIndex)

	// Tune and select program; the status query is diagnostic only. A
	// failed tune step still produces an empty save, which the size
	// validation below rejects.
	steps := []struct {
		what string
		args []string
	}{
		{"tune channel", []string{t.IPAddress, "set", tunerPath + "/channel", fmt.Sprint(channel.Actual)}},
		{"select program", []string{t.IPAddress, "set", tunerPath + "/program", fmt.Sprint(channel.Program)}},
		{"query status", []string{t.IPAddress, "get", tunerPath + "/status"}},
	}
	for _, step := range steps {
		log.Info().Strs("args", step.args).Msg(step.what)
		if err := d.runner.Run(ctx, lf, d.binary, step.args...); err != nil {
			log.Warn().Err(err).Msg(step.what + " exited nonzero")
		}
	}

	saveArgs := []string{t.IPAddress, "save", tunerPath, destFile}
	log.Info().Strs("args", saveArgs).Msg("starting save")
	proc, err := d.runner.Start(ctx, lf, d.binary, saveArgs...)
	if err != nil {
		return fmt.Errorf("capture: start save subprocess: %w", err)
	}

	if remaining := stopTime.Sub(d.now()); remaining > 0 {
		log.Info().Dur("remaining", remaining).Msg("recording")
		d.sleep(ctx, remaining)
	}

	log.Info().Msg("terminating save")
	if err := proc.Terminate(); err != nil {
		log.Warn().Err(err).Msg("terminate failed")
	}
	if err := proc.Wait(); err != nil {
		log.Warn().Err(err).Msg("save subprocess exited nonzero")
	}

	if !isValidRecording(destFile, d.minFileBytes) {
		log.Error().Msg("capture output missing or too small")
		return ErrCaptureFailed
	}
	log.Info().Msg("capture finished")
	return nil
}

// isValidRecording is a coarse sanity check; it at least catches zero-byte
// files from a dead signal.
func isValidRecording(filename string, minBytes int64) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return info.Size() >= minBytes
}
