// Package sched is aerial's timer service: it replans the recording window
// on a cron, installs one-shot capture jobs at airing start times, and
// drives the transcode, thumbnail and reap ticks.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/metrics"
)

// Planner is the store slice the scheduler plans from.
type Planner interface {
	PendingRecordings(ctx context.Context, window time.Duration) ([]database.PlannedRecording, error)
}

// CaptureFunc records one planned airing; it blocks for the airing's whole
// duration.
type CaptureFunc func(ctx context.Context, plan database.PlannedRecording)

// TickFunc is a periodic pipeline pass (transcode, bif, reap).
type TickFunc func(ctx context.Context)

type Options struct {
	Store         Planner
	Capture       CaptureFunc
	TranscodeTick TickFunc
	BifTick       TickFunc
	ReapTick      TickFunc

	PlanCron          string
	PlanWindow        time.Duration
	MisfireGrace      time.Duration
	TranscodeInterval time.Duration
	BifInterval       time.Duration
	ReapInterval      time.Duration

	Log zerolog.Logger
}

type Service struct {
	opts  Options
	sched gocron.Scheduler
	log   zerolog.Logger

	// planMu serializes plan() with itself; capture firing is deliberately
	// not serialized with planning (fired jobs are already out of the
	// scheduler, and planning only removes pending ones).
	planMu sync.Mutex

	// mu guards pending, the set of installed-but-unfired capture jobs.
	mu      sync.Mutex
	pending map[uuid.UUID]database.PlannedRecording

	ctx context.Context
	now func() time.Time
}

func New(opts Options) (*Service, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	return &Service{
		opts:    opts,
		sched:   sched,
		log:     opts.Log,
		pending: make(map[uuid.UUID]database.PlannedRecording),
		ctx:     context.Background(),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start registers the recurring jobs, starts the clock, and runs the first
// planning pass.
func (s *Service) Start(ctx context.Context) error {
	s.ctx = ctx

	_, err := s.sched.NewJob(
		gocron.CronJob(s.opts.PlanCron, false),
		gocron.NewTask(func() {
			if err := s.Plan(s.ctx); err != nil {
				s.log.Error().Err(err).Msg("scheduled planning failed")
			}
		}),
		gocron.WithName("plan"),
	)
	if err != nil {
		return err
	}

	ticks := []struct {
		name     string
		interval time.Duration
		tick     TickFunc
	}{
		{"transcode", s.opts.TranscodeInterval, s.opts.TranscodeTick},
		{"bif", s.opts.BifInterval, s.opts.BifTick},
		{"reap", s.opts.ReapInterval, s.opts.ReapTick},
	}
	for _, t := range ticks {
		tick := t.tick
		_, err := s.sched.NewJob(
			gocron.DurationJob(t.interval),
			gocron.NewTask(func() { tick(s.ctx) }),
			gocron.WithName(t.name),
		)
		if err != nil {
			return err
		}
	}

	s.sched.Start()
	s.log.Info().
		Str("plan_cron", s.opts.PlanCron).
		Dur("plan_window", s.opts.PlanWindow).
		Msg("scheduler started")

	if err := s.Plan(ctx); err != nil {
		s.log.Error().Err(err).Msg("initial planning failed")
	}
	return nil
}

// Shutdown cancels pending and periodic jobs and waits for running ones.
func (s *Service) Shutdown() error {
	return s.sched.Shutdown()
}

// Plan repopulates the capture-job set from the store. It removes every
// pending capture job and reinstalls one per planner result; full
// repopulation is idempotent and planning runs far more often than
// listings change.
func (s *Service) Plan(ctx context.Context) error {
	s.planMu.Lock()
	defer s.planMu.Unlock()

	s.log.Info().Msg("planning recordings")
	s.removePendingCaptureJobs()

	planned, err := s.opts.Store.PendingRecordings(ctx, s.opts.PlanWindow)
	if err != nil {
		return err
	}

	for _, plan := range planned {
		if err := s.installCaptureJob(plan); err != nil {
			s.log.Error().Err(err).
				Str("show_id", plan.ShowID).
				Str("episode_id", plan.EpisodeID).
				Time("start_time", plan.StartTime).
				Msg("failed to install capture job")
			continue
		}
		s.log.Info().
			Str("show_id", plan.ShowID).
			Str("episode_id", plan.EpisodeID).
			Int("channel_major", plan.ChannelMajor).
			Int("channel_minor", plan.ChannelMinor).
			Time("start_time", plan.StartTime).
			Msg("capture scheduled")
	}

	metrics.PlannedJobs.Set(float64(s.PendingCount()))
	return nil
}

func (s *Service) removePendingCaptureJobs() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = make(map[uuid.UUID]database.PlannedRecording)
	s.mu.Unlock()

	for _, id := range ids {
		// A job that fired between snapshot and removal is already gone;
		// that is fine, planning only owes removal of unfired jobs.
		if err := s.sched.RemoveJob(id); err != nil {
			s.log.Debug().Err(err).Str("job_id", id.String()).Msg("pending job already gone")
		}
	}
}

func (s *Service) installCaptureJob(plan database.PlannedRecording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(plan.StartTime)),
		gocron.NewTask(s.fireCapture, plan),
		gocron.WithName("capture"),
	)
	if err != nil {
		return err
	}
	s.pending[job.ID()] = plan
	return nil
}

// fireCapture runs when a capture job's trigger time arrives. The job
// leaves the pending set at fire time: from here on, replanning must not
// touch it.
func (s *Service) fireCapture(plan database.PlannedRecording) {
	s.unpend(plan)

	if late := s.now().Sub(plan.StartTime); late > s.opts.MisfireGrace {
		s.log.Warn().
			Str("show_id", plan.ShowID).
			Str("episode_id", plan.EpisodeID).
			Dur("late", late).
			Msg("capture job missed its window, dropping")
		metrics.CaptureJobsDropped.Inc()
		return
	}

	s.opts.Capture(s.ctx, plan)
}

func (s *Service) unpend(plan database.PlannedRecording) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pending {
		if p == plan {
			delete(s.pending, id)
			metrics.PlannedJobs.Set(float64(len(s.pending)))
			return
		}
	}
}

// PendingCount reports how many capture jobs are installed and unfired.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PendingPlans snapshots the installed capture jobs, for display.
func (s *Service) PendingPlans() []database.PlannedRecording {
	s.mu.Lock()
	defer s.mu.Unlock()
	plans := make([]database.PlannedRecording, 0, len(s.pending))
	for _, p := range s.pending {
		plans = append(plans, p)
	}
	return plans
}
