package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	aerial "github.com/snarg/aerial"
	"github.com/snarg/aerial/internal/api"
	"github.com/snarg/aerial/internal/bif"
	"github.com/snarg/aerial/internal/capture"
	"github.com/snarg/aerial/internal/config"
	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/listings"
	"github.com/snarg/aerial/internal/recorder"
	"github.com/snarg/aerial/internal/reaper"
	"github.com/snarg/aerial/internal/sched"
	"github.com/snarg/aerial/internal/transcode"
	"github.com/snarg/aerial/internal/tuner"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "Path to config.yaml (overrides AERIAL_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	// .env first, so the koanf env layer sees it.
	_ = godotenv.Load()
	if configPath != "" {
		os.Setenv(config.ConfigPathEnvVar, configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("log_level", level.String()).
		Msg("aerial starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.Database, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, aerial.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("schema initialization failed")
	}

	// Channel and tuner inventory is read once at boot; both change only
	// with a restart, like the appliances themselves.
	channels, err := db.ListChannels(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load channel map")
	}
	tuners, err := db.ListTuners(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tuner inventory")
	}
	if len(tuners) == 0 {
		log.Warn().Msg("no tuners configured — captures will fail until the tuner table is populated")
	}
	log.Info().Int("channels", len(channels)).Int("tuners", len(tuners)).Msg("lineup loaded")

	pool := tuner.NewPool(tuners)

	runner := capture.NewExecRunner()
	driver := capture.NewDriver(channels, pool, cfg.Capture.Binary, cfg.Capture.MinFileBytes,
		runner, log.With().Str("component", "capture").Logger())

	rec := recorder.New(db, driver, cfg.Capture.VideoPath, cfg.Capture.LogPath,
		log.With().Str("component", "recorder").Logger())

	transcoder := transcode.New(db, runner,
		cfg.Transcode.LowCommand, cfg.Transcode.MediumCommand, cfg.Transcode.HighCommand,
		cfg.Transcode.OutputPath, cfg.Transcode.LogPath,
		log.With().Str("component", "transcode").Logger())

	bifBuilder := bif.New(db, runner,
		cfg.Bif.ImageCommand, cfg.Bif.ImageDir, cfg.Bif.OutputPath, cfg.Bif.FrameIntervalMS,
		log.With().Str("component", "bif").Logger())

	reap := reaper.New(db, log.With().Str("component", "reaper").Logger())

	scheduler, err := sched.New(sched.Options{
		Store:             db,
		Capture:           rec.Capture,
		TranscodeTick:     transcoder.Tick,
		BifTick:           bifBuilder.Tick,
		ReapTick:          reap.Tick,
		PlanCron:          cfg.Scheduler.PlanCron,
		PlanWindow:        cfg.Scheduler.PlanWindow,
		MisfireGrace:      cfg.Scheduler.MisfireGrace,
		TranscodeInterval: cfg.Transcode.Interval,
		BifInterval:       cfg.Bif.Interval,
		ReapInterval:      cfg.Scheduler.ReapInterval,
		Log:               log.With().Str("component", "sched").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scheduler")
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	importer := listings.New(db, scheduler.Plan,
		log.With().Str("component", "listings").Logger())

	srv := api.NewServer(api.ServerOptions{
		Config:     cfg.Server,
		Store:      db,
		Scheduler:  scheduler,
		Tuners:     pool,
		Importer:   importer,
		PlanWindow: cfg.Scheduler.PlanWindow,
		Log:        log.With().Str("component", "http").Logger(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("listen", cfg.Server.Addr).
		Dur("startup_ms", time.Since(startTime)).
		Msg("aerial ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}

	log.Info().Msg("aerial stopped")
}
