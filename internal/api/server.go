// Package api serves aerial's remote interface: the library endpoints the
// set-top client consumes and the admin operations behind them. Handlers
// are thin glue over the store; the orchestration core never depends on
// this package.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/config"
	"github.com/snarg/aerial/internal/metrics"
)

type ServerOptions struct {
	Config    config.ServerConfig
	Store     Store
	Scheduler Scheduler
	Tuners    TunerStatus
	Importer  Importer
	// PlanWindow sizes the upcoming-recordings view.
	PlanWindow time.Duration
	Log        zerolog.Logger
}

type Server struct {
	opts ServerOptions
	log  zerolog.Logger
	srv  *http.Server
}

func NewServer(opts ServerOptions) *Server {
	s := &Server{opts: opts, log: opts.Log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst))

		r.Get("/shows", s.handleShows)
		r.Get("/shows/{showID}/episodes", s.handleEpisodes)

		r.Get("/recordings", s.handleRecentRecordings)
		r.Route("/recordings/{recordingID}", func(r chi.Router) {
			r.Get("/", s.handleRecording)
			r.Delete("/", s.handleDeleteRecording)
			r.Get("/position", s.handleGetPosition)
			r.Put("/position", s.handleSetPosition)
			r.Get("/category", s.handleGetCategory)
			r.Put("/category", s.handleSetCategory)
			r.Post("/transcode/retry", s.handleRetryTranscode)
		})

		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Put("/subscriptions/{showID}", s.handleSubscribe)
		r.Delete("/subscriptions/{showID}", s.handleUnsubscribe)

		r.Get("/upcoming", s.handleUpcoming)
		r.Get("/transcode/failures", s.handleTranscodeFailures)
		r.Get("/status", s.handleStatus)
		r.Post("/replan", s.handleReplan)
		r.Post("/listings", s.handleImportListings)
	})

	s.srv = &http.Server{
		Addr:         opts.Config.Addr,
		Handler:      r,
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
		IdleTimeout:  opts.Config.IdleTimeout,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
