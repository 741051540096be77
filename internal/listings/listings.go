// Package listings is the import seam for program-guide data. The guide
// fetcher and parser live outside the server; anything that can produce a
// Listings value can drive an import.
package listings

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/database"
)

// Listings is one complete guide import: lineup metadata plus the projected
// airings. The schedule is replaced wholesale on import.
type Listings struct {
	Shows    []Show    `json:"shows"`
	Episodes []Episode `json:"episodes"`
	Airings  []Airing  `json:"airings"`
}

type Show struct {
	ShowID   string `json:"showID"`
	ShowType string `json:"showType"`
	Name     string `json:"name"`
	ImageURL string `json:"imageURL"`
}

type Episode struct {
	ShowID      string `json:"showID"`
	EpisodeID   string `json:"episodeID"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PartCode    string `json:"partCode"`
	ImageURL    string `json:"imageURL"`
}

type Airing struct {
	ChannelMajor    int       `json:"channelMajor"`
	ChannelMinor    int       `json:"channelMinor"`
	StartTime       time.Time `json:"startTime"`
	DurationSeconds int       `json:"durationSeconds"`
	ShowID          string    `json:"showID"`
	EpisodeID       string    `json:"episodeID"`
	RerunCode       string    `json:"rerunCode"`
}

// Store is the database slice the import needs.
type Store interface {
	ReplaceListings(ctx context.Context, shows []database.ListingShow, episodes []database.ListingEpisode, airings []database.ListingAiring) (skipped int, err error)
}

type Service struct {
	store  Store
	replan func(ctx context.Context) error
	log    zerolog.Logger
}

// New builds the import service. replan is called after a successful import
// so new airings get capture jobs without waiting for the next cron pass.
func New(store Store, replan func(ctx context.Context) error, log zerolog.Logger) *Service {
	return &Service{store: store, replan: replan, log: log}
}

// Import applies one guide import transactionally and triggers replanning.
func (s *Service) Import(ctx context.Context, l Listings) error {
	shows := make([]database.ListingShow, 0, len(l.Shows))
	for _, sh := range l.Shows {
		shows = append(shows, database.ListingShow(sh))
	}
	episodes := make([]database.ListingEpisode, 0, len(l.Episodes))
	for _, e := range l.Episodes {
		episodes = append(episodes, database.ListingEpisode(e))
	}
	airings := make([]database.ListingAiring, 0, len(l.Airings))
	for _, a := range l.Airings {
		airings = append(airings, database.ListingAiring{
			ChannelMajor: a.ChannelMajor,
			ChannelMinor: a.ChannelMinor,
			StartTime:    a.StartTime.UTC(),
			Duration:     time.Duration(a.DurationSeconds) * time.Second,
			ShowID:       a.ShowID,
			EpisodeID:    a.EpisodeID,
			RerunCode:    a.RerunCode,
		})
	}

	skipped, err := s.store.ReplaceListings(ctx, shows, episodes, airings)
	if err != nil {
		return fmt.Errorf("replace listings: %w", err)
	}
	if skipped > 0 {
		s.log.Warn().Int("skipped", skipped).Msg("airings skipped (undefined channel)")
	}
	s.log.Info().
		Int("shows", len(shows)).
		Int("episodes", len(episodes)).
		Int("airings", len(airings)-skipped).
		Msg("listings imported")

	if s.replan != nil {
		if err := s.replan(ctx); err != nil {
			s.log.Error().Err(err).Msg("replanning after import failed")
		}
	}
	return nil
}
