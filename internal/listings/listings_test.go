package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/database"
)

type fakeStore struct {
	shows    []database.ListingShow
	episodes []database.ListingEpisode
	airings  []database.ListingAiring
	skipped  int
	err      error
}

func (s *fakeStore) ReplaceListings(_ context.Context, shows []database.ListingShow, episodes []database.ListingEpisode, airings []database.ListingAiring) (int, error) {
	s.shows = shows
	s.episodes = episodes
	s.airings = airings
	return s.skipped, s.err
}

func sampleListings() Listings {
	return Listings{
		Shows:    []Show{{ShowID: "s1", ShowType: "series", Name: "Nova"}},
		Episodes: []Episode{{ShowID: "s1", EpisodeID: "e1", Title: "Pilot"}},
		Airings: []Airing{{
			ChannelMajor:    1,
			ChannelMinor:    1,
			StartTime:       time.Date(2016, 4, 12, 1, 0, 0, 0, time.FixedZone("CST", -6*3600)),
			DurationSeconds: 1800,
			ShowID:          "s1",
			EpisodeID:       "e1",
			RerunCode:       "N",
		}},
	}
}

func TestImportConvertsAndReplans(t *testing.T) {
	store := &fakeStore{}
	replanned := 0
	svc := New(store, func(context.Context) error { replanned++; return nil }, zerolog.Nop())

	if err := svc.Import(context.Background(), sampleListings()); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if len(store.shows) != 1 || store.shows[0].Name != "Nova" {
		t.Errorf("shows = %+v", store.shows)
	}
	if len(store.airings) != 1 {
		t.Fatalf("airings = %+v", store.airings)
	}
	a := store.airings[0]
	if a.Duration != 30*time.Minute {
		t.Errorf("duration = %v, want 30m", a.Duration)
	}
	wantUTC := time.Date(2016, 4, 12, 7, 0, 0, 0, time.UTC)
	if !a.StartTime.Equal(wantUTC) || a.StartTime.Location() != time.UTC {
		t.Errorf("start time = %v, want %v in UTC", a.StartTime, wantUTC)
	}
	if replanned != 1 {
		t.Errorf("replanned %d times, want 1", replanned)
	}
}

func TestImportStoreErrorSkipsReplan(t *testing.T) {
	store := &fakeStore{err: errors.New("deadlock detected")}
	replanned := 0
	svc := New(store, func(context.Context) error { replanned++; return nil }, zerolog.Nop())

	if err := svc.Import(context.Background(), sampleListings()); err == nil {
		t.Fatal("Import swallowed a store error")
	}
	if replanned != 0 {
		t.Error("replan ran after a failed import")
	}
}

func TestImportReplanErrorIsNotFatal(t *testing.T) {
	svc := New(&fakeStore{}, func(context.Context) error { return errors.New("boom") }, zerolog.Nop())
	if err := svc.Import(context.Background(), sampleListings()); err != nil {
		t.Fatalf("Import: %v", err)
	}
}

// Undefined-channel airings are the store's problem to drop; the import
// still succeeds and replans.
func TestImportWithSkippedAirings(t *testing.T) {
	store := &fakeStore{skipped: 2}
	replanned := 0
	svc := New(store, func(context.Context) error { replanned++; return nil }, zerolog.Nop())

	if err := svc.Import(context.Background(), sampleListings()); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if replanned != 1 {
		t.Errorf("replanned %d times, want 1", replanned)
	}
}
