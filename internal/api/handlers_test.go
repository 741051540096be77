package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/config"
	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/listings"
)

type fakeStore struct {
	shows           []database.ShowSummary
	episodes        map[string][]database.EpisodeSummary
	details         map[int]*database.RecordingDetail
	positions       map[int]int
	categories      map[int]string
	deletedRecords  []int
	deletedTrans    []int
	subs            []database.Subscription
	failures        []database.TranscodeFailure
	lastCategoryArg []string
}

func newAPIFakeStore() *fakeStore {
	return &fakeStore{
		episodes:   map[string][]database.EpisodeSummary{},
		details:    map[int]*database.RecordingDetail{},
		positions:  map[int]int{},
		categories: map[int]string{},
	}
}

func (s *fakeStore) HealthCheck(context.Context) error { return nil }

func (s *fakeStore) ShowsWithRecordings(_ context.Context, codes []string) ([]database.ShowSummary, error) {
	s.lastCategoryArg = codes
	return s.shows, nil
}

func (s *fakeStore) EpisodesForShow(_ context.Context, showID string, codes []string) ([]database.EpisodeSummary, error) {
	s.lastCategoryArg = codes
	return s.episodes[showID], nil
}

func (s *fakeStore) RecordingDetail(_ context.Context, id int) (*database.RecordingDetail, error) {
	return s.details[id], nil
}

func (s *fakeStore) DeleteRecording(_ context.Context, id int) error {
	s.deletedRecords = append(s.deletedRecords, id)
	return nil
}

func (s *fakeStore) RecentRecordings(context.Context, int) ([]database.RecordingDetail, error) {
	return nil, nil
}

func (s *fakeStore) PlaybackPosition(_ context.Context, id int) (int, error) {
	return s.positions[id], nil
}

func (s *fakeStore) SetPlaybackPosition(_ context.Context, id, position int) error {
	s.positions[id] = position
	return nil
}

func (s *fakeStore) CategoryCode(_ context.Context, id int) (string, error) {
	return s.categories[id], nil
}

func (s *fakeStore) SetCategoryCode(_ context.Context, id int, code string) error {
	s.categories[id] = code
	return nil
}

func (s *fakeStore) ListSubscriptions(context.Context) ([]database.Subscription, error) {
	return s.subs, nil
}

func (s *fakeStore) InsertSubscription(_ context.Context, showID string, priority int) error {
	s.subs = append(s.subs, database.Subscription{ShowID: showID, Priority: priority})
	return nil
}

func (s *fakeStore) DeleteSubscription(_ context.Context, showID string) error {
	for i, sub := range s.subs {
		if sub.ShowID == showID {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeStore) UpcomingRecordings(context.Context, time.Duration) ([]database.UpcomingRecording, error) {
	return nil, nil
}

func (s *fakeStore) TranscodeFailures(context.Context) ([]database.TranscodeFailure, error) {
	return s.failures, nil
}

func (s *fakeStore) PendingTranscodeCount(context.Context) (int, error) { return 2, nil }

func (s *fakeStore) DeleteTranscodedFileRecord(_ context.Context, id int) error {
	s.deletedTrans = append(s.deletedTrans, id)
	return nil
}

func (s *fakeStore) RemainingListingTime(context.Context) (time.Duration, error) {
	return 36 * time.Hour, nil
}

func (s *fakeStore) FindInconsistencies(context.Context) (*database.Inconsistencies, error) {
	return &database.Inconsistencies{}, nil
}

type fakeScheduler struct {
	planned int
}

func (s *fakeScheduler) Plan(context.Context) error { s.planned++; return nil }
func (s *fakeScheduler) PendingCount() int          { return 3 }

type fakeTuners struct{}

func (fakeTuners) Counts() (int, int) { return 1, 1 }

type fakeImporter struct {
	imported *listings.Listings
}

func (i *fakeImporter) Import(_ context.Context, l listings.Listings) error {
	i.imported = &l
	return nil
}

func testServer(store Store, scheduler Scheduler, importer Importer) *Server {
	return NewServer(ServerOptions{
		Config: config.ServerConfig{
			Addr:           ":0",
			RateLimitRPS:   100,
			RateLimitBurst: 100,
		},
		Store:      store,
		Scheduler:  scheduler,
		Tuners:     fakeTuners{},
		Importer:   importer,
		PlanWindow: 12 * time.Hour,
		Log:        zerolog.Nop(),
	})
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestShowsDefaultsToNewCategory(t *testing.T) {
	store := newAPIFakeStore()
	store.shows = []database.ShowSummary{{ShowID: "s1", Name: "Nova"}}
	s := testServer(store, &fakeScheduler{}, &fakeImporter{})

	w := doRequest(t, s, http.MethodGet, "/api/v1/shows", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if len(store.lastCategoryArg) != 1 || store.lastCategoryArg[0] != "N" {
		t.Errorf("categories = %v, want [N]", store.lastCategoryArg)
	}

	var shows []database.ShowSummary
	if err := json.Unmarshal(w.Body.Bytes(), &shows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(shows) != 1 || shows[0].ShowID != "s1" {
		t.Errorf("shows = %+v", shows)
	}
}

func TestShowsCategoryFilter(t *testing.T) {
	store := newAPIFakeStore()
	s := testServer(store, &fakeScheduler{}, &fakeImporter{})

	doRequest(t, s, http.MethodGet, "/api/v1/shows?category=r,a", "")
	want := []string{"R", "A"}
	if len(store.lastCategoryArg) != 2 || store.lastCategoryArg[0] != want[0] || store.lastCategoryArg[1] != want[1] {
		t.Errorf("categories = %v, want %v", store.lastCategoryArg, want)
	}
}

func TestRecordingNotFound(t *testing.T) {
	s := testServer(newAPIFakeStore(), &fakeScheduler{}, &fakeImporter{})
	w := doRequest(t, s, http.MethodGet, "/api/v1/recordings/99", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRecordingBadID(t *testing.T) {
	s := testServer(newAPIFakeStore(), &fakeScheduler{}, &fakeImporter{})
	w := doRequest(t, s, http.MethodGet, "/api/v1/recordings/zero", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPositionRoundTrip(t *testing.T) {
	store := newAPIFakeStore()
	s := testServer(store, &fakeScheduler{}, &fakeImporter{})

	w := doRequest(t, s, http.MethodPut, "/api/v1/recordings/4/position", `{"position":300}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("put status = %d, body %s", w.Code, w.Body)
	}

	w = doRequest(t, s, http.MethodGet, "/api/v1/recordings/4/position", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var body positionBody
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Position != 300 {
		t.Errorf("position = %d, want 300", body.Position)
	}
}

func TestArchiveRecording(t *testing.T) {
	store := newAPIFakeStore()
	s := testServer(store, &fakeScheduler{}, &fakeImporter{})

	w := doRequest(t, s, http.MethodPut, "/api/v1/recordings/6/category", `{"categoryCode":"A"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if store.categories[6] != "A" {
		t.Errorf("category = %q, want A", store.categories[6])
	}

	w = doRequest(t, s, http.MethodPut, "/api/v1/recordings/6/category", `{"categoryCode":"X"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid category status = %d, want 400", w.Code)
	}
}

func TestRetryTranscodeDeletesRow(t *testing.T) {
	store := newAPIFakeStore()
	s := testServer(store, &fakeScheduler{}, &fakeImporter{})

	w := doRequest(t, s, http.MethodPost, "/api/v1/recordings/8/transcode/retry", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if len(store.deletedTrans) != 1 || store.deletedTrans[0] != 8 {
		t.Errorf("deletedTrans = %v, want [8]", store.deletedTrans)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	store := newAPIFakeStore()
	s := testServer(store, &fakeScheduler{}, &fakeImporter{})

	w := doRequest(t, s, http.MethodPut, "/api/v1/subscriptions/s1", `{"priority":5}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("subscribe status = %d", w.Code)
	}
	if len(store.subs) != 1 || store.subs[0].Priority != 5 {
		t.Errorf("subs = %+v", store.subs)
	}

	w = doRequest(t, s, http.MethodDelete, "/api/v1/subscriptions/s1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("unsubscribe status = %d", w.Code)
	}
	if len(store.subs) != 0 {
		t.Errorf("subs = %+v after unsubscribe", store.subs)
	}
}

func TestReplanTriggersScheduler(t *testing.T) {
	scheduler := &fakeScheduler{}
	s := testServer(newAPIFakeStore(), scheduler, &fakeImporter{})

	w := doRequest(t, s, http.MethodPost, "/api/v1/replan", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if scheduler.planned != 1 {
		t.Errorf("planned %d times, want 1", scheduler.planned)
	}
}

func TestStatus(t *testing.T) {
	s := testServer(newAPIFakeStore(), &fakeScheduler{}, &fakeImporter{})

	w := doRequest(t, s, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RemainingListingHours != 36 {
		t.Errorf("remaining listing hours = %v, want 36", body.RemainingListingHours)
	}
	if body.TunersAvailable != 1 || body.TunersLeased != 1 {
		t.Errorf("tuners = %d/%d, want 1/1", body.TunersAvailable, body.TunersLeased)
	}
	if body.PlannedCaptureJobs != 3 || body.PendingTranscodes != 2 {
		t.Errorf("jobs = %d, transcodes = %d", body.PlannedCaptureJobs, body.PendingTranscodes)
	}
}

func TestImportListings(t *testing.T) {
	importer := &fakeImporter{}
	s := testServer(newAPIFakeStore(), &fakeScheduler{}, importer)

	payload := `{"shows":[{"showID":"s1","name":"Nova"}],"episodes":[],"airings":[{"channelMajor":1,"channelMinor":1,"startTime":"2026-08-02T12:00:00Z","durationSeconds":1800,"showID":"s1","episodeID":"e1","rerunCode":"N"}]}`
	w := doRequest(t, s, http.MethodPost, "/api/v1/listings", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if importer.imported == nil || len(importer.imported.Airings) != 1 {
		t.Fatalf("imported = %+v", importer.imported)
	}
}

func TestHealth(t *testing.T) {
	s := testServer(newAPIFakeStore(), &fakeScheduler{}, &fakeImporter{})
	w := doRequest(t, s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
