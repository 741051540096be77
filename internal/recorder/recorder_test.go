package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/capture"
	"github.com/snarg/aerial/internal/database"
)

type stubRow struct {
	recordingID int
	showID      string
	episodeID   string
	duration    time.Duration
	category    string
}

type fakeStore struct {
	nextID     int
	recordings []stubRow
	rawFiles   map[int]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, rawFiles: map[int]string{}}
}

func (s *fakeStore) AllocateRecordingID(context.Context) (int, error) {
	id := s.nextID
	s.nextID++
	return id, nil
}

func (s *fakeStore) InsertRecording(_ context.Context, recordingID int, showID, episodeID string, duration time.Duration, categoryCode string) error {
	s.recordings = append(s.recordings, stubRow{recordingID, showID, episodeID, duration, categoryCode})
	return nil
}

func (s *fakeStore) InsertRawFileLocation(_ context.Context, recordingID int, filename string) error {
	s.rawFiles[recordingID] = filename
	return nil
}

type fakeDriver struct {
	err      error
	stopTime time.Time
	destFile string
	calls    int
}

func (d *fakeDriver) Capture(_ context.Context, _, _ int, stopTime time.Time, destFile, _ string) error {
	d.calls++
	d.stopTime = stopTime
	d.destFile = destFile
	return d.err
}

func testPlan() database.PlannedRecording {
	return database.PlannedRecording{
		ChannelMajor: 1,
		ChannelMinor: 1,
		StartTime:    time.Date(2016, 4, 12, 1, 0, 0, 0, time.UTC),
		Duration:     30 * time.Second,
		ShowID:       "s1",
		EpisodeID:    "e1",
		RerunCode:    "N",
	}
}

func newRecorder(store Store, driver Driver) *Recorder {
	return New(store, driver, "/video/{recordingID}.ts", "/video/{recordingID}.log", zerolog.Nop())
}

func TestCaptureSuccess(t *testing.T) {
	store := newFakeStore()
	driver := &fakeDriver{}
	newRecorder(store, driver).Capture(context.Background(), testPlan())

	if len(store.recordings) != 1 {
		t.Fatalf("recordings = %d, want 1", len(store.recordings))
	}
	rec := store.recordings[0]
	if rec.recordingID != 1 || rec.showID != "s1" || rec.episodeID != "e1" || rec.category != "N" {
		t.Errorf("recording stub = %+v", rec)
	}
	if got := store.rawFiles[1]; got != "/video/1.ts" {
		t.Errorf("raw file = %q, want /video/1.ts", got)
	}
	if want := testPlan().StartTime.Add(30 * time.Second); !driver.stopTime.Equal(want) {
		t.Errorf("stop time = %v, want %v", driver.stopTime, want)
	}
}

// The stub row is written even when the capture fails; only the missing raw
// file row lets planning retry a later airing.
func TestCaptureFailureLeavesStubOnly(t *testing.T) {
	for _, err := range []error{capture.ErrUnknownChannel, capture.ErrNoTuner, capture.ErrCaptureFailed} {
		t.Run(err.Error(), func(t *testing.T) {
			store := newFakeStore()
			driver := &fakeDriver{err: err}
			newRecorder(store, driver).Capture(context.Background(), testPlan())

			if len(store.recordings) != 1 {
				t.Fatalf("recordings = %d, want stub row", len(store.recordings))
			}
			if len(store.rawFiles) != 0 {
				t.Errorf("raw file row written on failed capture: %v", store.rawFiles)
			}
		})
	}
}

func TestCaptureStubWrittenBeforeDriver(t *testing.T) {
	store := newFakeStore()
	order := []string{}
	driver := &orderedDriver{store: store, order: &order}
	newRecorder(store, driver).Capture(context.Background(), testPlan())

	if len(order) != 1 || order[0] != "stub_present" {
		t.Errorf("driver observed %v, want recording stub before capture", order)
	}
}

type orderedDriver struct {
	store *fakeStore
	order *[]string
}

func (d *orderedDriver) Capture(context.Context, int, int, time.Time, string, string) error {
	if len(d.store.recordings) == 1 {
		*d.order = append(*d.order, "stub_present")
	} else {
		*d.order = append(*d.order, "stub_missing")
	}
	return nil
}

