package api

import (
	"context"
	"time"

	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/listings"
)

// Store is the database surface the handlers consume. *database.DB
// satisfies it; tests substitute fakes.
type Store interface {
	HealthCheck(ctx context.Context) error

	ShowsWithRecordings(ctx context.Context, categoryCodes []string) ([]database.ShowSummary, error)
	EpisodesForShow(ctx context.Context, showID string, categoryCodes []string) ([]database.EpisodeSummary, error)
	RecordingDetail(ctx context.Context, recordingID int) (*database.RecordingDetail, error)
	DeleteRecording(ctx context.Context, recordingID int) error
	RecentRecordings(ctx context.Context, limit int) ([]database.RecordingDetail, error)

	PlaybackPosition(ctx context.Context, recordingID int) (int, error)
	SetPlaybackPosition(ctx context.Context, recordingID, position int) error
	CategoryCode(ctx context.Context, recordingID int) (string, error)
	SetCategoryCode(ctx context.Context, recordingID int, categoryCode string) error

	ListSubscriptions(ctx context.Context) ([]database.Subscription, error)
	InsertSubscription(ctx context.Context, showID string, priority int) error
	DeleteSubscription(ctx context.Context, showID string) error

	UpcomingRecordings(ctx context.Context, window time.Duration) ([]database.UpcomingRecording, error)
	TranscodeFailures(ctx context.Context) ([]database.TranscodeFailure, error)
	PendingTranscodeCount(ctx context.Context) (int, error)
	DeleteTranscodedFileRecord(ctx context.Context, recordingID int) error
	RemainingListingTime(ctx context.Context) (time.Duration, error)
	FindInconsistencies(ctx context.Context) (*database.Inconsistencies, error)
}

// Scheduler is the planning surface exposed to admin endpoints.
type Scheduler interface {
	Plan(ctx context.Context) error
	PendingCount() int
}

// TunerStatus reports the pool partition for the status endpoint.
type TunerStatus interface {
	Counts() (available, leased int)
}

// Importer applies a guide import.
type Importer interface {
	Import(ctx context.Context, l listings.Listings) error
}
