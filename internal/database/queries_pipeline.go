package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

func (db *DB) scanFileRefs(rows pgx.Rows) ([]FileRef, error) {
	defer rows.Close()
	var refs []FileRef
	for rows.Next() {
		var r FileRef
		if err := rows.Scan(&r.RecordingID, &r.Filename); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// RecordingsToTranscode returns raw captures with no transcode attempt yet.
func (db *DB) RecordingsToTranscode(ctx context.Context) ([]FileRef, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording_id, filename
		FROM file_raw_video
		WHERE recording_id NOT IN (SELECT recording_id FROM file_transcoded_video)
		ORDER BY recording_id`)
	if err != nil {
		return nil, err
	}
	return db.scanFileRefs(rows)
}

// RecordingDuration returns the recorded duration, or zero when the
// recording row is absent.
func (db *DB) RecordingDuration(ctx context.Context, recordingID int) (time.Duration, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT duration FROM recording WHERE recording_id = $1`, recordingID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var seconds int
	if rows.Next() {
		if err := rows.Scan(&seconds); err != nil {
			return 0, err
		}
	}
	return time.Duration(seconds) * time.Second, rows.Err()
}

func (db *DB) InsertTranscodedFileLocation(ctx context.Context, recordingID, locationID int, filename string, state int) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO file_transcoded_video (recording_id, location_id, filename, state)
		VALUES ($1, $2, $3, $4)`,
		recordingID, locationID, filename, state)
	return err
}

// RecordingsToBif returns successfully transcoded recordings that have no
// thumbnail index yet.
func (db *DB) RecordingsToBif(ctx context.Context) ([]FileRef, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording_id, filename
		FROM file_transcoded_video
		WHERE state = 0
		  AND recording_id NOT IN (SELECT recording_id FROM file_bif)
		ORDER BY recording_id`)
	if err != nil {
		return nil, err
	}
	return db.scanFileRefs(rows)
}

func (db *DB) InsertBifFileLocation(ctx context.Context, recordingID, locationID int, filename string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO file_bif (recording_id, location_id, filename)
		VALUES ($1, $2, $3)`,
		recordingID, locationID, filename)
	return err
}

// ── reaper queries ───────────────────────────────────────────────────

// UnreferencedRawFiles returns raw file rows whose recording is gone.
func (db *DB) UnreferencedRawFiles(ctx context.Context) ([]FileRef, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording_id, filename
		FROM file_raw_video
		WHERE recording_id NOT IN (SELECT recording_id FROM recording)
		ORDER BY recording_id`)
	if err != nil {
		return nil, err
	}
	return db.scanFileRefs(rows)
}

func (db *DB) UnreferencedTranscodedFiles(ctx context.Context) ([]FileRef, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording_id, filename
		FROM file_transcoded_video
		WHERE recording_id NOT IN (SELECT recording_id FROM recording)
		ORDER BY recording_id`)
	if err != nil {
		return nil, err
	}
	return db.scanFileRefs(rows)
}

func (db *DB) UnreferencedBifFiles(ctx context.Context) ([]FileRef, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording_id, filename
		FROM file_bif
		WHERE recording_id NOT IN (SELECT recording_id FROM recording)
		ORDER BY recording_id`)
	if err != nil {
		return nil, err
	}
	return db.scanFileRefs(rows)
}

// SupersededRawFiles returns raw captures whose transcode succeeded; the
// raw file is no longer needed.
func (db *DB) SupersededRawFiles(ctx context.Context) ([]FileRef, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT file_raw_video.recording_id, file_raw_video.filename
		FROM file_raw_video
		INNER JOIN file_transcoded_video USING (recording_id)
		WHERE file_transcoded_video.state = 0
		ORDER BY file_raw_video.recording_id`)
	if err != nil {
		return nil, err
	}
	return db.scanFileRefs(rows)
}

func (db *DB) DeleteRawFileRecord(ctx context.Context, recordingID int) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM file_raw_video WHERE recording_id = $1`, recordingID)
	return err
}

func (db *DB) DeleteTranscodedFileRecord(ctx context.Context, recordingID int) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM file_transcoded_video WHERE recording_id = $1`, recordingID)
	return err
}

func (db *DB) DeleteBifFileRecord(ctx context.Context, recordingID int) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM file_bif WHERE recording_id = $1`, recordingID)
	return err
}
