package database

import (
	"context"
	"time"
)

func (db *DB) ListChannels(ctx context.Context) ([]ChannelInfo, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT major, minor, actual, program FROM channel ORDER BY major, minor`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []ChannelInfo
	for rows.Next() {
		var c ChannelInfo
		if err := rows.Scan(&c.Major, &c.Minor, &c.Actual, &c.Program); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

func (db *DB) ListTuners(ctx context.Context) ([]TunerInfo, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT device_id, ipaddress, tuner_id FROM tuner ORDER BY device_id, tuner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tuners []TunerInfo
	for rows.Next() {
		var t TunerInfo
		if err := rows.Scan(&t.DeviceID, &t.IPAddress, &t.TunerIndex); err != nil {
			return nil, err
		}
		tuners = append(tuners, t)
	}
	return tuners, rows.Err()
}

// PendingRecordings returns subscribed airings starting within (now,
// now+window] that are not already represented by a raw or transcoded file.
// When the same (show, episode) airs more than once in the window, only the
// earliest airing is returned.
func (db *DB) PendingRecordings(ctx context.Context, window time.Duration) ([]PlannedRecording, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT ON (schedule.show_id, schedule.episode_id)
		       schedule.channel_major, schedule.channel_minor, schedule.start_time,
		       schedule.duration, schedule.show_id, schedule.episode_id, schedule.rerun_code
		FROM schedule
		INNER JOIN subscription ON (schedule.show_id = subscription.show_id)
		WHERE schedule.start_time > now()
		  AND schedule.start_time <= now() + make_interval(secs => $1)
		  AND (schedule.show_id, schedule.episode_id) NOT IN
		      (SELECT show_id, episode_id FROM recorded_episodes_by_id)
		ORDER BY schedule.show_id, schedule.episode_id, schedule.start_time`,
		window.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var planned []PlannedRecording
	for rows.Next() {
		var p PlannedRecording
		var durationSeconds int
		err := rows.Scan(&p.ChannelMajor, &p.ChannelMinor, &p.StartTime,
			&durationSeconds, &p.ShowID, &p.EpisodeID, &p.RerunCode)
		if err != nil {
			return nil, err
		}
		p.StartTime = p.StartTime.UTC()
		p.Duration = time.Duration(durationSeconds) * time.Second
		planned = append(planned, p)
	}
	return planned, rows.Err()
}

// AllocateRecordingID increments the single-row counter under a transaction
// and returns the pre-increment value. Successive calls are strictly
// increasing.
func (db *DB) AllocateRecordingID(ctx context.Context) (int, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int
	if err := tx.QueryRow(ctx, `SELECT nextid FROM uniqueid FOR UPDATE`).Scan(&id); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `UPDATE uniqueid SET nextid = nextid + 1`); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// InsertRecording writes the recording stub. It happens before capture
// starts, so the row exists even when the capture later fails.
func (db *DB) InsertRecording(ctx context.Context, recordingID int, showID, episodeID string, duration time.Duration, categoryCode string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO recording (recording_id, show_id, episode_id, date_recorded, duration, category_code)
		VALUES ($1, $2, $3, now(), $4, $5)`,
		recordingID, showID, episodeID, int(duration.Seconds()), categoryCode)
	return err
}

func (db *DB) InsertRawFileLocation(ctx context.Context, recordingID int, filename string) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO file_raw_video (recording_id, filename) VALUES ($1, $2)`,
		recordingID, filename)
	return err
}
