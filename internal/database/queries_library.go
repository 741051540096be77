package database

import (
	"context"
	"time"
)

// ShowsWithRecordings returns shows having at least one recording in the
// given categories that is transcoded and has a thumbnail index.
func (db *DB) ShowsWithRecordings(ctx context.Context, categoryCodes []string) ([]ShowSummary, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT recording.show_id, show.name, COALESCE(show.imageurl, '')
		FROM recording
		INNER JOIN show ON (recording.show_id = show.show_id)
		WHERE recording.recording_id IN (SELECT recording_id FROM file_bif)
		  AND recording.category_code = ANY($1)
		ORDER BY show.name`,
		categoryCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shows []ShowSummary
	for rows.Next() {
		var s ShowSummary
		if err := rows.Scan(&s.ShowID, &s.Name, &s.ImageURL); err != nil {
			return nil, err
		}
		shows = append(shows, s)
	}
	return shows, rows.Err()
}

// EpisodesForShow returns the playable recordings of one show in the given
// categories, ordered by episode id.
func (db *DB) EpisodesForShow(ctx context.Context, showID string, categoryCodes []string) ([]EpisodeSummary, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording.recording_id, recording.show_id, recording.episode_id,
		       COALESCE(episode.title, ''), COALESCE(episode.description, ''),
		       COALESCE(episode.imageurl, ''), COALESCE(show.imageurl, '')
		FROM recording
		INNER JOIN file_transcoded_video ON (recording.recording_id = file_transcoded_video.recording_id)
		INNER JOIN file_bif ON (recording.recording_id = file_bif.recording_id)
		INNER JOIN episode ON (recording.show_id = episode.show_id AND recording.episode_id = episode.episode_id)
		INNER JOIN show ON (recording.show_id = show.show_id)
		WHERE file_transcoded_video.state = 0
		  AND recording.show_id = $1
		  AND recording.category_code = ANY($2)
		ORDER BY recording.episode_id`,
		showID, categoryCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []EpisodeSummary
	for rows.Next() {
		var e EpisodeSummary
		err := rows.Scan(&e.RecordingID, &e.ShowID, &e.EpisodeID,
			&e.Title, &e.Description, &e.ImageURL, &e.ShowImageURL)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// RecordingDetail returns the full view of one recording, or nil when the
// recording does not exist.
func (db *DB) RecordingDetail(ctx context.Context, recordingID int) (*RecordingDetail, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording.recording_id, show.name, COALESCE(show.imageurl, ''),
		       recording.episode_id, COALESCE(episode.title, ''), COALESCE(episode.description, ''),
		       recording.date_recorded, recording.duration, COALESCE(recording.category_code, '')
		FROM recording
		INNER JOIN show ON (recording.show_id = show.show_id)
		INNER JOIN episode ON (recording.show_id = episode.show_id AND recording.episode_id = episode.episode_id)
		WHERE recording.recording_id = $1`,
		recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var d RecordingDetail
	err = rows.Scan(&d.RecordingID, &d.ShowName, &d.ShowImageURL,
		&d.EpisodeID, &d.EpisodeTitle, &d.EpisodeDescription,
		&d.DateRecorded, &d.DurationSeconds, &d.CategoryCode)
	if err != nil {
		return nil, err
	}
	d.DateRecorded = d.DateRecorded.UTC()
	return &d, nil
}

// DeleteRecording removes the recording row only; the file rows and the
// files on disk are reconciled away by the next reaper pass.
func (db *DB) DeleteRecording(ctx context.Context, recordingID int) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM recording WHERE recording_id = $1`, recordingID)
	return err
}

func (db *DB) PlaybackPosition(ctx context.Context, recordingID int) (int, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT position FROM playback_position WHERE recording_id = $1`, recordingID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var position int
	if rows.Next() {
		if err := rows.Scan(&position); err != nil {
			return 0, err
		}
	}
	return position, rows.Err()
}

func (db *DB) SetPlaybackPosition(ctx context.Context, recordingID, position int) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO playback_position (recording_id, position) VALUES ($1, $2)
		ON CONFLICT (recording_id) DO UPDATE SET position = EXCLUDED.position`,
		recordingID, position)
	return err
}

func (db *DB) CategoryCode(ctx context.Context, recordingID int) (string, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT COALESCE(category_code, '') FROM recording WHERE recording_id = $1`, recordingID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var code string
	if rows.Next() {
		if err := rows.Scan(&code); err != nil {
			return "", err
		}
	}
	return code, rows.Err()
}

func (db *DB) SetCategoryCode(ctx context.Context, recordingID int, categoryCode string) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE recording SET category_code = $1 WHERE recording_id = $2`,
		categoryCode, recordingID)
	return err
}

// TranscodeFailures lists recordings whose transcode exited nonzero.
func (db *DB) TranscodeFailures(ctx context.Context) ([]TranscodeFailure, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT file_transcoded_video.recording_id, recording.show_id,
		       COALESCE(show.name, ''), recording.episode_id, file_transcoded_video.filename
		FROM file_transcoded_video
		INNER JOIN recording USING (recording_id)
		LEFT JOIN show ON (recording.show_id = show.show_id)
		WHERE file_transcoded_video.state = 1
		ORDER BY file_transcoded_video.recording_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []TranscodeFailure
	for rows.Next() {
		var f TranscodeFailure
		err := rows.Scan(&f.RecordingID, &f.ShowID, &f.ShowName, &f.EpisodeID, &f.Filename)
		if err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// PendingTranscodeCount counts raw captures awaiting a transcode attempt.
func (db *DB) PendingTranscodeCount(ctx context.Context) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT count(*)
		FROM file_raw_video
		WHERE recording_id NOT IN (SELECT recording_id FROM file_transcoded_video)`,
	).Scan(&count)
	return count, err
}

// RemainingListingTime reports how far into the future the schedule table
// extends. Zero when there is no schedule at all.
func (db *DB) RemainingListingTime(ctx context.Context) (time.Duration, error) {
	rows, err := db.Pool.Query(ctx, `SELECT max(start_time) FROM schedule`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var latest *time.Time
	if rows.Next() {
		if err := rows.Scan(&latest); err != nil {
			return 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	return time.Until(*latest), nil
}

func (db *DB) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT subscription.show_id, subscription.priority, COALESCE(show.name, '')
		FROM subscription
		LEFT JOIN show ON (subscription.show_id = show.show_id)
		ORDER BY subscription.priority, subscription.show_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ShowID, &s.Priority, &s.ShowName); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (db *DB) InsertSubscription(ctx context.Context, showID string, priority int) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO subscription (show_id, priority) VALUES ($1, $2)
		ON CONFLICT (show_id) DO UPDATE SET priority = EXCLUDED.priority`,
		showID, priority)
	return err
}

func (db *DB) DeleteSubscription(ctx context.Context, showID string) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM subscription WHERE show_id = $1`, showID)
	return err
}

// UpcomingRecordings is the display form of the planner view: subscribed
// airings in the window, annotated with show and episode names.
func (db *DB) UpcomingRecordings(ctx context.Context, window time.Duration) ([]UpcomingRecording, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT ON (schedule.show_id, schedule.episode_id)
		       schedule.channel_major, schedule.channel_minor, schedule.start_time,
		       schedule.duration, schedule.show_id, COALESCE(show.name, ''),
		       schedule.episode_id, COALESCE(episode.title, ''), schedule.rerun_code
		FROM schedule
		INNER JOIN subscription ON (schedule.show_id = subscription.show_id)
		LEFT JOIN show ON (schedule.show_id = show.show_id)
		LEFT JOIN episode ON (schedule.show_id = episode.show_id AND schedule.episode_id = episode.episode_id)
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

	var upcoming []UpcomingRecording
	for rows.Next() {
		var u UpcomingRecording
		err := rows.Scan(&u.ChannelMajor, &u.ChannelMinor, &u.StartTime, &u.Duration,
			&u.ShowID, &u.ShowName, &u.EpisodeID, &u.EpisodeTitle, &u.RerunCode)
		if err != nil {
			return nil, err
		}
		u.StartTime = u.StartTime.UTC()
		upcoming = append(upcoming, u)
	}
	return upcoming, rows.Err()
}

// RecentRecordings returns the most recent capture attempts, newest first.
func (db *DB) RecentRecordings(ctx context.Context, limit int) ([]RecordingDetail, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording.recording_id, COALESCE(show.name, ''), COALESCE(show.imageurl, ''),
		       recording.episode_id, COALESCE(episode.title, ''), COALESCE(episode.description, ''),
		       recording.date_recorded, recording.duration, COALESCE(recording.category_code, '')
		FROM recording
		LEFT JOIN show ON (recording.show_id = show.show_id)
		LEFT JOIN episode ON (recording.show_id = episode.show_id AND recording.episode_id = episode.episode_id)
		ORDER BY recording.date_recorded DESC, recording.recording_id DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recent []RecordingDetail
	for rows.Next() {
		var d RecordingDetail
		err := rows.Scan(&d.RecordingID, &d.ShowName, &d.ShowImageURL,
			&d.EpisodeID, &d.EpisodeTitle, &d.EpisodeDescription,
			&d.DateRecorded, &d.DurationSeconds, &d.CategoryCode)
		if err != nil {
			return nil, err
		}
		d.DateRecorded = d.DateRecorded.UTC()
		recent = append(recent, d)
	}
	return recent, rows.Err()
}

// FindInconsistencies surfaces rows that disagree with the recording table:
// naked recording stubs with no files and file rows whose recording is gone.
func (db *DB) FindInconsistencies(ctx context.Context) (*Inconsistencies, error) {
	inc := &Inconsistencies{}

	collect := func(query string, dest *[]int) error {
		rows, err := db.Pool.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				return err
			}
			*dest = append(*dest, id)
		}
		return rows.Err()
	}

	queries := []struct {
		query string
		dest  *[]int
	}{
		{`SELECT recording_id FROM recording
		  WHERE recording_id NOT IN (SELECT recording_id FROM file_raw_video)
		    AND recording_id NOT IN (SELECT recording_id FROM file_transcoded_video)
		  ORDER BY recording_id`, &inc.RecordingsWithoutFiles},
		{`SELECT recording_id FROM file_raw_video
		  WHERE recording_id NOT IN (SELECT recording_id FROM recording)
		  ORDER BY recording_id`, &inc.OrphanedRawFiles},
		{`SELECT recording_id FROM file_transcoded_video
		  WHERE recording_id NOT IN (SELECT recording_id FROM recording)
		  ORDER BY recording_id`, &inc.OrphanedTranscoded},
		{`SELECT recording_id FROM file_bif
		  WHERE recording_id NOT IN (SELECT recording_id FROM recording)
		  ORDER BY recording_id`, &inc.OrphanedBifs},
	}
	for _, q := range queries {
		if err := collect(q.query, q.dest); err != nil {
			return nil, err
		}
	}
	return inc, nil
}
