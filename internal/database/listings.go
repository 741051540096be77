package database

import (
	"context"
	"time"
)

// ListingShow, ListingEpisode and ListingAiring are the import-side shapes
// produced by a guide parser.
type ListingShow struct {
	ShowID   string
	ShowType string
	Name     string
	ImageURL string
}

type ListingEpisode struct {
	ShowID      string
	EpisodeID   string
	Title       string
	Description string
	PartCode    string
	ImageURL    string
}

type ListingAiring struct {
	ChannelMajor int
	ChannelMinor int
	StartTime    time.Time
	Duration     time.Duration
	ShowID       string
	EpisodeID    string
	RerunCode    string
}

// ReplaceListings applies one guide import in a single transaction: shows
// and episodes are upserted and the schedule table is replaced wholesale.
// Airings naming a channel absent from the provisioned lineup are dropped
// (a tuner could never be pointed at them); the count of dropped airings
// is returned for the caller to log. Planning runs far more often than
// listings change, so full replacement keeps the import trivially
// idempotent.
func (db *DB) ReplaceListings(ctx context.Context, shows []ListingShow, episodes []ListingEpisode, airings []ListingAiring) (skipped int, err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	for _, s := range shows {
		_, err := tx.Exec(ctx, `
			INSERT INTO show (show_id, show_type, name, imageurl)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (show_id) DO UPDATE
			SET show_type = EXCLUDED.show_type, name = EXCLUDED.name, imageurl = EXCLUDED.imageurl`,
			s.ShowID, s.ShowType, s.Name, s.ImageURL)
		if err != nil {
			return 0, err
		}
	}

	for _, e := range episodes {
		_, err := tx.Exec(ctx, `
			INSERT INTO episode (show_id, episode_id, title, description, part_code, imageurl)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (show_id, episode_id) DO UPDATE
			SET title = EXCLUDED.title, description = EXCLUDED.description,
			    part_code = EXCLUDED.part_code, imageurl = EXCLUDED.imageurl`,
			e.ShowID, e.EpisodeID, e.Title, e.Description, e.PartCode, e.ImageURL)
		if err != nil {
			return 0, err
		}
	}

	rows, err := tx.Query(ctx, `SELECT major, minor FROM channel`)
	if err != nil {
		return 0, err
	}
	lineup := make(map[[2]int]bool)
	for rows.Next() {
		var major, minor int
		if err := rows.Scan(&major, &minor); err != nil {
			rows.Close()
			return 0, err
		}
		lineup[[2]int{major, minor}] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	valid := validAirings(airings, lineup)
	skipped = len(airings) - len(valid)

	if _, err := tx.Exec(ctx, `DELETE FROM schedule`); err != nil {
		return 0, err
	}
	for _, a := range valid {
		_, err := tx.Exec(ctx, `
			INSERT INTO schedule (channel_major, channel_minor, start_time, duration, show_id, episode_id, rerun_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ChannelMajor, a.ChannelMinor, a.StartTime.UTC(),
			int(a.Duration.Seconds()), a.ShowID, a.EpisodeID, a.RerunCode)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return skipped, nil
}

// validAirings keeps only airings whose channel exists in the lineup.
func validAirings(airings []ListingAiring, lineup map[[2]int]bool) []ListingAiring {
	valid := make([]ListingAiring, 0, len(airings))
	for _, a := range airings {
		if lineup[[2]int{a.ChannelMajor, a.ChannelMinor}] {
			valid = append(valid, a)
		}
	}
	return valid
}
