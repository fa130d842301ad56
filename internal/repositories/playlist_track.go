package repositories

import (
	"fmt"

	"github.com/dooseok913/music-front/internal/models"
)

// PlaylistTrackRepository manages ordered playlist membership.
type PlaylistTrackRepository struct {
	q Querier
}

func NewPlaylistTrackRepository(q Querier) *PlaylistTrackRepository {
	return &PlaylistTrackRepository{q: q}
}

// Replace sets the playlist's tracks to trackIDs, in order.
func (r *PlaylistTrackRepository) Replace(playlistID string, trackIDs []string) error {
	if _, err := r.q.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("failed to clear playlist tracks: %w", err)
	}
	for pos, trackID := range trackIDs {
		_, err := r.q.Exec(`INSERT INTO playlist_tracks (playlist_id, track_id, position) VALUES (?, ?, ?)`, playlistID, trackID, pos)
		if err != nil {
			return fmt.Errorf("failed to add track %s at %d: %w", trackID, pos, err)
		}
	}
	return nil
}

// Tracks returns the playlist's tracks in position order.
func (r *PlaylistTrackRepository) Tracks(playlistID string) ([]*models.PersistedTrack, error) {
	query := `
		SELECT t.id, t.sequence, t.service, t.service_id, t.title, t.artist, t.album, t.duration_ms, t.isrc, t.image_url, t.created_at, t.updated_at
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position ASC
	`
	rows, err := r.q.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()
	return (&TrackRepository{q: r.q}).scanAll(rows)
}

// Count returns how many tracks the playlist holds.
func (r *PlaylistTrackRepository) Count(playlistID string) (int, error) {
	var n int
	if err := r.q.QueryRow(`SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id = ?`, playlistID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count playlist tracks: %w", err)
	}
	return n, nil
}
