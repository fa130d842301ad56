package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

const trackColumns = `id, sequence, service, service_id, title, artist, album, duration_ms, isrc, image_url, created_at, updated_at`

// TrackRepository implements models.Repository[*models.PersistedTrack].
//
// Tracks are shared between playlists, so Delete removes the row and its memberships.
type TrackRepository struct {
	q Querier
}

// NewTrackRepository creates a new TrackRepository on q
func NewTrackRepository(q Querier) *TrackRepository {
	return &TrackRepository{q: q}
}

// Create inserts a new track with generated ID and sequence
func (r *TrackRepository) Create(track *models.PersistedTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.q, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	track.SetID(id)
	track.SetSequence(sequence)

	query := `
		INSERT INTO tracks (id, sequence, service, service_id, title, artist, album, duration_ms, isrc, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.q.Exec(query,
		id,
		sequence,
		track.Service(),
		track.ServiceID(),
		track.Title(),
		track.Artist(),
		track.Album(),
		track.Duration().Milliseconds(),
		nullable(track.ISRC()),
		track.ImageURL(),
		track.CreatedAt(),
		track.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(id string) (*models.PersistedTrack, error) {
	return r.scan(r.q.QueryRow(`SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id))
}

// GetByServiceID retrieves a track by service and service_id
func (r *TrackRepository) GetByServiceID(service, serviceID string) (*models.PersistedTrack, error) {
	return r.scan(r.q.QueryRow(`SELECT `+trackColumns+` FROM tracks WHERE service = ? AND service_id = ?`, service, serviceID))
}

// Update refreshes a track's metadata
func (r *TrackRepository) Update(track *models.PersistedTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	track.SetUpdatedAt(now)

	query := `
		UPDATE tracks
		SET title = ?, artist = ?, album = ?, duration_ms = ?, isrc = ?, image_url = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.q.Exec(query,
		track.Title(),
		track.Artist(),
		track.Album(),
		track.Duration().Milliseconds(),
		nullable(track.ISRC()),
		track.ImageURL(),
		now,
		track.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}
	return rowsAffected(result, "track", track.ID())
}

// Upsert creates the track or updates the row with the same service and service id.
func (r *TrackRepository) Upsert(track *models.PersistedTrack) error {
	existing, err := r.GetByServiceID(track.Service(), track.ServiceID())
	switch {
	case err == nil:
		track.SetID(existing.ID())
		track.SetSequence(existing.Sequence())
		track.SetCreatedAt(existing.CreatedAt())
		return r.Update(track)
	case isNotFound(err):
		return r.Create(track)
	default:
		return err
	}
}

// Delete removes a track by ID
func (r *TrackRepository) Delete(id string) error {
	result, err := r.q.Exec(`DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return rowsAffected(result, "track", id)
}

// List retrieves tracks matching the given criteria.
//
// Supported criteria: service, isrc, artist.
func (r *TrackRepository) List(criteria map[string]any) ([]*models.PersistedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE 1 = 1`
	args := []any{}

	for _, col := range []string{"service", "isrc", "artist"} {
		if v, ok := criteria[col].(string); ok && v != "" {
			query += " AND " + col + " = ?"
			args = append(args, v)
		}
	}
	query += " ORDER BY sequence ASC"

	rows, err := r.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *TrackRepository) scanAll(rows *sql.Rows) ([]*models.PersistedTrack, error) {
	tracks := []*models.PersistedTrack{}
	for rows.Next() {
		track, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

func (r *TrackRepository) scan(row scanner) (*models.PersistedTrack, error) {
	var (
		id, service, serviceID, title, artist string
		album, isrc, imageURL                 sql.NullString
		sequence                              int
		durationMS                            int64
		createdAt, updatedAt                  time.Time
	)

	err := row.Scan(&id, &sequence, &service, &serviceID, &title, &artist, &album, &durationMS, &isrc, &imageURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFound(err, "track")
	}

	track := models.NewPersistedTrack(sequence, service, models.ExternalTrack{
		ID:       serviceID,
		Title:    title,
		Artist:   artist,
		Album:    album.String,
		Duration: time.Duration(durationMS) * time.Millisecond,
		ISRC:     isrc.String,
		ImageURL: imageURL.String,
	})
	track.SetID(id)
	track.SetCreatedAt(createdAt)
	track.SetUpdatedAt(updatedAt)
	return track, nil
}

// nullable stores empty strings as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ models.Repository[*models.PersistedTrack] = (*TrackRepository)(nil)
