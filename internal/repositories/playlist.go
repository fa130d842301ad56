package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

const playlistColumns = `id, sequence, service, service_id, user_id, name, description, image_url, track_count, virtual, created_at, updated_at, deleted_at`

// PlaylistRepository implements models.Repository[*models.PersistedPlaylist] for synchronized playlists.
//
// Handles playlist CRUD operations with soft delete support and service-specific lookups.
type PlaylistRepository struct {
	q Querier
}

// NewPlaylistRepository creates a new PlaylistRepository on q
func NewPlaylistRepository(q Querier) *PlaylistRepository {
	return &PlaylistRepository{q: q}
}

// Create inserts a new playlist into the database with generated ID and sequence
func (r *PlaylistRepository) Create(playlist *models.PersistedPlaylist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.q, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	playlist.SetID(id)
	playlist.SetSequence(sequence)

	query := `
		INSERT INTO playlists (id, sequence, service, service_id, user_id, name, description, image_url, track_count, virtual, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.q.Exec(query,
		id,
		sequence,
		playlist.Service(),
		playlist.ServiceID(),
		playlist.UserID(),
		playlist.Name(),
		playlist.Description(),
		playlist.ImageURL(),
		playlist.TrackCount(),
		playlist.Virtual(),
		playlist.CreatedAt(),
		playlist.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}
	return nil
}

// Get retrieves a playlist by ID, excluding soft-deleted playlists
func (r *PlaylistRepository) Get(id string) (*models.PersistedPlaylist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.q.QueryRow(query, id))
}

// GetByServiceID retrieves a user's playlist by its platform id, including
// soft-deleted rows so a re-synced playlist is revived rather than duplicated.
func (r *PlaylistRepository) GetByServiceID(service, serviceID, userID string) (*models.PersistedPlaylist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE service = ? AND service_id = ? AND user_id = ?`
	return r.scan(r.q.QueryRow(query, service, serviceID, userID))
}

// Update modifies an existing playlist and clears any soft delete
func (r *PlaylistRepository) Update(playlist *models.PersistedPlaylist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	playlist.SetUpdatedAt(now)
	playlist.SetDeletedAt(nil)

	query := `
		UPDATE playlists
		SET name = ?, description = ?, image_url = ?, track_count = ?, virtual = ?, updated_at = ?, deleted_at = NULL
		WHERE id = ?
	`

	result, err := r.q.Exec(query,
		playlist.Name(),
		playlist.Description(),
		playlist.ImageURL(),
		playlist.TrackCount(),
		playlist.Virtual(),
		now,
		playlist.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	return rowsAffected(result, "playlist", playlist.ID())
}

// Upsert creates the playlist or updates the existing row with the same
// service, service id and user. The playlist's ID is set either way.
func (r *PlaylistRepository) Upsert(playlist *models.PersistedPlaylist) error {
	existing, err := r.GetByServiceID(playlist.Service(), playlist.ServiceID(), playlist.UserID())
	switch {
	case err == nil:
		playlist.SetID(existing.ID())
		playlist.SetSequence(existing.Sequence())
		playlist.SetCreatedAt(existing.CreatedAt())
		return r.Update(playlist)
	case isNotFound(err):
		return r.Create(playlist)
	default:
		return err
	}
}

// Delete soft-deletes a playlist by ID
func (r *PlaylistRepository) Delete(id string) error {
	result, err := r.q.Exec(`UPDATE playlists SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return rowsAffected(result, "playlist", id)
}

// List retrieves all playlists matching the given criteria, excluding soft-deleted playlists.
//
// Supported criteria: user_id, service.
func (r *PlaylistRepository) List(criteria map[string]any) ([]*models.PersistedPlaylist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE deleted_at IS NULL`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if service, ok := criteria["service"].(string); ok && service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}
	query += " ORDER BY sequence ASC"

	rows, err := r.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	playlists := []*models.PersistedPlaylist{}
	for rows.Next() {
		playlist, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return playlists, nil
}

func (r *PlaylistRepository) scan(row scanner) (*models.PersistedPlaylist, error) {
	var (
		id, service, serviceID, userID, name string
		description, imageURL                sql.NullString
		sequence, trackCount                 int
		virtual                              bool
		createdAt, updatedAt                 time.Time
		deletedAt                            sql.NullTime
	)

	err := row.Scan(&id, &sequence, &service, &serviceID, &userID, &name, &description, &imageURL, &trackCount, &virtual, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, notFound(err, "playlist")
	}

	playlist := models.NewPersistedPlaylist(sequence, service, userID, models.ExternalPlaylist{
		ID:          serviceID,
		Title:       name,
		Description: description.String,
		ImageURL:    imageURL.String,
		TrackCount:  trackCount,
		Virtual:     virtual,
	})
	playlist.SetID(id)
	playlist.SetCreatedAt(createdAt)
	playlist.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		playlist.SetDeletedAt(&deletedAt.Time)
	}
	return playlist, nil
}

var _ models.Repository[*models.PersistedPlaylist] = (*PlaylistRepository)(nil)
