package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

// LibraryStore writes synchronization results.
type LibraryStore struct {
	db      *sql.DB
	service string
	logger  *log.Logger
}

// NewLibraryStore creates a store that tags rows with service.
func NewLibraryStore(db *sql.DB, service string, logger *log.Logger) *LibraryStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &LibraryStore{db: db, service: service, logger: logger}
}

// SaveSync stores result for userID in one transaction.
//
// Playlists are upserted by (service, service id, user id) and tracks by
// (service, service id). Membership is replaced for every playlist whose
// tracks were fetched; a playlist listed under a partial failure keeps its
// previous tracks. The run itself is recorded in sync_runs.
func (s *LibraryStore) SaveSync(ctx context.Context, userID string, result *models.SyncResult) (*models.SyncRun, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrPersist)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrPersist, err)
	}
	defer tx.Rollback()

	playlists := NewPlaylistRepository(tx)
	tracks := NewTrackRepository(tx)
	members := NewPlaylistTrackRepository(tx)

	for _, p := range result.Playlists {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if p.Title == "" {
			p.Title = p.ID
		}
		fetched, ok := result.TracksByPlaylistID[p.ID]
		row := models.NewPersistedPlaylist(0, s.service, userID, p)
		if ok {
			row.SetTrackCount(len(fetched))
		}
		if err := playlists.Upsert(row); err != nil {
			return nil, fmt.Errorf("%w: playlist %s: %w", shared.ErrPersist, p.ID, err)
		}
		if !ok {
			continue
		}

		ids := make([]string, 0, len(fetched))
		for _, t := range fetched {
			if t.Title == "" {
				t.Title = t.ID
			}
			track := models.NewPersistedTrack(0, s.service, t)
			if err := tracks.Upsert(track); err != nil {
				return nil, fmt.Errorf("%w: track %s: %w", shared.ErrPersist, t.ID, err)
			}
			ids = append(ids, track.ID())
		}
		if err := members.Replace(row.ID(), ids); err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrPersist, err)
		}
	}

	run := models.NewSyncRun(result)
	run.UserID = userID
	if err := NewSyncRunRepository(tx).Create(run); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrPersist, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", shared.ErrPersist, err)
	}

	s.logger.Info("library saved", "user_id", userID, "playlists", run.PlaylistCount, "tracks", run.TrackCount, "status", run.Status)
	return run, nil
}

// History returns a user's most recent runs. An empty userID returns runs for everyone.
func (s *LibraryStore) History(userID string, limit int) ([]*models.SyncRun, error) {
	return NewSyncRunRepository(s.db).List(userID, limit)
}

// Playlists returns a user's stored playlists.
func (s *LibraryStore) Playlists(userID string) ([]*models.PersistedPlaylist, error) {
	return NewPlaylistRepository(s.db).List(map[string]any{"user_id": userID, "service": s.service})
}

// Tracks returns a stored playlist's tracks in order.
func (s *LibraryStore) Tracks(playlistID string) ([]*models.PersistedTrack, error) {
	return NewPlaylistTrackRepository(s.db).Tracks(playlistID)
}
