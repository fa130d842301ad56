package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

const syncRunColumns = `id, user_id, country_code, status, playlist_count, track_count, failures, started_at, finished_at`

// SyncRunRepository records synchronization history.
type SyncRunRepository struct {
	q Querier
}

// NewSyncRunRepository creates a new SyncRunRepository on q
func NewSyncRunRepository(q Querier) *SyncRunRepository {
	return &SyncRunRepository{q: q}
}

// Create inserts run with a generated ID. Failures are stored as JSON.
func (r *SyncRunRepository) Create(run *models.SyncRun) error {
	if run.UserID == "" {
		return fmt.Errorf("%w: sync run needs a user id", shared.ErrInvalidInput)
	}

	if run.Failures == nil {
		run.Failures = []models.PartialFailure{}
	}
	failures, err := json.Marshal(run.Failures)
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}

	run.ID = shared.GenerateID()
	query := `
		INSERT INTO sync_runs (id, user_id, country_code, status, playlist_count, track_count, failure_count, failures, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.q.Exec(query,
		run.ID,
		run.UserID,
		run.CountryCode,
		run.Status,
		run.PlaylistCount,
		run.TrackCount,
		len(run.Failures),
		string(failures),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (r *SyncRunRepository) Get(id string) (*models.SyncRun, error) {
	return r.scan(r.q.QueryRow(`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, id))
}

// List returns a user's runs, newest first. A non-positive limit returns all.
func (r *SyncRunRepository) List(userID string, limit int) ([]*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.SyncRun{}
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func (r *SyncRunRepository) scan(row scanner) (*models.SyncRun, error) {
	var (
		run      models.SyncRun
		failures sql.NullString
		started  time.Time
		finished time.Time
	)
	err := row.Scan(&run.ID, &run.UserID, &run.CountryCode, &run.Status, &run.PlaylistCount, &run.TrackCount, &failures, &started, &finished)
	if err != nil {
		return nil, notFound(err, "sync run")
	}

	run.StartedAt, run.FinishedAt = started, finished
	run.Failures = []models.PartialFailure{}
	if failures.Valid && failures.String != "" {
		if err := json.Unmarshal([]byte(failures.String), &run.Failures); err != nil {
			return nil, fmt.Errorf("failed to decode failures for run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}
