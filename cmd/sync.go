package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dooseok913/music-front/internal/formatter"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/repositories"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/dooseok913/music-front/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun synchronizes the library, persists it and optionally exports it.
//
// Credentials only live for the process, so a run without a user session
// starts a device login first.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	var format formatter.Format
	export := cmd.Bool("export") || cmd.String("export-dir") != ""
	if export {
		var err error
		if format, err = formatter.ParseFormat(cmd.String("format")); err != nil {
			return err
		}
	}

	engine, err := r.newEngine(true, cmd.Int("workers"))
	if err != nil {
		return err
	}

	if !engine.AuthStatus(ctx).UserConnected {
		r.writePlain("No TIDAL user session, starting a device login.\n")
		if _, err := r.deviceLogin(ctx, engine, false); err != nil {
			return err
		}
	}

	result, err := r.runSync(ctx, engine, !cmd.Bool("json"))
	switch {
	case result != nil && errors.Is(err, shared.ErrPersist):
		r.logger.Warn("sync result was not saved", "error", err)
	case err != nil:
		return err
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(result, true); err != nil {
			return err
		}
	} else {
		r.printSyncResult(result)
	}

	if !export {
		return nil
	}

	opts := []formatter.ExportOption{formatter.WithExportLogger(r.logger)}
	if cmd.Bool("covers") {
		opts = append(opts, formatter.WithCoverImages(r.httpClient))
	}
	written, err := formatter.WriteLibraryExport(result, format, cmd.String("export-dir"), opts...)
	if err != nil {
		return err
	}

	r.logger.Info("library exported", "dir", written.Directory, "files", len(written.Files))
	if cmd.Bool("json") {
		return nil
	}
	return r.writePlain("✓ Exported %d playlists to %s\n", len(result.TracksByPlaylistID), written.Directory)
}

// runSync runs engine once, printing progress messages when verbose.
func (r *Runner) runSync(ctx context.Context, engine *tasks.LibraryEngine, verbose bool) (*models.SyncResult, error) {
	progress := make(chan tasks.ProgressUpdate, 100)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			if verbose && update.Message != "" {
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	result, err := engine.Run(ctx, progress)
	close(progress)
	wg.Wait()
	return result, err
}

func (r *Runner) printSyncResult(result *models.SyncResult) {
	r.writePlainln("✓ Synced %d playlists, %d tracks for %s (%s)",
		len(result.Playlists), result.TrackCount(), result.Identity.UserID, result.Identity.CountryCode)

	if len(result.PartialFailures) == 0 {
		return
	}
	r.writePlain("⚠ %d playlists could not be fetched:\n", len(result.PartialFailures))
	for _, f := range result.PartialFailures {
		r.writePlain("  ✗ %s (%s): %s\n", f.Title, f.PlaylistID, f.Error)
	}
}

// SyncHistory lists recent runs from the database.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openLibrary()
	if err != nil {
		return err
	}

	runs, err := store.History(cmd.String("user"), cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}

	if len(runs) == 0 {
		return r.writePlain("No synchronization runs yet.\n")
	}

	r.writePlainHeader("Sync history")
	for _, run := range runs {
		r.writePlain("%s  %-9s user %s (%s)  %d playlists, %d tracks",
			run.StartedAt.Local().Format(time.DateTime), run.Status, run.UserID, run.CountryCode,
			run.PlaylistCount, run.TrackCount)
		if n := len(run.Failures); n > 0 {
			r.writePlain(", %d failed", n)
		}
		r.writePlain("  [%s]\n", shared.FormatDuration(run.FinishedAt.Sub(run.StartedAt)))
	}
	return nil
}

// storedPlaylist is a playlist as kept in the local library.
type storedPlaylist struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"userId"`
	Playlist  models.ExternalPlaylist `json:"playlist"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// SyncShow lists the stored playlists, or one stored playlist's tracks when an id is given.
func (r *Runner) SyncShow(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openLibrary()
	if err != nil {
		return err
	}

	if id := cmd.StringArg("playlist"); id != "" {
		return r.showTracks(store, id, cmd.Bool("json"))
	}

	playlists, err := store.Playlists(cmd.String("user"))
	if err != nil {
		return err
	}

	stored := make([]storedPlaylist, len(playlists))
	for i, p := range playlists {
		stored[i] = storedPlaylist{ID: p.ID(), UserID: p.UserID(), Playlist: p.Playlist(), UpdatedAt: p.UpdatedAt()}
	}

	if cmd.Bool("json") {
		return r.writeJSON(stored, true)
	}

	if len(stored) == 0 {
		return r.writePlain("No stored playlists. Run 'musicspace sync run' first.\n")
	}

	r.writePlainHeader("Stored playlists")
	for i, p := range stored {
		r.writePlain("%d. %s (%d tracks)\n", i+1, p.Playlist.Title, p.Playlist.TrackCount)
		r.writePlain("   ID: %s  TIDAL: %s  user %s\n", p.ID, p.Playlist.ID, p.UserID)
	}
	return nil
}

func (r *Runner) showTracks(store *repositories.LibraryStore, playlistID string, asJSON bool) error {
	rows, err := store.Tracks(playlistID)
	if err != nil {
		return err
	}

	tracks := make([]models.ExternalTrack, len(rows))
	for i, t := range rows {
		tracks[i] = t.Track()
	}

	if asJSON {
		return r.writeJSON(tracks, true)
	}

	if len(tracks) == 0 {
		return r.writePlain("No tracks stored for playlist %s.\n", playlistID)
	}
	for i, t := range tracks {
		r.writePlain("%d. %s - %s [%s]\n", i+1, t.Artist, t.Title, shared.FormatDuration(t.Duration))
	}
	return nil
}
