package tasks

import (
	"fmt"

	"github.com/dooseok913/music-front/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ResolveIdentity Phase = iota
	ListPlaylists
	FetchTracks
	Persist
)

func (p Phase) String() string {
	switch p {
	case ResolveIdentity:
		return "resolve_identity"
	case ListPlaylists:
		return "list_playlists"
	case FetchTracks:
		return "fetch_tracks"
	case Persist:
		return "persist"
	default:
		return ""
	}
}

func resolvingUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: ResolveIdentity, Step: 0, Total: 1, Message: "Resolving account..."}
}

func resolvedUpdate(identity *models.ResolvedIdentity) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveIdentity,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Signed in as %s (%s)", identity.UserID, identity.CountryCode),
		Data:    identity,
	}
}

func listingUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: ListPlaylists, Step: 0, Total: 1, Message: "Listing playlists..."}
}

func listedUpdate(playlists []models.ExternalPlaylist) ProgressUpdate {
	msg := fmt.Sprintf("Found %d playlists", len(playlists))
	if len(playlists) == 1 && playlists[0].IsVirtual() {
		msg = fmt.Sprintf("No playlists found, using %d favorite tracks", playlists[0].TrackCount)
	}
	return ProgressUpdate{Phase: ListPlaylists, Step: 1, Total: 1, Message: msg, Data: playlists}
}

func trackUpdate(step, total int, p models.ExternalPlaylist, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, p.Title, count),
	}
}

func trackFailedUpdate(step, total int, p models.ExternalPlaylist, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, p.Title, err),
	}
}

func persistUpdate(step int, run *models.SyncRun) ProgressUpdate {
	if run == nil {
		return ProgressUpdate{Phase: Persist, Step: step, Total: 1, Message: "Saving library..."}
	}
	return ProgressUpdate{
		Phase:   Persist,
		Step:    step,
		Total:   1,
		Message: fmt.Sprintf("Saved %d playlists and %d tracks", run.PlaylistCount, run.TrackCount),
		Data:    run,
	}
}
