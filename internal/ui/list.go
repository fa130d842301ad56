package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.ExternalPlaylist] and its sync outcome to implement [list.Item].
type playlistItem struct {
	playlist models.ExternalPlaylist
	tracks   []models.ExternalTrack
	failure  string
}

func (i playlistItem) FilterValue() string { return i.playlist.Title }
func (i playlistItem) Title() string {
	if i.failure != "" {
		return "✗ " + i.playlist.Title
	}
	return i.playlist.Title
}
func (i playlistItem) Description() string {
	if i.failure != "" {
		return i.failure
	}
	desc := fmt.Sprintf("%d tracks", len(i.tracks))
	if i.playlist.IsVirtual() {
		desc += " • favorites"
	} else if i.playlist.Description != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Description)
	}
	return desc
}

// trackItem wraps [models.ExternalTrack] to implement [list.Item].
type trackItem struct {
	track models.ExternalTrack
}

func (i trackItem) FilterValue() string { return i.track.Title }
func (i trackItem) Title() string       { return i.track.Title }
func (i trackItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.track.Artist, shared.FormatDuration(i.track.Duration))
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	return desc
}

// playlistItems builds list items in result order, failures included.
func playlistItems(result *models.SyncResult) []list.Item {
	failures := make(map[string]string, len(result.PartialFailures))
	for _, f := range result.PartialFailures {
		failures[f.PlaylistID] = f.Error
	}

	items := make([]list.Item, 0, len(result.Playlists))
	for _, p := range result.Playlists {
		item := playlistItem{playlist: p, tracks: result.TracksByPlaylistID[p.ID]}
		if _, ok := result.TracksByPlaylistID[p.ID]; !ok {
			item.failure = failures[p.ID]
			if item.failure == "" {
				item.failure = "not fetched"
			}
		}
		items = append(items, item)
	}
	return items
}

func trackItems(tracks []models.ExternalTrack) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
