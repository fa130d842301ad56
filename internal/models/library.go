package models

import (
	"errors"
	"time"
)

// PersistedPlaylist is a playlist snapshot stored after a sync.
//
// Unique per (service, service id, user id).
type PersistedPlaylist struct {
	id          string
	sequence    int
	service     string
	serviceID   string
	userID      string
	name        string
	description string
	imageURL    string
	trackCount  int
	virtual     bool
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

// NewPersistedPlaylist builds a playlist entity from a catalog playlist.
func NewPersistedPlaylist(sequence int, service, userID string, p ExternalPlaylist) *PersistedPlaylist {
	now := time.Now()
	return &PersistedPlaylist{
		sequence:    sequence,
		service:     service,
		serviceID:   p.ID,
		userID:      userID,
		name:        p.Title,
		description: p.Description,
		imageURL:    p.ImageURL,
		trackCount:  p.TrackCount,
		virtual:     p.IsVirtual(),
		createdAt:   now,
		updatedAt:   now,
	}
}

func (p *PersistedPlaylist) ID() string            { return p.id }
func (p *PersistedPlaylist) Sequence() int         { return p.sequence }
func (p *PersistedPlaylist) Service() string       { return p.service }
func (p *PersistedPlaylist) ServiceID() string     { return p.serviceID }
func (p *PersistedPlaylist) UserID() string        { return p.userID }
func (p *PersistedPlaylist) Name() string          { return p.name }
func (p *PersistedPlaylist) Description() string   { return p.description }
func (p *PersistedPlaylist) ImageURL() string      { return p.imageURL }
func (p *PersistedPlaylist) TrackCount() int       { return p.trackCount }
func (p *PersistedPlaylist) Virtual() bool         { return p.virtual }
func (p *PersistedPlaylist) CreatedAt() time.Time  { return p.createdAt }
func (p *PersistedPlaylist) UpdatedAt() time.Time  { return p.updatedAt }
func (p *PersistedPlaylist) DeletedAt() *time.Time { return p.deletedAt }

func (p *PersistedPlaylist) SetID(id string)             { p.id = id }
func (p *PersistedPlaylist) SetSequence(seq int)         { p.sequence = seq }
func (p *PersistedPlaylist) SetTrackCount(n int)         { p.trackCount = n }
func (p *PersistedPlaylist) SetCreatedAt(t time.Time)    { p.createdAt = t }
func (p *PersistedPlaylist) SetUpdatedAt(t time.Time)    { p.updatedAt = t }
func (p *PersistedPlaylist) SetDeletedAt(t *time.Time)   { p.deletedAt = t }
func (p *PersistedPlaylist) SetDescription(desc string)  { p.description = desc }
func (p *PersistedPlaylist) SetImageURL(imageURL string) { p.imageURL = imageURL }
func (p *PersistedPlaylist) SetName(name string)         { p.name = name }

// Playlist converts back to the catalog representation, without tracks.
func (p *PersistedPlaylist) Playlist() ExternalPlaylist {
	return ExternalPlaylist{
		ID:          p.serviceID,
		Title:       p.name,
		Description: p.description,
		TrackCount:  p.trackCount,
		ImageURL:    p.imageURL,
		Virtual:     p.virtual,
	}
}

// Validate checks required fields.
func (p *PersistedPlaylist) Validate() error {
	switch {
	case p.service == "":
		return errors.New("service is required")
	case p.serviceID == "":
		return errors.New("service id is required")
	case p.userID == "":
		return errors.New("user id is required")
	case p.name == "":
		return errors.New("name is required")
	}
	return nil
}

// PersistedTrack is a track stored after a sync, shared between playlists.
type PersistedTrack struct {
	id        string
	sequence  int
	service   string
	serviceID string
	title     string
	artist    string
	album     string
	duration  time.Duration
	isrc      string
	imageURL  string
	createdAt time.Time
	updatedAt time.Time
}

// NewPersistedTrack builds a track entity from a catalog track.
func NewPersistedTrack(sequence int, service string, t ExternalTrack) *PersistedTrack {
	now := time.Now()
	return &PersistedTrack{
		sequence:  sequence,
		service:   service,
		serviceID: t.ID,
		title:     t.Title,
		artist:    t.Artist,
		album:     t.Album,
		duration:  t.Duration,
		isrc:      t.ISRC,
		imageURL:  t.ImageURL,
		createdAt: now,
		updatedAt: now,
	}
}

func (t *PersistedTrack) ID() string              { return t.id }
func (t *PersistedTrack) Sequence() int           { return t.sequence }
func (t *PersistedTrack) Service() string         { return t.service }
func (t *PersistedTrack) ServiceID() string       { return t.serviceID }
func (t *PersistedTrack) Title() string           { return t.title }
func (t *PersistedTrack) Artist() string          { return t.artist }
func (t *PersistedTrack) Album() string           { return t.album }
func (t *PersistedTrack) Duration() time.Duration { return t.duration }
func (t *PersistedTrack) ISRC() string            { return t.isrc }
func (t *PersistedTrack) ImageURL() string        { return t.imageURL }
func (t *PersistedTrack) CreatedAt() time.Time    { return t.createdAt }
func (t *PersistedTrack) UpdatedAt() time.Time    { return t.updatedAt }

func (t *PersistedTrack) SetID(id string)           { t.id = id }
func (t *PersistedTrack) SetSequence(seq int)       { t.sequence = seq }
func (t *PersistedTrack) SetCreatedAt(ts time.Time) { t.createdAt = ts }
func (t *PersistedTrack) SetUpdatedAt(ts time.Time) { t.updatedAt = ts }

// Track converts back to the catalog representation.
func (t *PersistedTrack) Track() ExternalTrack {
	return ExternalTrack{
		ID:       t.serviceID,
		Title:    t.title,
		Artist:   t.artist,
		Album:    t.album,
		Duration: t.duration,
		ISRC:     t.isrc,
		ImageURL: t.imageURL,
	}
}

// Validate checks required fields.
func (t *PersistedTrack) Validate() error {
	switch {
	case t.service == "":
		return errors.New("service is required")
	case t.serviceID == "":
		return errors.New("service id is required")
	case t.title == "":
		return errors.New("title is required")
	}
	return nil
}

// SyncRun is one row of synchronization history.
type SyncRun struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	CountryCode   string           `json:"countryCode"`
	Status        string           `json:"status"`
	PlaylistCount int              `json:"playlistCount"`
	TrackCount    int              `json:"trackCount"`
	Failures      []PartialFailure `json:"failures"`
	StartedAt     time.Time        `json:"startedAt"`
	FinishedAt    time.Time        `json:"finishedAt"`
}

// NewSyncRun summarizes result as a history row.
func NewSyncRun(result *SyncResult) *SyncRun {
	return &SyncRun{
		UserID:        result.Identity.UserID,
		CountryCode:   result.Identity.CountryCode,
		Status:        result.Status(),
		PlaylistCount: len(result.Playlists),
		TrackCount:    result.TrackCount(),
		Failures:      result.PartialFailures,
		StartedAt:     result.StartedAt,
		FinishedAt:    result.FinishedAt,
	}
}
