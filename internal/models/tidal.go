package models

import (
	"strings"
	"time"
)

// VirtualPlaylistPrefix marks playlist ids that do not exist on the platform.
const VirtualPlaylistPrefix = "virtual:"

// FavoritesPlaylistID identifies the playlist synthesized from favorited tracks.
const FavoritesPlaylistID = VirtualPlaylistPrefix + "favorites"

// ClientCredential is an application-level token obtained with the client-credentials grant.
type ClientCredential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Usable reports whether the token can still be handed out at now, refreshing margin early.
func (c ClientCredential) Usable(now time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt.Add(-margin))
}

// UserCredential is a user-delegated token from the device or web login flow.
type UserCredential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	CountryCode  string
}

// Usable reports whether the token can still be handed out at now, refreshing margin early.
func (c UserCredential) Usable(now time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt.Add(-margin))
}

// DeviceAuthorization is what a client shows the user to complete a device login.
type DeviceAuthorization struct {
	DeviceCode              string `json:"deviceCode"`
	UserCode                string `json:"userCode"`
	VerificationURI         string `json:"verificationUri"`
	VerificationURIComplete string `json:"verificationUriComplete,omitempty"`
	ExpiresIn               int    `json:"expiresIn"`
	Interval                int    `json:"interval"`
}

// PollInterval is the server-mandated spacing between token polls, 5s when unspecified.
func (d DeviceAuthorization) PollInterval() time.Duration {
	if d.Interval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.Interval) * time.Second
}

// Window is how long the device code stays valid.
func (d DeviceAuthorization) Window() time.Duration {
	return time.Duration(d.ExpiresIn) * time.Second
}

// PollStatus classifies a single device token poll.
type PollStatus string

const (
	PollPending    PollStatus = "pending"
	PollAuthorized PollStatus = "authorized"
	PollFailed     PollStatus = "failed"
)

// OAuth error codes the device grant reports.
const (
	ErrCodePending      = "authorization_pending"
	ErrCodeSlowDown     = "slow_down"
	ErrCodeExpired      = "expired_token"
	ErrCodeDenied       = "access_denied"
	ErrCodeInvalidGrant = "invalid_grant"
)

// DevicePollResult is the outcome of one poll of the device token endpoint.
type DevicePollResult struct {
	Status           PollStatus        `json:"status"`
	Error            string            `json:"error,omitempty"`
	ErrorDescription string            `json:"error_description,omitempty"`
	Identity         *ResolvedIdentity `json:"user,omitempty"`
	IdentityResolved bool              `json:"identityResolved"`
	Credential       *UserCredential   `json:"-"`
}

// Pending reports whether the client should poll again.
func (r *DevicePollResult) Pending() bool {
	return r != nil && r.Status == PollPending
}

// ResolvedIdentity is the user and catalog region a sync runs against.
//
// Recomputed per sync run, never cached across runs.
type ResolvedIdentity struct {
	UserID      string `json:"userId"`
	CountryCode string `json:"countryCode"`
	Source      string `json:"source,omitempty"`
}

// ExternalPlaylist is a playlist as the platform reports it.
//
// Virtual playlists carry their tracks inline and must not be fetched by id.
type ExternalPlaylist struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	TrackCount  int             `json:"trackCount"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Creator     string          `json:"creator,omitempty"`
	Virtual     bool            `json:"virtual,omitempty"`
	Tracks      []ExternalTrack `json:"tracks,omitempty"`
}

// IsVirtual reports whether the playlist was synthesized rather than listed.
func (p ExternalPlaylist) IsVirtual() bool {
	return p.Virtual || strings.HasPrefix(p.ID, VirtualPlaylistPrefix)
}

// ExternalTrack is a track as the platform reports it.
type ExternalTrack struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Album    string        `json:"album,omitempty"`
	Duration time.Duration `json:"duration"`
	ISRC     string        `json:"isrc,omitempty"`
	ImageURL string        `json:"imageUrl,omitempty"`
}

// PartialFailure records a playlist whose tracks could not be fetched.
type PartialFailure struct {
	PlaylistID string `json:"playlistId"`
	Title      string `json:"title"`
	Error      string `json:"error"`
}

// Sync statuses recorded for a [SyncResult].
const (
	SyncCompleted = "completed"
	SyncPartial   = "partial"
	SyncEmpty     = "empty"
)

// SyncResult is the outcome of one synchronization.
//
// Every id in Playlists is either a key of TracksByPlaylistID or the subject of a PartialFailure.
type SyncResult struct {
	Identity           ResolvedIdentity           `json:"identity"`
	Playlists          []ExternalPlaylist         `json:"playlists"`
	TracksByPlaylistID map[string][]ExternalTrack `json:"tracksByPlaylistId"`
	PartialFailures    []PartialFailure           `json:"partialFailures"`
	StartedAt          time.Time                  `json:"startedAt"`
	FinishedAt         time.Time                  `json:"finishedAt"`
}

// NewSyncResult returns an empty result for identity.
func NewSyncResult(identity ResolvedIdentity, started time.Time) *SyncResult {
	return &SyncResult{
		Identity:           identity,
		Playlists:          []ExternalPlaylist{},
		TracksByPlaylistID: map[string][]ExternalTrack{},
		PartialFailures:    []PartialFailure{},
		StartedAt:          started,
	}
}

// TrackCount is the number of tracks across all fetched playlists.
func (r *SyncResult) TrackCount() int {
	n := 0
	for _, tracks := range r.TracksByPlaylistID {
		n += len(tracks)
	}
	return n
}

// Status summarizes the run for history records.
func (r *SyncResult) Status() string {
	switch {
	case len(r.Playlists) == 0:
		return SyncEmpty
	case len(r.PartialFailures) > 0:
		return SyncPartial
	default:
		return SyncCompleted
	}
}

// LoginResult is a completed login: the stored credential and, when it could
// be determined, the identity it belongs to.
type LoginResult struct {
	Credential       *UserCredential   `json:"-"`
	Identity         *ResolvedIdentity `json:"user,omitempty"`
	IdentityResolved bool              `json:"identityResolved"`
}
