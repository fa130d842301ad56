// package services defines the interfaces the sync engine consumes and implements them for TIDAL
package services

import (
	"context"
	"net/url"

	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
)

// Authorizer runs the grants that produce credentials.
type Authorizer interface {
	// InitDevice starts a device-code login.
	InitDevice(ctx context.Context) (*models.DeviceAuthorization, error)

	// PollOnce polls the token endpoint once for deviceCode.
	// Pending and OAuth errors are reported in the result; err is reserved for
	// transport failures and non-OAuth error responses.
	PollOnce(ctx context.Context, deviceCode string) (*models.DevicePollResult, error)

	// Exchange trades an authorization code and its PKCE verifier for a user token.
	Exchange(ctx context.Context, code, verifier string) (*models.LoginResult, error)

	// AuthURL builds the web login URL for state and an S256 challenge.
	AuthURL(state, challenge string) string

	// Tokens is the store every grant writes to.
	Tokens() *auth.TokenStore
}

// Resolver determines the user id and country a token belongs to.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*models.ResolvedIdentity, error)
}

// Catalog reads a user's library.
type Catalog interface {
	// ListPlaylists returns the first non-empty playlist listing, or a single
	// virtual playlist of favorited tracks. Listing failures yield an empty slice.
	ListPlaylists(ctx context.Context, token string, identity models.ResolvedIdentity) ([]models.ExternalPlaylist, error)

	// FetchTracks returns every track of a playlist, retrying once in the
	// default region when the requested one is forbidden.
	FetchTracks(ctx context.Context, token, playlistID, country string) ([]models.ExternalTrack, error)
}

// Browser reads public catalog data with the application token.
type Browser interface {
	SearchPlaylists(ctx context.Context, query string, limit int, country string) ([]models.ExternalPlaylist, error)
	Featured(ctx context.Context, country string) ([]FeaturedGroup, error)
	Playlist(ctx context.Context, id, country string) (*models.ExternalPlaylist, error)
	PlaylistItems(ctx context.Context, id string, limit, offset int, country string) (*TrackPage, error)

	// Raw GETs any catalog endpoint and returns the response uninterpreted.
	Raw(ctx context.Context, endpoint string, params url.Values) (*APIResponse, error)
}

// Provider is everything the sync engine needs from a streaming platform.
type Provider interface {
	Name() string
	Authorizer
	Resolver
	Catalog
	Browser
}
