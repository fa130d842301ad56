// TIDAL implementation of [Provider]
//
// Response shapes follow the v1 catalog API (application/vnd.tidal.v1+json).
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
	"golang.org/x/time/rate"
)

const (
	tidalImageURL = "https://resources.tidal.com/images/"
	maxBodyBytes  = 8 << 20
	maxErrorBody  = 512
)

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	*f = flexID(b)
	return nil
}

type tidalArtist struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

type tidalAlbum struct {
	ID    flexID `json:"id"`
	Title string `json:"title"`
	Cover string `json:"cover"`
}

type tidalTrack struct {
	ID       flexID        `json:"id"`
	Title    string        `json:"title"`
	Version  string        `json:"version"`
	Duration int           `json:"duration"`
	ISRC     string        `json:"isrc"`
	Artist   *tidalArtist  `json:"artist"`
	Artists  []tidalArtist `json:"artists"`
	Album    tidalAlbum    `json:"album"`
}

type tidalCreator struct {
	Name string `json:"name"`
}

type tidalPlaylist struct {
	UUID           string       `json:"uuid"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	NumberOfTracks int          `json:"numberOfTracks"`
	SquareImage    string       `json:"squareImage"`
	Image          string       `json:"image"`
	Creator        tidalCreator `json:"creator"`
}

// page is one slice of a paginated listing.
//
// TotalNumberOfItems is absent on some endpoints.
type page[T any] struct {
	Limit              int  `json:"limit"`
	Offset             int  `json:"offset"`
	TotalNumberOfItems *int `json:"totalNumberOfItems"`
	Items              []T  `json:"items"`
}

// playlistEntry covers the three listing shapes: a bare playlist,
// {"item": playlist} from favorites and {"playlist": playlist} from collections.
type playlistEntry struct {
	tidalPlaylist
	Item     *tidalPlaylist `json:"item"`
	Playlist *tidalPlaylist `json:"playlist"`
}

func (e playlistEntry) resolve() (tidalPlaylist, bool) {
	switch {
	case e.Playlist != nil && e.Playlist.UUID != "":
		return *e.Playlist, true
	case e.Item != nil && e.Item.UUID != "":
		return *e.Item, true
	case e.UUID != "":
		return e.tidalPlaylist, true
	}
	return tidalPlaylist{}, false
}

// trackEntry covers bare tracks and {"type": "track", "item": track} wrappers.
type trackEntry struct {
	tidalTrack
	Type string      `json:"type"`
	Item *tidalTrack `json:"item"`
}

func (e trackEntry) resolve() (tidalTrack, bool) {
	if e.Item != nil {
		if e.Type != "" && e.Type != "track" {
			return tidalTrack{}, false
		}
		return *e.Item, e.Item.ID != ""
	}
	return e.tidalTrack, e.ID != ""
}

// TidalService talks to the TIDAL authorization server and catalog API.
type TidalService struct {
	creds      shared.TidalCredentials
	cfg        shared.TidalConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *auth.TokenStore
	identity   *IdentityResolver
	logger     *log.Logger
	storeOpts  []auth.Option
	strategies []Strategy
}

// TidalOption configures a [TidalService].
type TidalOption func(*TidalService)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(c *http.Client) TidalOption {
	return func(s *TidalService) { s.httpClient = c }
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) TidalOption {
	return func(s *TidalService) { s.logger = l }
}

// WithStoreOptions passes options to the service's [auth.TokenStore].
func WithStoreOptions(opts ...auth.Option) TidalOption {
	return func(s *TidalService) { s.storeOpts = append(s.storeOpts, opts...) }
}

// WithStrategies replaces the identity strategies derived from configuration.
func WithStrategies(strategies ...Strategy) TidalOption {
	return func(s *TidalService) { s.strategies = strategies }
}

// NewTidalService creates a service for the given application credentials.
//
// Missing credentials are not an error here; they surface as [shared.ErrConfig]
// from the first grant that needs them.
func NewTidalService(creds shared.TidalCredentials, cfg shared.TidalConfig, opts ...TidalOption) *TidalService {
	cfg = withDefaults(cfg)
	s := &TidalService{
		creds:      creds,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond))),
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.storeOpts = append([]auth.Option{auth.WithUserRefresher(s.RefreshUserToken), auth.WithLogger(s.logger)}, s.storeOpts...)
	s.tokens = auth.NewTokenStore(s.FetchClientToken, s.storeOpts...)

	if s.strategies == nil {
		for _, endpoint := range cfg.IdentityEndpoints {
			s.strategies = append(s.strategies, &EndpointProbe{Endpoint: endpoint, get: s.get})
		}
		s.strategies = append(s.strategies, JWTClaims{})
	}
	s.identity = NewIdentityResolver(s.strategies, cfg.DefaultCountry, s.logger)
	return s
}

func withDefaults(cfg shared.TidalConfig) shared.TidalConfig {
	def := shared.DefaultConfig().Tidal
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.AuthURL, def.AuthURL)
	fill(&cfg.LoginURL, def.LoginURL)
	fill(&cfg.APIURL, def.APIURL)
	fill(&cfg.Accept, def.Accept)
	fill(&cfg.DefaultCountry, def.DefaultCountry)
	fill(&cfg.FavoritesEndpoint, def.FavoritesEndpoint)
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = def.PageSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.IdentityEndpoints == nil {
		cfg.IdentityEndpoints = def.IdentityEndpoints
	}
	if len(cfg.PlaylistEndpoints) == 0 {
		cfg.PlaylistEndpoints = def.PlaylistEndpoints
	}
	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return cfg
}

func (s *TidalService) Name() string { return "TIDAL" }

// Tokens returns the credential store shared by every flow.
func (s *TidalService) Tokens() *auth.TokenStore { return s.tokens }

// Config returns the effective configuration after defaults.
func (s *TidalService) Config() shared.TidalConfig { return s.cfg }

// Resolve determines the identity behind token.
func (s *TidalService) Resolve(ctx context.Context, token string) (*models.ResolvedIdentity, error) {
	return s.identity.Resolve(ctx, token)
}

func (s *TidalService) tokenURL() string  { return s.cfg.AuthURL + "/token" }
func (s *TidalService) deviceURL() string { return s.cfg.AuthURL + "/device_authorization" }

// endpointURL joins relative endpoints to the API base and leaves absolute URLs alone.
func (s *TidalService) endpointURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return s.cfg.APIURL + "/" + strings.TrimLeft(endpoint, "/")
}

// expandUser substitutes {userId} in an endpoint template.
func expandUser(template, userID string) string {
	return strings.ReplaceAll(template, "{userId}", url.PathEscape(userID))
}

// get performs a rate-limited, authenticated GET and decodes the JSON body into out.
func (s *TidalService) get(ctx context.Context, token, endpoint string, params url.Values, out any) error {
	status, body, err := s.do(ctx, http.MethodGet, token, endpoint, params)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &shared.StatusError{Endpoint: endpoint, StatusCode: status, Body: truncate(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", shared.ErrCatalogFetch, endpoint, err)
	}
	return nil
}

func (s *TidalService) do(ctx context.Context, method, token, endpoint string, params url.Values) (int, []byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	u := s.endpointURL(endpoint)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", s.cfg.Accept)

	started := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: %w", shared.ErrCatalogFetch, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: failed to read %s: %w", shared.ErrCatalogFetch, endpoint, err)
	}

	s.logger.Debug("tidal request", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "took", time.Since(started))
	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// imageURL turns an image uuid into a resources URL.
func imageURL(id, size string) string {
	if id == "" {
		return ""
	}
	return tidalImageURL + strings.ReplaceAll(id, "-", "/") + "/" + size + ".jpg"
}

func toPlaylist(p tidalPlaylist) models.ExternalPlaylist {
	img := p.SquareImage
	if img == "" {
		img = p.Image
	}
	return models.ExternalPlaylist{
		ID:          p.UUID,
		Title:       p.Title,
		Description: p.Description,
		TrackCount:  p.NumberOfTracks,
		ImageURL:    imageURL(img, "320x320"),
		Creator:     p.Creator.Name,
	}
}

func toTrack(t tidalTrack) models.ExternalTrack {
	title := t.Title
	if t.Version != "" {
		title = fmt.Sprintf("%s (%s)", t.Title, t.Version)
	}

	var names []string
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) == 0 && t.Artist != nil {
		names = append(names, t.Artist.Name)
	}

	return models.ExternalTrack{
		ID:       string(t.ID),
		Title:    title,
		Artist:   strings.Join(names, ", "),
		Album:    t.Album.Title,
		Duration: time.Duration(t.Duration) * time.Second,
		ISRC:     t.ISRC,
		ImageURL: imageURL(t.Album.Cover, "320x320"),
	}
}
