// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/services"
	"golang.org/x/oauth2"
)

// FakeProvider is a scripted [services.Provider].
//
// Zero values mean success with empty data. Poll results are served in order
// and the last one repeats.
type FakeProvider struct {
	Store *auth.TokenStore

	Device      *models.DeviceAuthorization
	InitErr     error
	PollResults []*models.DevicePollResult
	PollErr     error
	ExchangeErr error

	Identity   *models.ResolvedIdentity
	ResolveErr error

	Playlists []models.ExternalPlaylist
	ListErr   error
	Tracks    map[string][]models.ExternalTrack
	TrackErrs map[string]error
	Delay     time.Duration

	Search      []models.ExternalPlaylist
	Groups      []services.FeaturedGroup
	Page        *services.TrackPage
	BrowseErr   error
	PlaylistErr error
	RawResponse *services.APIResponse

	mu        sync.Mutex
	calls     map[string]int
	fetched   []string
	verifiers []string
	rawParams []url.Values
	inFlight  int
	maxFlight int
}

// NewFakeProvider returns a provider whose client token is always "client-token".
func NewFakeProvider() *FakeProvider {
	fetch := func(context.Context) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "client-token", ExpiresIn: 3600}, nil
	}
	return &FakeProvider{
		Store:  auth.NewTokenStore(fetch),
		Tracks: map[string][]models.ExternalTrack{},
		calls:  map[string]int{},
	}
}

func (f *FakeProvider) record(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

// Calls reports how many times method was invoked.
func (f *FakeProvider) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Fetched lists the playlist ids passed to FetchTracks.
func (f *FakeProvider) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// Verifiers lists the PKCE verifiers passed to Exchange.
func (f *FakeProvider) Verifiers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.verifiers...)
}

// MaxInFlight is the highest number of concurrent FetchTracks calls observed.
func (f *FakeProvider) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight
}

// Login stores a user token as if a grant had just completed.
func (f *FakeProvider) Login(token string) {
	f.Store.SetUserToken(token, "refresh-"+token, time.Hour)
	if f.Identity != nil {
		f.Store.AttachIdentity(*f.Identity)
	}
}

func (f *FakeProvider) Name() string { return "fake" }

func (f *FakeProvider) Tokens() *auth.TokenStore { return f.Store }

func (f *FakeProvider) InitDevice(ctx context.Context) (*models.DeviceAuthorization, error) {
	f.record("InitDevice")
	if f.InitErr != nil {
		return nil, f.InitErr
	}
	if f.Device != nil {
		return f.Device, nil
	}
	return &models.DeviceAuthorization{
		DeviceCode:      "device-code",
		UserCode:        "ABCD-EFGH",
		VerificationURI: "https://link.tidal.com/ABCD-EFGH",
		ExpiresIn:       300,
		Interval:        1,
	}, nil
}

func (f *FakeProvider) PollOnce(ctx context.Context, deviceCode string) (*models.DevicePollResult, error) {
	n := f.record("PollOnce")
	if f.PollErr != nil {
		return nil, f.PollErr
	}
	if len(f.PollResults) == 0 {
		return &models.DevicePollResult{Status: models.PollPending, Error: models.ErrCodePending}, nil
	}

	res := *f.PollResults[min(n, len(f.PollResults))-1]
	if res.Status == models.PollAuthorized {
		f.Login("device-user-token")
		res.Identity = f.Identity
		res.IdentityResolved = f.Identity != nil
	}
	return &res, nil
}

func (f *FakeProvider) Exchange(ctx context.Context, code, verifier string) (*models.LoginResult, error) {
	f.record("Exchange")
	f.mu.Lock()
	f.verifiers = append(f.verifiers, verifier)
	f.mu.Unlock()

	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	f.Login("web-user-token")
	cred := &models.UserCredential{AccessToken: "web-user-token", RefreshToken: "refresh-web-user-token", ExpiresAt: time.Now().Add(time.Hour)}
	return &models.LoginResult{Credential: cred, Identity: f.Identity, IdentityResolved: f.Identity != nil}, nil
}

func (f *FakeProvider) AuthURL(state, challenge string) string {
	return "https://login.example.com/authorize?state=" + state + "&code_challenge=" + challenge
}

func (f *FakeProvider) Resolve(ctx context.Context, token string) (*models.ResolvedIdentity, error) {
	f.record("Resolve")
	if f.ResolveErr != nil {
		return nil, f.ResolveErr
	}
	if f.Identity == nil {
		return &models.ResolvedIdentity{UserID: "1", CountryCode: "US", Source: "fake"}, nil
	}
	id := *f.Identity
	return &id, nil
}

func (f *FakeProvider) ListPlaylists(ctx context.Context, token string, identity models.ResolvedIdentity) ([]models.ExternalPlaylist, error) {
	f.record("ListPlaylists")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	if f.Playlists == nil {
		return []models.ExternalPlaylist{}, nil
	}
	return f.Playlists, nil
}

func (f *FakeProvider) FetchTracks(ctx context.Context, token, playlistID, country string) ([]models.ExternalTrack, error) {
	f.record("FetchTracks")
	f.mu.Lock()
	f.fetched = append(f.fetched, playlistID)
	f.inFlight++
	f.maxFlight = max(f.maxFlight, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.TrackErrs[playlistID]; err != nil {
		return nil, err
	}
	return f.Tracks[playlistID], nil
}

func (f *FakeProvider) SearchPlaylists(ctx context.Context, query string, limit int, country string) ([]models.ExternalPlaylist, error) {
	f.record("SearchPlaylists")
	return f.Search, f.BrowseErr
}

func (f *FakeProvider) Featured(ctx context.Context, country string) ([]services.FeaturedGroup, error) {
	f.record("Featured")
	return f.Groups, f.BrowseErr
}

func (f *FakeProvider) Playlist(ctx context.Context, id, country string) (*models.ExternalPlaylist, error) {
	f.record("Playlist")
	if f.PlaylistErr != nil {
		return nil, f.PlaylistErr
	}
	for _, p := range f.Search {
		if p.ID == id {
			return &p, nil
		}
	}
	return &models.ExternalPlaylist{ID: id, Title: "Playlist " + id}, nil
}

func (f *FakeProvider) PlaylistItems(ctx context.Context, id string, limit, offset int, country string) (*services.TrackPage, error) {
	f.record("PlaylistItems")
	if f.PlaylistErr != nil {
		return nil, f.PlaylistErr
	}
	if f.Page != nil {
		return f.Page, nil
	}
	return &services.TrackPage{Items: f.Tracks[id], Limit: limit, Offset: offset, Total: len(f.Tracks[id])}, nil
}

func (f *FakeProvider) Raw(ctx context.Context, endpoint string, params url.Values) (*services.APIResponse, error) {
	f.record("Raw")
	f.mu.Lock()
	f.rawParams = append(f.rawParams, params)
	f.mu.Unlock()
	if f.BrowseErr != nil {
		return nil, f.BrowseErr
	}
	if f.RawResponse != nil {
		return f.RawResponse, nil
	}
	return &services.APIResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
}

// RawParams lists the query parameters passed to Raw.
func (f *FakeProvider) RawParams() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.rawParams...)
}

// NewDiscardLogger returns a logger that writes nowhere.
func NewDiscardLogger() *log.Logger {
	return log.New(io.Discard)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

var _ services.Provider = (*FakeProvider)(nil)
