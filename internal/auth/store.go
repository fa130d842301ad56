package auth

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// RefreshMargin is how long before expiry a cached token stops being handed out.
const RefreshMargin = 60 * time.Second

// defaultLifetime applies when the server omits expires_in.
const defaultLifetime = time.Hour

// ClientFetcher obtains a fresh application token.
type ClientFetcher func(ctx context.Context) (*oauth2.Token, error)

// UserRefresher exchanges a refresh token for a new user token.
type UserRefresher func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// CredentialKind names the credential that authorizes requests.
type CredentialKind string

const (
	KindNone   CredentialKind = "none"
	KindClient CredentialKind = "client"
	KindUser   CredentialKind = "user"
)

// Status is the auth view reported to clients.
type Status struct {
	Authenticated bool           `json:"authenticated"`
	UserConnected bool           `json:"userConnected"`
	Type          CredentialKind `json:"type"`
	ExpiresAt     *time.Time     `json:"expiresAt,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// TokenStore caches client and user credentials.
type TokenStore struct {
	mu     sync.RWMutex
	client models.ClientCredential
	user   *models.UserCredential

	fetchClient ClientFetcher
	refreshUser UserRefresher
	flights     singleflight.Group

	now    func() time.Time
	margin time.Duration
	logger *log.Logger
}

// Option configures a [TokenStore].
type Option func(*TokenStore)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *TokenStore) { s.now = now }
}

// WithMargin overrides [RefreshMargin].
func WithMargin(d time.Duration) Option {
	return func(s *TokenStore) { s.margin = d }
}

// WithUserRefresher enables refresh of expired user tokens.
func WithUserRefresher(fn UserRefresher) Option {
	return func(s *TokenStore) { s.refreshUser = fn }
}

// WithLogger sets the store's logger.
func WithLogger(l *log.Logger) Option {
	return func(s *TokenStore) { s.logger = l }
}

// NewTokenStore creates a store that obtains client tokens through fetch.
func NewTokenStore(fetch ClientFetcher, opts ...Option) *TokenStore {
	s := &TokenStore{
		fetchClient: fetch,
		now:         time.Now,
		margin:      RefreshMargin,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClientToken returns a cached application token, fetching a new one when
// the cached token is within the refresh margin of expiry.
//
// Concurrent callers share a single fetch.
func (s *TokenStore) ClientToken(ctx context.Context) (string, error) {
	if tok, ok := s.cachedClient(); ok {
		return tok, nil
	}
	if s.fetchClient == nil {
		return "", shared.ErrMissingCredentials
	}

	v, err, joined := s.flights.Do(string(KindClient), func() (any, error) {
		if tok, ok := s.cachedClient(); ok {
			return tok, nil
		}

		tok, err := s.fetchClient(ctx)
		if err != nil {
			return "", err
		}

		cred := models.ClientCredential{AccessToken: tok.AccessToken, ExpiresAt: s.expiry(tok)}
		s.mu.Lock()
		s.client = cred
		s.mu.Unlock()

		s.logger.Debug("client token refreshed", "expires_at", cred.ExpiresAt)
		return cred.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	if joined {
		s.logger.Debug("joined in-flight client token fetch")
	}
	return v.(string), nil
}

// SetClientToken seeds the client credential.
func (s *TokenStore) SetClientToken(token string, expiresIn time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = models.ClientCredential{AccessToken: token, ExpiresAt: s.now().Add(expiresIn)}
}

func (s *TokenStore) cachedClient() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client.Usable(s.now(), s.margin) {
		return s.client.AccessToken, true
	}
	return "", false
}

// UserToken returns the user token, refreshing it once when it has expired
// and a refresh token is available.
//
// Returns [shared.ErrNotAuthenticated] when no user has logged in.
func (s *TokenStore) UserToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()

	if user == nil {
		return "", shared.ErrNotAuthenticated
	}
	if user.Usable(s.now(), s.margin) {
		return user.AccessToken, nil
	}
	if user.RefreshToken == "" || s.refreshUser == nil {
		return "", fmt.Errorf("%w: user token expired", shared.ErrNotAuthenticated)
	}

	v, err, _ := s.flights.Do(string(KindUser), func() (any, error) {
		s.mu.RLock()
		current := s.user
		s.mu.RUnlock()
		if current != nil && current.Usable(s.now(), s.margin) {
			return current.AccessToken, nil
		}

		tok, err := s.refreshUser(ctx, user.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
		}

		refresh := tok.RefreshToken
		if refresh == "" {
			refresh = user.RefreshToken
		}
		s.setUser(user.UserID, user.CountryCode, tok.AccessToken, refresh, s.expiry(tok).Sub(s.now()))
		s.logger.Info("user token refreshed", "user_id", user.UserID)
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SetUserToken stores the token of a new login. The identity of any previous
// credential is dropped; attach the new one with [TokenStore.AttachIdentity].
func (s *TokenStore) SetUserToken(token, refresh string, expiresIn time.Duration) {
	s.setUser("", "", token, refresh, expiresIn)
}

// setUser replaces the user credential. Refreshes pass the identity of the
// credential they renew.
func (s *TokenStore) setUser(userID, country, token, refresh string, expiresIn time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = &models.UserCredential{
		AccessToken:  token,
		RefreshToken: refresh,
		ExpiresAt:    s.now().Add(expiresIn),
		UserID:       userID,
		CountryCode:  country,
	}
}

// StoreUserToken stores an OAuth token response as the user credential.
func (s *TokenStore) StoreUserToken(tok *oauth2.Token) *models.UserCredential {
	s.SetUserToken(tok.AccessToken, tok.RefreshToken, s.expiry(tok).Sub(s.now()))
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred := *s.user
	return &cred
}

// AttachIdentity records who the user token belongs to.
func (s *TokenStore) AttachIdentity(identity models.ResolvedIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil {
		s.user.UserID = identity.UserID
		s.user.CountryCode = identity.CountryCode
	}
}

// Identity returns the identity attached at login, if any.
func (s *TokenStore) Identity() (models.ResolvedIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || s.user.UserID == "" {
		return models.ResolvedIdentity{}, false
	}
	return models.ResolvedIdentity{UserID: s.user.UserID, CountryCode: s.user.CountryCode, Source: "login"}, true
}

// ClearUser forgets the user credential.
func (s *TokenStore) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}

// AccessToken prefers a valid user token and falls back to the client token.
func (s *TokenStore) AccessToken(ctx context.Context) (string, CredentialKind, error) {
	if tok, err := s.UserToken(ctx); err == nil {
		return tok, KindUser, nil
	}
	tok, err := s.ClientToken(ctx)
	if err != nil {
		return "", KindNone, err
	}
	return tok, KindClient, nil
}

// Status reports whether a client token can be obtained and whether a user is connected.
func (s *TokenStore) Status(ctx context.Context) Status {
	var st Status

	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()

	if user != nil && (user.Usable(s.now(), s.margin) || user.RefreshToken != "") {
		st.UserConnected = true
		st.UserID = user.UserID
	}

	if _, err := s.ClientToken(ctx); err != nil {
		st.Error = err.Error()
	} else {
		st.Authenticated = true
	}

	switch {
	case st.UserConnected:
		st.Type = KindUser
		exp := user.ExpiresAt
		st.ExpiresAt = &exp
	case st.Authenticated:
		st.Type = KindClient
		s.mu.RLock()
		exp := s.client.ExpiresAt
		s.mu.RUnlock()
		st.ExpiresAt = &exp
	default:
		st.Type = KindNone
	}
	return st
}

// expiry derives an absolute expiry on the store's clock.
func (s *TokenStore) expiry(tok *oauth2.Token) time.Time {
	switch {
	case tok.ExpiresIn > 0:
		return s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	case !tok.Expiry.IsZero():
		return tok.Expiry
	default:
		return s.now().Add(defaultLifetime)
	}
}
