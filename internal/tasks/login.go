package tasks

import (
	"context"
	"fmt"

	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

// TokenPoll is the poll response shape clients consume: either success with
// the resolved user, or the OAuth error to act on.
type TokenPoll struct {
	Success          bool                     `json:"success"`
	User             *models.ResolvedIdentity `json:"user,omitempty"`
	IdentityResolved bool                     `json:"identityResolved,omitempty"`
	Error            string                   `json:"error,omitempty"`
	ErrorDescription string                   `json:"error_description,omitempty"`
}

// Pending reports whether the client should poll again.
func (p *TokenPoll) Pending() bool {
	return !p.Success && (p.Error == models.ErrCodePending || p.Error == models.ErrCodeSlowDown)
}

// WebLogin is a started PKCE login.
type WebLogin struct {
	SessionID string `json:"sessionId"`
	AuthURL   string `json:"authUrl"`
}

func (e *LibraryEngine) InitDeviceAuth(ctx context.Context) (*models.DeviceAuthorization, error) {
	return e.provider.InitDevice(ctx)
}

func (e *LibraryEngine) PollToken(ctx context.Context, deviceCode string) (*TokenPoll, error) {
	res, err := e.provider.PollOnce(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if res.Status != models.PollAuthorized {
		return &TokenPoll{Error: res.Error, ErrorDescription: res.ErrorDescription}, nil
	}
	return &TokenPoll{Success: true, User: res.Identity, IdentityResolved: res.IdentityResolved}, nil
}

// DevicePoller returns a poller for d that has not been started.
// Callers that need to cancel from elsewhere, such as a UI, hold on to it.
func (e *LibraryEngine) DevicePoller(d *models.DeviceAuthorization) *auth.Poller {
	poll := func(ctx context.Context) (*models.DevicePollResult, error) {
		return e.provider.PollOnce(ctx, d.DeviceCode)
	}
	return auth.NewDevicePoller(poll, *d, e.logger)
}

func (e *LibraryEngine) LoginWithDevice(ctx context.Context, d *models.DeviceAuthorization) (*models.DevicePollResult, error) {
	if d == nil || d.DeviceCode == "" {
		return nil, fmt.Errorf("%w: device authorization required", shared.ErrMissingArgument)
	}

	p := e.DevicePoller(d)
	out, err := p.Start(ctx)
	if err != nil {
		return nil, err
	}
	outcome := <-out
	if outcome.Err != nil {
		e.logger.Warn("device login ended", "attempts", outcome.Attempts, "err", outcome.Err)
		return outcome.Result, outcome.Err
	}
	return outcome.Result, nil
}

func (e *LibraryEngine) StartWebLogin() *WebLogin {
	id, pkce := e.sessions.Begin()
	return &WebLogin{SessionID: id, AuthURL: e.provider.AuthURL(id, pkce.Challenge)}
}

// ExchangeCode consumes the session before exchanging, so a session can never
// be redeemed twice even when the exchange fails.
func (e *LibraryEngine) ExchangeCode(ctx context.Context, sessionID, code string) (*models.LoginResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is required", shared.ErrMissingArgument)
	}
	verifier, err := e.sessions.Take(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthExchange, err)
	}
	return e.provider.Exchange(ctx, code, verifier)
}

func (e *LibraryEngine) AuthStatus(ctx context.Context) auth.Status {
	return e.provider.Tokens().Status(ctx)
}

func (e *LibraryEngine) Logout() {
	e.provider.Tokens().ClearUser()
	e.logger.Info("user logged out")
}

func (e *LibraryEngine) PendingLogins() int { return e.sessions.Len() }

var _ SyncEngine = (*LibraryEngine)(nil)
