package tasks

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
	th "github.com/dooseok913/music-front/internal/testing"
)

func TestDeviceLogin(t *testing.T) {
	t.Run("poll token pending", func(t *testing.T) {
		p := th.NewFakeProvider()
		e := NewLibraryEngine(p)

		res, err := e.PollToken(context.Background(), "device-code")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Success || !res.Pending() || res.Error != models.ErrCodePending {
			t.Errorf("expected pending, got %+v", res)
		}
	})

	t.Run("poll token authorized", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.Identity = &models.ResolvedIdentity{UserID: "7", CountryCode: "US"}
		p.PollResults = []*models.DevicePollResult{{Status: models.PollAuthorized}}

		res, err := NewLibraryEngine(p).PollToken(context.Background(), "device-code")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Success || res.User == nil || res.User.UserID != "7" || res.Pending() {
			t.Errorf("unexpected response %+v", res)
		}
	})

	t.Run("poll token fatal error", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.PollResults = []*models.DevicePollResult{{Status: models.PollFailed, Error: models.ErrCodeDenied}}

		res, err := NewLibraryEngine(p).PollToken(context.Background(), "device-code")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Success || res.Pending() || res.Error != models.ErrCodeDenied {
			t.Errorf("unexpected response %+v", res)
		}
	})

	t.Run("login with device settles on success", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.Identity = &models.ResolvedIdentity{UserID: "7", CountryCode: "US"}
		p.PollResults = []*models.DevicePollResult{{Status: models.PollAuthorized}}
		e := NewLibraryEngine(p)

		d, err := e.InitDeviceAuth(context.Background())
		if err != nil {
			t.Fatalf("init failed: %v", err)
		}
		res, err := e.LoginWithDevice(context.Background(), d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != models.PollAuthorized || p.Calls("PollOnce") != 1 {
			t.Errorf("expected one authorized poll, got %+v after %d", res, p.Calls("PollOnce"))
		}
		if st := e.AuthStatus(context.Background()); !st.UserConnected || st.Type != auth.KindUser {
			t.Errorf("expected connected user, got %+v", st)
		}
	})

	t.Run("login with device stops on expiry", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.PollResults = []*models.DevicePollResult{{Status: models.PollFailed, Error: models.ErrCodeExpired}}
		e := NewLibraryEngine(p)

		d, _ := e.InitDeviceAuth(context.Background())
		_, err := e.LoginWithDevice(context.Background(), d)
		if !errors.Is(err, shared.ErrDeviceExpired) {
			t.Errorf("expected ErrDeviceExpired, got %v", err)
		}
		if p.Calls("PollOnce") != 1 {
			t.Errorf("expected a single poll, got %d", p.Calls("PollOnce"))
		}
	})

	t.Run("login with device needs a device code", func(t *testing.T) {
		e := NewLibraryEngine(th.NewFakeProvider())
		if _, err := e.LoginWithDevice(context.Background(), nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("init failure", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.InitErr = &shared.AuthError{Kind: shared.ErrAuthRequest, Status: 400}
		if _, err := NewLibraryEngine(p).InitDeviceAuth(context.Background()); !errors.Is(err, shared.ErrAuthRequest) {
			t.Errorf("expected ErrAuthRequest, got %v", err)
		}
	})
}

func TestWebLogin(t *testing.T) {
	t.Run("exchange uses the session verifier", func(t *testing.T) {
		p := th.NewFakeProvider()
		e := NewLibraryEngine(p)

		login := e.StartWebLogin()
		u, err := url.Parse(login.AuthURL)
		if err != nil {
			t.Fatalf("invalid auth url: %v", err)
		}
		if u.Query().Get("state") != login.SessionID {
			t.Errorf("expected state to be the session id, got %q", u.Query().Get("state"))
		}

		if _, err := e.ExchangeCode(context.Background(), login.SessionID, "code"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		verifiers := p.Verifiers()
		if len(verifiers) != 1 || auth.Challenge(verifiers[0]) != u.Query().Get("code_challenge") {
			t.Errorf("verifier does not match the challenge sent to the login page")
		}
	})

	t.Run("session is consumed once", func(t *testing.T) {
		p := th.NewFakeProvider()
		e := NewLibraryEngine(p)
		login := e.StartWebLogin()

		if _, err := e.ExchangeCode(context.Background(), login.SessionID, "code"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := e.ExchangeCode(context.Background(), login.SessionID, "code")
		if !errors.Is(err, shared.ErrAuthExchange) || !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected exchange error for reused session, got %v", err)
		}
		if p.Calls("Exchange") != 1 {
			t.Errorf("expected one exchange, got %d", p.Calls("Exchange"))
		}
	})

	t.Run("failed exchange still consumes the session", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.ExchangeErr = &shared.AuthError{Kind: shared.ErrAuthExchange, Code: "invalid_grant"}
		e := NewLibraryEngine(p)
		login := e.StartWebLogin()

		if _, err := e.ExchangeCode(context.Background(), login.SessionID, "code"); !errors.Is(err, shared.ErrAuthExchange) {
			t.Fatalf("expected ErrAuthExchange, got %v", err)
		}
		if _, err := e.ExchangeCode(context.Background(), login.SessionID, "code"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound on retry, got %v", err)
		}
		if e.PendingLogins() != 0 {
			t.Errorf("expected no pending logins, got %d", e.PendingLogins())
		}
	})

	t.Run("concurrent logins keep separate verifiers", func(t *testing.T) {
		p := th.NewFakeProvider()
		e := NewLibraryEngine(p)
		first := e.StartWebLogin()
		second := e.StartWebLogin()

		if e.PendingLogins() != 2 {
			t.Fatalf("expected 2 pending logins, got %d", e.PendingLogins())
		}
		if _, err := e.ExchangeCode(context.Background(), second.SessionID, "code-2"); err != nil {
			t.Fatalf("second login failed: %v", err)
		}
		if _, err := e.ExchangeCode(context.Background(), first.SessionID, "code-1"); err != nil {
			t.Fatalf("first login failed: %v", err)
		}
		v := p.Verifiers()
		if len(v) != 2 || v[0] == v[1] {
			t.Errorf("expected two distinct verifiers, got %v", v)
		}
	})

	t.Run("missing code", func(t *testing.T) {
		e := NewLibraryEngine(th.NewFakeProvider())
		login := e.StartWebLogin()
		if _, err := e.ExchangeCode(context.Background(), login.SessionID, ""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestAuthStatus(t *testing.T) {
	p := th.NewFakeProvider()
	e := NewLibraryEngine(p)

	st := e.AuthStatus(context.Background())
	if !st.Authenticated || st.UserConnected || st.Type != auth.KindClient {
		t.Errorf("expected client-only status, got %+v", st)
	}

	p.Login("user-token")
	st = e.AuthStatus(context.Background())
	if !st.UserConnected || st.Type != auth.KindUser {
		t.Errorf("expected user status, got %+v", st)
	}

	e.Logout()
	st = e.AuthStatus(context.Background())
	if st.UserConnected || st.Type != auth.KindClient {
		t.Errorf("expected client-only status after logout, got %+v", st)
	}
	if _, err := e.Run(context.Background(), nil); !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated after logout, got %v", err)
	}
}
