package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
	"golang.org/x/oauth2"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func countingFetcher(calls *atomic.Int32, expiresIn int64) ClientFetcher {
	return func(ctx context.Context) (*oauth2.Token, error) {
		n := calls.Add(1)
		return &oauth2.Token{AccessToken: "client-" + string(rune('0'+n)), ExpiresIn: expiresIn}, nil
	}
}

func TestTokenStore(t *testing.T) {
	t.Run("ClientToken", func(t *testing.T) {
		t.Run("cached until the refresh margin", func(t *testing.T) {
			clock := newFakeClock()
			var calls atomic.Int32
			store := NewTokenStore(countingFetcher(&calls, 3600), WithClock(clock.Now))

			first, err := store.ClientToken(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			clock.Advance(3600*time.Second - RefreshMargin - time.Second)
			second, err := store.ClientToken(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if first != second {
				t.Errorf("expected cached token %q, got %q", first, second)
			}
			if calls.Load() != 1 {
				t.Errorf("expected 1 fetch, got %d", calls.Load())
			}

			clock.Advance(time.Second)
			third, _ := store.ClientToken(context.Background())
			if third == first {
				t.Error("expected a new token once inside the margin")
			}
			if calls.Load() != 2 {
				t.Errorf("expected 2 fetches, got %d", calls.Load())
			}
		})

		t.Run("concurrent callers share one fetch", func(t *testing.T) {
			release := make(chan struct{})
			var calls atomic.Int32
			store := NewTokenStore(func(ctx context.Context) (*oauth2.Token, error) {
				calls.Add(1)
				<-release
				return &oauth2.Token{AccessToken: "shared", ExpiresIn: 3600}, nil
			})

			const n = 16
			var wg sync.WaitGroup
			tokens := make([]string, n)
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					tokens[i], _ = store.ClientToken(context.Background())
				}(i)
			}

			time.Sleep(20 * time.Millisecond)
			close(release)
			wg.Wait()

			if calls.Load() != 1 {
				t.Errorf("expected exactly 1 fetch, got %d", calls.Load())
			}
			for i, tok := range tokens {
				if tok != "shared" {
					t.Errorf("caller %d got %q", i, tok)
				}
			}
		})

		t.Run("fetch failure is returned and not cached", func(t *testing.T) {
			var calls atomic.Int32
			store := NewTokenStore(func(ctx context.Context) (*oauth2.Token, error) {
				calls.Add(1)
				return nil, &shared.AuthError{Kind: shared.ErrAuthRequest, Status: 401}
			})

			for range 2 {
				if _, err := store.ClientToken(context.Background()); !errors.Is(err, shared.ErrAuthRequest) {
					t.Errorf("expected ErrAuthRequest, got %v", err)
				}
			}
			if calls.Load() != 2 {
				t.Errorf("expected a retry per call after failure, got %d fetches", calls.Load())
			}
		})

		t.Run("no fetcher is a config error", func(t *testing.T) {
			store := NewTokenStore(nil)
			if _, err := store.ClientToken(context.Background()); !errors.Is(err, shared.ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	})

	t.Run("UserToken", func(t *testing.T) {
		t.Run("absent", func(t *testing.T) {
			store := NewTokenStore(nil)
			if _, err := store.UserToken(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("valid token returned", func(t *testing.T) {
			store := NewTokenStore(nil)
			store.SetUserToken("user-token", "", time.Hour)

			tok, err := store.UserToken(context.Background())
			if err != nil || tok != "user-token" {
				t.Errorf("expected user-token, got %q (%v)", tok, err)
			}
		})

		t.Run("expired without refresh token", func(t *testing.T) {
			clock := newFakeClock()
			store := NewTokenStore(nil, WithClock(clock.Now))
			store.SetUserToken("user-token", "", time.Minute)
			clock.Advance(2 * time.Minute)

			if _, err := store.UserToken(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("expired token refreshed once", func(t *testing.T) {
			clock := newFakeClock()
			var calls atomic.Int32
			store := NewTokenStore(nil, WithClock(clock.Now), WithUserRefresher(
				func(ctx context.Context, refresh string) (*oauth2.Token, error) {
					calls.Add(1)
					if refresh != "refresh-1" {
						t.Errorf("expected refresh-1, got %s", refresh)
					}
					time.Sleep(10 * time.Millisecond)
					return &oauth2.Token{AccessToken: "user-2", ExpiresIn: 3600}, nil
				}))
			store.SetUserToken("user-1", "refresh-1", time.Minute)
			store.AttachIdentity(models.ResolvedIdentity{UserID: "42", CountryCode: "KR"})
			clock.Advance(time.Hour)

			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					tok, err := store.UserToken(context.Background())
					if err != nil || tok != "user-2" {
						t.Errorf("expected user-2, got %q (%v)", tok, err)
					}
				}()
			}
			wg.Wait()

			if calls.Load() != 1 {
				t.Errorf("expected 1 refresh, got %d", calls.Load())
			}

			identity, ok := store.Identity()
			if !ok || identity.UserID != "42" || identity.CountryCode != "KR" {
				t.Errorf("identity should survive refresh, got %+v", identity)
			}
		})

		t.Run("refresh failure", func(t *testing.T) {
			clock := newFakeClock()
			store := NewTokenStore(nil, WithClock(clock.Now), WithUserRefresher(
				func(ctx context.Context, refresh string) (*oauth2.Token, error) {
					return nil, errors.New("invalid_grant")
				}))
			store.SetUserToken("user-1", "refresh-1", time.Minute)
			clock.Advance(time.Hour)

			if _, err := store.UserToken(context.Background()); !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
		})
	})

	t.Run("new login drops previous identity", func(t *testing.T) {
		store := NewTokenStore(nil)
		store.SetUserToken("token-a", "refresh-a", time.Hour)
		store.AttachIdentity(models.ResolvedIdentity{UserID: "alice", CountryCode: "KR"})

		cred := store.StoreUserToken(&oauth2.Token{AccessToken: "token-b", RefreshToken: "refresh-b", ExpiresIn: 3600})
		if cred.UserID != "" || cred.CountryCode != "" {
			t.Errorf("expected no identity on the new credential, got %q/%q", cred.UserID, cred.CountryCode)
		}
		if identity, ok := store.Identity(); ok {
			t.Errorf("expected no identity after a new login, got %+v", identity)
		}
		if st := store.Status(context.Background()); st.UserID != "" {
			t.Errorf("expected status without user id, got %q", st.UserID)
		}
	})

	t.Run("AccessToken prefers user token", func(t *testing.T) {
		var calls atomic.Int32
		store := NewTokenStore(countingFetcher(&calls, 3600))

		_, kind, err := store.AccessToken(context.Background())
		if err != nil || kind != KindClient {
			t.Errorf("expected client token, got %s (%v)", kind, err)
		}

		store.SetUserToken("user", "", time.Hour)
		tok, kind, err := store.AccessToken(context.Background())
		if err != nil || kind != KindUser || tok != "user" {
			t.Errorf("expected user token, got %s %q (%v)", kind, tok, err)
		}

		store.ClearUser()
		if _, kind, _ := store.AccessToken(context.Background()); kind != KindClient {
			t.Errorf("expected client after ClearUser, got %s", kind)
		}
	})

	t.Run("Status", func(t *testing.T) {
		t.Run("none", func(t *testing.T) {
			st := NewTokenStore(nil).Status(context.Background())
			if st.Authenticated || st.UserConnected || st.Type != KindNone || st.Error == "" {
				t.Errorf("unexpected status: %+v", st)
			}
		})

		t.Run("client only", func(t *testing.T) {
			var calls atomic.Int32
			st := NewTokenStore(countingFetcher(&calls, 3600)).Status(context.Background())
			if !st.Authenticated || st.UserConnected || st.Type != KindClient || st.ExpiresAt == nil {
				t.Errorf("unexpected status: %+v", st)
			}
		})

		t.Run("user connected", func(t *testing.T) {
			var calls atomic.Int32
			store := NewTokenStore(countingFetcher(&calls, 3600))
			store.SetUserToken("user", "refresh", time.Hour)
			store.AttachIdentity(models.ResolvedIdentity{UserID: "7"})

			st := store.Status(context.Background())
			if !st.Authenticated || !st.UserConnected || st.Type != KindUser || st.UserID != "7" {
				t.Errorf("unexpected status: %+v", st)
			}
		})
	})
}
