package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/dooseok913/music-front/internal/shared"
)

func TestIdentityResolver(t *testing.T) {
	identityPaths := func(cfg *shared.TidalConfig) {
		cfg.IdentityEndpoints = []string{"/sessions", "/users/me", "/profile"}
	}

	t.Run("first strategy with a user id wins", func(t *testing.T) {
		srv, f := newTestService(t, identityPaths)
		f.handle("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		})
		f.handle("/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"id": "abc", "country": "SE"})
		})
		f.handle("/v1/profile", func(w http.ResponseWriter, r *http.Request) {
			t.Error("lookups after a success must not run")
		})

		id, err := srv.Resolve(context.Background(), "tok")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.UserID != "abc" || id.CountryCode != "SE" || id.Source != "/users/me" {
			t.Errorf("unexpected identity %+v", id)
		}
	})

	t.Run("country from an earlier strategy is kept", func(t *testing.T) {
		srv, f := newTestService(t, identityPaths)
		f.handle("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"countryCode": "KR"})
		})
		f.handle("/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"userId": 7}})
		})

		id, err := srv.Resolve(context.Background(), "tok")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.UserID != "7" || id.CountryCode != "KR" {
			t.Errorf("unexpected identity %+v", id)
		}
	})

	t.Run("json api shape", func(t *testing.T) {
		srv, f := newTestService(t)
		f.handle("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"id": "9", "attributes": map[string]any{"country": "FR"}},
			})
		})

		id, err := srv.Resolve(context.Background(), "tok")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.UserID != "9" || id.CountryCode != "FR" {
			t.Errorf("unexpected identity %+v", id)
		}
	})

	t.Run("jwt claims when every endpoint fails", func(t *testing.T) {
		srv, f := newTestService(t)
		f.handle("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", http.StatusForbidden)
		})

		token := fakeJWT(map[string]any{"alg": "HS256", "typ": "JWT"}, map[string]any{"sub": "777"})
		id, err := srv.Resolve(context.Background(), token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.UserID != "777" || id.Source != "jwt" || id.CountryCode != "US" {
			t.Errorf("unexpected identity %+v", id)
		}
	})

	t.Run("jwt with unknown algorithm is still decoded", func(t *testing.T) {
		token := fakeJWT(map[string]any{"alg": "XYZ"}, map[string]any{"user_id": 42, "cc": "JP"})
		id, err := JWTClaims{}.Resolve(context.Background(), token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.UserID != "42" || id.CountryCode != "JP" {
			t.Errorf("unexpected identity %+v", id)
		}
	})

	t.Run("no strategy succeeds", func(t *testing.T) {
		srv, f := newTestService(t)
		f.handle("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"sessionId": "s"})
		})

		_, err := srv.Resolve(context.Background(), "not-a-jwt")
		if !errors.Is(err, shared.ErrIdentityResolution) {
			t.Errorf("expected ErrIdentityResolution, got %v", err)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		r := NewIdentityResolver(nil, "US", nil)
		if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, shared.ErrIdentityResolution) {
			t.Errorf("expected ErrIdentityResolution, got %v", err)
		}
	})
}
