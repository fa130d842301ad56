package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/services"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/dooseok913/music-front/internal/tasks"
	th "github.com/dooseok913/music-front/internal/testing"
)

type failingLibrary struct{}

func (failingLibrary) SaveSync(context.Context, string, *models.SyncResult) (*models.SyncRun, error) {
	return nil, errors.New("disk full")
}

func newTestAPI(t *testing.T, provider *th.FakeProvider, opts ...tasks.EngineOption) (http.Handler, *tasks.LibraryEngine) {
	t.Helper()
	engine := tasks.NewLibraryEngine(provider, opts...)
	api := NewAPI(engine, provider, WithAPILogger(th.NewDiscardLogger()))
	return NewHandler(api, nil, th.NewDiscardLogger()), engine
}

func do(t *testing.T, h http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return v
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestBasicRouter(t *testing.T) {
	t.Run("method not allowed", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodPost, "/x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

		rec := do(t, r, http.MethodGet, "/x", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
		if rec.Header().Get("Allow") != http.MethodPost {
			t.Errorf("expected Allow header, got %q", rec.Header().Get("Allow"))
		}
	})

	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle(http.MethodGet, "/x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			order = append(order, "handler")
		}))

		do(t, r, http.MethodGet, "/x", "")
		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("path values", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/p/{id}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprint(w, req.PathValue("id"))
		}))
		if rec := do(t, r, http.MethodGet, "/p/abc", ""); rec.Body.String() != "abc" {
			t.Errorf("expected path value abc, got %q", rec.Body.String())
		}
	})
}

func TestCORS(t *testing.T) {
	h, _ := newTestAPI(t, th.NewFakeProvider())

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tidal/auth/status", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("expected origin echoed, got %q", got)
		}
		if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("expected credentials to be allowed")
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tidal/auth/status", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS header, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/tidal/auth/token", nil)
		req.Header.Set("Origin", "http://localhost:5610")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
			t.Error("expected POST in allowed methods")
		}
	})

	t.Run("configured wildcard", func(t *testing.T) {
		handler := CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://anything.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Header().Get("Access-Control-Allow-Origin") != "https://anything.example" {
			t.Error("expected wildcard to allow any origin")
		}
	})
}

func TestDeviceRoutes(t *testing.T) {
	t.Run("init", func(t *testing.T) {
		h, _ := newTestAPI(t, th.NewFakeProvider())

		rec := do(t, h, http.MethodPost, "/api/tidal/auth/device", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		d := decode[models.DeviceAuthorization](t, rec)
		if d.DeviceCode != "device-code" || d.UserCode != "ABCD-EFGH" || d.Interval != 1 {
			t.Errorf("unexpected device authorization %+v", d)
		}
	})

	t.Run("init failure", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.InitErr = &shared.AuthError{Kind: shared.ErrAuthRequest, Status: 401, Code: "invalid_client", Description: "bad secret"}
		h, _ := newTestAPI(t, p)

		rec := do(t, h, http.MethodPost, "/api/tidal/auth/device", "")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
		body := decode[map[string]string](t, rec)
		if body["error"] != "invalid_client" || body["error_description"] != "bad secret" {
			t.Errorf("expected OAuth error passthrough, got %v", body)
		}
	})

	t.Run("pending is 200 with error", func(t *testing.T) {
		h, _ := newTestAPI(t, th.NewFakeProvider())

		rec := do(t, h, http.MethodPost, "/api/tidal/auth/token", `{"deviceCode":"device-code"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		poll := decode[tasks.TokenPoll](t, rec)
		if poll.Success || poll.Error != models.ErrCodePending {
			t.Errorf("expected authorization_pending, got %+v", poll)
		}
	})

	t.Run("authorized", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.Identity = &models.ResolvedIdentity{UserID: "42", CountryCode: "KR"}
		p.PollResults = []*models.DevicePollResult{{Status: models.PollAuthorized}}
		h, _ := newTestAPI(t, p)

		rec := do(t, h, http.MethodPost, "/api/tidal/auth/token", `{"deviceCode":"device-code"}`)
		poll := decode[tasks.TokenPoll](t, rec)
		if !poll.Success || poll.User == nil || poll.User.UserID != "42" {
			t.Errorf("expected success with user 42, got %+v", poll)
		}
	})

	t.Run("missing device code", func(t *testing.T) {
		h, _ := newTestAPI(t, th.NewFakeProvider())
		if rec := do(t, h, http.MethodPost, "/api/tidal/auth/token", `{}`); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if rec := do(t, h, http.MethodPost, "/api/tidal/auth/token", `{`); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for malformed body, got %d", rec.Code)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.PollErr = fmt.Errorf("%w: connection reset", shared.ErrAuthRequest)
		h, _ := newTestAPI(t, p)

		if rec := do(t, h, http.MethodPost, "/api/tidal/auth/token", `{"deviceCode":"x"}`); rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})
}

func TestWebLoginRoutes(t *testing.T) {
	t.Run("login redirects and sets cookie", func(t *testing.T) {
		h, engine := newTestAPI(t, th.NewFakeProvider())

		rec := do(t, h, http.MethodGet, "/api/tidal/auth/login", "")
		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		c := cookie(rec, SessionCookie)
		if c == nil || c.Value == "" || !c.HttpOnly {
			t.Fatalf("expected http-only session cookie, got %+v", c)
		}

		loc, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatal(err)
		}
		if loc.Query().Get("state") != c.Value {
			t.Errorf("expected state to be the session id, got %q", loc.Query().Get("state"))
		}
		if engine.PendingLogins() != 1 {
			t.Errorf("expected 1 pending login, got %d", engine.PendingLogins())
		}
	})

	t.Run("login json mode", func(t *testing.T) {
		h, _ := newTestAPI(t, th.NewFakeProvider())

		rec := do(t, h, http.MethodGet, "/api/tidal/auth/login?mode=json", "")
		login := decode[tasks.WebLogin](t, rec)
		if login.SessionID == "" || !strings.Contains(login.AuthURL, login.SessionID) {
			t.Errorf("unexpected login %+v", login)
		}
	})

	t.Run("callback exchanges with state", func(t *testing.T) {
		p := th.NewFakeProvider()
		h, engine := newTestAPI(t, p)
		login := engine.StartWebLogin()

		rec := do(t, h, http.MethodGet, CallbackPath+"?code=abc&state="+login.SessionID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		if !strings.Contains(rec.Body.String(), "TIDAL Connected") {
			t.Error("expected success page")
		}
		if p.Calls("Exchange") != 1 {
			t.Errorf("expected one exchange, got %d", p.Calls("Exchange"))
		}
		if c := cookie(rec, SessionCookie); c == nil || c.MaxAge >= 0 {
			t.Error("expected session cookie to be cleared")
		}
	})

	t.Run("callback falls back to cookie", func(t *testing.T) {
		p := th.NewFakeProvider()
		h, engine := newTestAPI(t, p)
		login := engine.StartWebLogin()

		rec := do(t, h, http.MethodGet, CallbackPath+"?code=abc", "", &http.Cookie{Name: SessionCookie, Value: login.SessionID})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("callback replay is rejected", func(t *testing.T) {
		p := th.NewFakeProvider()
		h, engine := newTestAPI(t, p)
		login := engine.StartWebLogin()
		target := CallbackPath + "?code=abc&state=" + login.SessionID

		do(t, h, http.MethodGet, target, "")
		rec := do(t, h, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 on replay, got %d", rec.Code)
		}
		if p.Calls("Exchange") != 1 {
			t.Errorf("expected exchange to run once, got %d", p.Calls("Exchange"))
		}
	})

	t.Run("callback with provider error", func(t *testing.T) {
		h, _ := newTestAPI(t, th.NewFakeProvider())
		rec := do(t, h, http.MethodGet, CallbackPath+"?error=access_denied&error_description=user+said+no", "")
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "access_denied") {
			t.Errorf("expected failure page, got %d %s", rec.Code, rec.Body)
		}
	})

	t.Run("exchange", func(t *testing.T) {
		p := th.NewFakeProvider()
		p.Identity = &models.ResolvedIdentity{UserID: "42", CountryCode: "US"}
		h, engine := newTestAPI(t, p)
		login := engine.StartWebLogin()

		rec := do(t, h, http.MethodPost, "/api/tidal/auth/exchange", fmt.Sprintf(`{"code":"abc","sessionId":%q}`, login.SessionID))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		resp := decode[exchangeResponse](t, rec)
		if !resp.Success || resp.AccessToken != "web-user-token" || resp.RefreshToken == "" {
			t.Errorf("unexpected exchange response %+v", resp)
		}
		if resp.ExpiresIn <= 0 || resp.ExpiresIn > 3600 {
			t.Errorf("expected expires_in within an hour, got %d", resp.ExpiresIn)
		}
		if resp.User == nil || resp.User.UserID != "42" {
			t.Errorf("expected user 42, got %+v", resp.User)
		}
	})

	t.Run("exchange with unknown session", func(t *testing.T) {
		p := th.NewFakeProvider()
		h, _ := newTestAPI(t, p)

		rec := do(t, h, http.MethodPost, "/api/tidal/auth/exchange", `{"code":"abc","sessionId":"nope"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if p.Calls("Exchange") != 0 {
			t.Error("exchange must not run without a verifier")
		}
	})

	t.Run("exchange without code", func(t *testing.T) {
		h, engine := newTestAPI(t, th.NewFakeProvider())
		login := engine.StartWebLogin()
		rec := do(t, h, http.MethodPost, "/api/tidal/auth/exchange", fmt.Sprintf(`{"sessionId":%q}`, login.SessionID))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHealthRoute(t *testing.T) {
	h, _ := newTestAPI(t, th.NewFakeProvider())

	rec := do(t, h, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["status"] != "ok" || body["pendingLogins"] != float64(0) {
		t.Errorf("unexpected body %v", body)
	}

	do(t, h, http.MethodGet, "/api/tidal/auth/login?mode=json", "")
	if body := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/health", "")); body["pendingLogins"] != float64(1) {
		t.Errorf("expected one pending login, got %v", body)
	}
}

func TestAuthStatusRoute(t *testing.T) {
	p := th.NewFakeProvider()
	p.Identity = &models.ResolvedIdentity{UserID: "42", CountryCode: "US"}
	h, _ := newTestAPI(t, p)

	before := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/tidal/auth/status", ""))
	if before["authenticated"] != true || before["userConnected"] != false {
		t.Errorf("expected client-only auth, got %v", before)
	}

	p.Login("user-token")
	after := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/tidal/auth/status", ""))
	if after["userConnected"] != true || after["userId"] != "42" {
		t.Errorf("expected connected user 42, got %v", after)
	}
}

func TestLogoutRoute(t *testing.T) {
	p := th.NewFakeProvider()
	p.Identity = &models.ResolvedIdentity{UserID: "42", CountryCode: "US"}
	p.Login("user-token")
	h, _ := newTestAPI(t, p)

	rec := do(t, h, http.MethodPost, "/api/tidal/auth/logout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["userConnected"] != false || body["authenticated"] != true {
		t.Errorf("expected client-only status after logout, got %v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/auth/sync/tidal", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a sync after logout, got %d", rec.Code)
	}
}

func TestSyncRoute(t *testing.T) {
	setup := func() *th.FakeProvider {
		p := th.NewFakeProvider()
		p.Identity = &models.ResolvedIdentity{UserID: "42", CountryCode: "US"}
		p.Playlists = []models.ExternalPlaylist{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}
		p.Tracks["a"] = []models.ExternalTrack{{ID: "t1", Title: "One"}}
		p.TrackErrs = map[string]error{"b": &shared.StatusError{Endpoint: "/playlists/b/items", StatusCode: 500}}
		return p
	}

	t.Run("not logged in", func(t *testing.T) {
		h, _ := newTestAPI(t, setup())
		if rec := do(t, h, http.MethodPost, "/api/auth/sync/tidal", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("partial result", func(t *testing.T) {
		p := setup()
		p.Login("user-token")
		h, _ := newTestAPI(t, p)

		rec := do(t, h, http.MethodPost, "/api/auth/sync/tidal", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		resp := decode[syncResponse](t, rec)
		if resp.Status != models.SyncPartial || resp.PlaylistCount != 2 || resp.TrackCount != 1 {
			t.Errorf("unexpected summary %+v", resp)
		}
		if len(resp.PartialFailures) != 1 || resp.PartialFailures[0].PlaylistID != "b" {
			t.Errorf("expected b under partial failures, got %+v", resp.PartialFailures)
		}
		if !resp.Playlists[1].Failed || resp.Playlists[0].Failed {
			t.Errorf("unexpected playlist flags %+v", resp.Playlists)
		}
		if resp.Tracks != nil {
			t.Error("tracks should only be included on request")
		}
	})

	t.Run("with tracks", func(t *testing.T) {
		p := setup()
		p.Login("user-token")
		h, _ := newTestAPI(t, p)

		resp := decode[syncResponse](t, do(t, h, http.MethodPost, "/api/auth/sync/tidal?tracks=true", ""))
		if len(resp.Tracks["a"]) != 1 {
			t.Errorf("expected tracks for a, got %+v", resp.Tracks)
		}
	})

	t.Run("persist failure keeps result", func(t *testing.T) {
		p := setup()
		p.Login("user-token")
		h, _ := newTestAPI(t, p, tasks.WithLibrary(failingLibrary{}))

		rec := do(t, h, http.MethodPost, "/api/auth/sync/tidal", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decode[syncResponse](t, rec)
		if resp.Persisted || resp.Warning == "" {
			t.Errorf("expected persisted=false with warning, got %+v", resp)
		}
	})
}

func TestBrowseRoutes(t *testing.T) {
	p := th.NewFakeProvider()
	p.Search = []models.ExternalPlaylist{{ID: "p1", Title: "K-POP Hits"}}
	p.Groups = []services.FeaturedGroup{{Genre: "Pop", Playlists: p.Search}}
	p.Tracks["p1"] = []models.ExternalTrack{{ID: "t1"}, {ID: "t2"}}
	h, _ := newTestAPI(t, p)

	t.Run("search", func(t *testing.T) {
		body := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/tidal/search/playlists?query=kpop&limit=5", ""))
		if body["totalNumberOfItems"] != float64(1) {
			t.Errorf("expected 1 item, got %v", body)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		if rec := do(t, h, http.MethodGet, "/api/tidal/search/playlists?limit=ten", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("featured", func(t *testing.T) {
		body := decode[map[string][]services.FeaturedGroup](t, do(t, h, http.MethodGet, "/api/tidal/featured", ""))
		if len(body["featured"]) != 1 || body["featured"][0].Genre != "Pop" {
			t.Errorf("unexpected featured %v", body)
		}
	})

	t.Run("playlist", func(t *testing.T) {
		got := decode[models.ExternalPlaylist](t, do(t, h, http.MethodGet, "/api/tidal/playlists/p1", ""))
		if got.Title != "K-POP Hits" {
			t.Errorf("unexpected playlist %+v", got)
		}
	})

	t.Run("items", func(t *testing.T) {
		page := decode[services.TrackPage](t, do(t, h, http.MethodGet, "/api/tidal/playlists/p1/items?limit=10&offset=0", ""))
		if len(page.Items) != 2 || page.Limit != 10 {
			t.Errorf("unexpected page %+v", page)
		}
	})

	t.Run("not found", func(t *testing.T) {
		missing := th.NewFakeProvider()
		missing.PlaylistErr = fmt.Errorf("%w: nope", shared.ErrPlaylistNotFound)
		h, _ := newTestAPI(t, missing)
		if rec := do(t, h, http.MethodGet, "/api/tidal/playlists/nope", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestOAuthHandler(t *testing.T) {
	exchange := func(result *models.LoginResult, err error) (ExchangeFunc, *[]string) {
		var seen []string
		return func(_ context.Context, sessionID, code string) (*models.LoginResult, error) {
			seen = append(seen, sessionID+":"+code)
			return result, err
		}, &seen
	}

	t.Run("success", func(t *testing.T) {
		fn, seen := exchange(&models.LoginResult{IdentityResolved: true}, nil)
		h := NewOAuthHandler(fn, "state-1", "")

		rec := do(t, h, http.MethodGet, CallbackPath+"?state=state-1&code=abc", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		select {
		case res := <-h.Result():
			if res.Error() != nil || res.Login == nil || !res.Login.IdentityResolved {
				t.Errorf("unexpected result %+v", res)
			}
		case <-time.After(time.Second):
			t.Fatal("no result received")
		}
		if len(*seen) != 1 || (*seen)[0] != "state-1:abc" {
			t.Errorf("unexpected exchange calls %v", *seen)
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		fn, seen := exchange(nil, nil)
		h := NewOAuthHandler(fn, "state-1", "/cb")

		rec := do(t, h, http.MethodGet, "/cb?state=other&code=abc", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := <-h.Result(); res.Error() == nil {
			t.Error("expected error result")
		}
		if len(*seen) != 0 {
			t.Error("exchange must not run on state mismatch")
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		fn, _ := exchange(nil, shared.ErrAuthExchange)
		h := NewOAuthHandler(fn, "s", "")

		do(t, h, http.MethodGet, CallbackPath+"?state=s&code=abc", "")
		if res := <-h.Result(); !errors.Is(res.Error(), shared.ErrAuthExchange) {
			t.Errorf("expected ErrAuthExchange, got %v", res.Error())
		}
	})

	t.Run("only once", func(t *testing.T) {
		fn, seen := exchange(&models.LoginResult{}, nil)
		h := NewOAuthHandler(fn, "s", "")

		do(t, h, http.MethodGet, CallbackPath+"?state=s&code=abc", "")
		rec := do(t, h, http.MethodGet, CallbackPath+"?state=s&code=abc", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected second callback to be rejected, got %d", rec.Code)
		}
		if len(*seen) != 1 {
			t.Errorf("expected one exchange, got %d", len(*seen))
		}
		if got := h.Routes(); len(got) != 1 || got[0] != CallbackPath {
			t.Errorf("unexpected routes %v", got)
		}
	})
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), th.NewDiscardLogger())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
