package server

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/services"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/dooseok913/music-front/internal/tasks"
)

// SessionCookie carries the PKCE session id between the login redirect and the callback.
const SessionCookie = "tidal_session"

// API serves the TIDAL login, sync and browse routes.
type API struct {
	engine  tasks.SyncEngine
	browser services.Browser
	logger  *log.Logger
	secure  bool
}

// APIOption configures an [API].
type APIOption func(*API)

// WithAPILogger sets the logger for handler errors.
func WithAPILogger(l *log.Logger) APIOption {
	return func(a *API) { a.logger = l }
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) APIOption {
	return func(a *API) { a.secure = secure }
}

// NewAPI creates the route set. browser may be nil when catalog browsing is not offered.
func NewAPI(engine tasks.SyncEngine, browser services.Browser, opts ...APIOption) *API {
	a := &API{engine: engine, browser: browser, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds every route to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/api/health", http.HandlerFunc(a.health))
	r.Handle(http.MethodGet, "/api/tidal/auth/status", http.HandlerFunc(a.authStatus))
	r.Handle(http.MethodPost, "/api/tidal/auth/device", http.HandlerFunc(a.deviceAuth))
	r.Handle(http.MethodPost, "/api/tidal/auth/token", http.HandlerFunc(a.pollToken))
	r.Handle(http.MethodGet, "/api/tidal/auth/login", http.HandlerFunc(a.login))
	r.Handle(http.MethodGet, CallbackPath, http.HandlerFunc(a.callback))
	r.Handle(http.MethodPost, "/api/tidal/auth/exchange", http.HandlerFunc(a.exchange))
	r.Handle(http.MethodPost, "/api/tidal/auth/logout", http.HandlerFunc(a.logout))
	r.Handle(http.MethodPost, "/api/auth/sync/tidal", http.HandlerFunc(a.sync))

	if a.browser == nil {
		return
	}
	r.Handle(http.MethodGet, "/api/tidal/search/playlists", http.HandlerFunc(a.searchPlaylists))
	r.Handle(http.MethodGet, "/api/tidal/featured", http.HandlerFunc(a.featured))
	r.Handle(http.MethodGet, "/api/tidal/playlists/{id}", http.HandlerFunc(a.playlist))
	r.Handle(http.MethodGet, "/api/tidal/playlists/{id}/items", http.HandlerFunc(a.playlistItems))
}

// NewHandler builds a router with logging and CORS around every route.
func NewHandler(api *API, origins []string, logger *log.Logger) http.Handler {
	router := NewBasicRouter()
	router.Use(Logging(logger), CORS(origins))
	api.Register(router)
	return router
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"pendingLogins": a.engine.PendingLogins(),
	})
}

func (a *API) authStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.AuthStatus(r.Context()))
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	a.engine.Logout()
	writeJSON(w, http.StatusOK, a.engine.AuthStatus(r.Context()))
}

func (a *API) deviceAuth(w http.ResponseWriter, r *http.Request) {
	d, err := a.engine.InitDeviceAuth(r.Context())
	if err != nil {
		a.logger.Error("device authorization failed", "error", err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// pollToken always answers 200 for OAuth outcomes, pending included, so
// clients read the error field to decide whether to poll again.
func (a *API) pollToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceCode string `json:"deviceCode"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if body.DeviceCode == "" {
		writeError(w, http.StatusBadRequest, "deviceCode is required")
		return
	}

	poll, err := a.engine.PollToken(r.Context(), body.DeviceCode)
	if err != nil {
		a.logger.Warn("token poll failed", "error", err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poll)
}

// login starts a PKCE session and redirects to the authorization page.
// With ?mode=json the session id and URL are returned instead.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	login := a.engine.StartWebLogin()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    login.SessionID,
		Path:     "/",
		MaxAge:   int(10 * time.Minute / time.Second),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})

	if r.URL.Query().Get("mode") == "json" {
		writeJSON(w, http.StatusOK, login)
		return
	}
	http.Redirect(w, r, login.AuthURL, http.StatusFound)
}

func (a *API) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: a.secure})
}

// sessionID prefers the explicit id and falls back to the cookie.
func sessionID(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (a *API) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a.clearSession(w)

	if e := q.Get("error"); e != "" {
		renderCallback(w, http.StatusBadRequest, false, e+": "+q.Get("error_description"))
		return
	}

	code := q.Get("code")
	if code == "" {
		renderCallback(w, http.StatusBadRequest, false, "Missing authorization code.")
		return
	}

	if _, err := a.engine.ExchangeCode(r.Context(), sessionID(r, q.Get("state")), code); err != nil {
		a.logger.Error("code exchange failed", "error", err)
		renderCallback(w, statusFor(err), false, "Token exchange failed.")
		return
	}
	renderCallback(w, http.StatusOK, true, "You can close this window and return to the app.")
}

type exchangeResponse struct {
	Success          bool                     `json:"success"`
	User             *models.ResolvedIdentity `json:"user,omitempty"`
	IdentityResolved bool                     `json:"identityResolved"`
	AccessToken      string                   `json:"access_token"`
	RefreshToken     string                   `json:"refresh_token,omitempty"`
	ExpiresIn        int                      `json:"expires_in"`
}

func (a *API) exchange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code      string `json:"code"`
		SessionID string `json:"sessionId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	login, err := a.engine.ExchangeCode(r.Context(), sessionID(r, body.SessionID), body.Code)
	if err != nil {
		a.logger.Error("code exchange failed", "error", err)
		writeErr(w, err)
		return
	}
	a.clearSession(w)

	resp := exchangeResponse{
		Success:          true,
		User:             login.Identity,
		IdentityResolved: login.IdentityResolved,
	}
	if c := login.Credential; c != nil {
		resp.AccessToken = c.AccessToken
		resp.RefreshToken = c.RefreshToken
		resp.ExpiresIn = int(math.Max(0, time.Until(c.ExpiresAt).Seconds()))
	}
	writeJSON(w, http.StatusOK, resp)
}

type syncedPlaylist struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	TrackCount int    `json:"trackCount"`
	Virtual    bool   `json:"virtual,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
}

type syncResponse struct {
	Success         bool                              `json:"success"`
	Persisted       bool                              `json:"persisted"`
	Status          string                            `json:"status"`
	User            models.ResolvedIdentity           `json:"user"`
	PlaylistCount   int                               `json:"playlistCount"`
	TrackCount      int                               `json:"trackCount"`
	Playlists       []syncedPlaylist                  `json:"playlists"`
	PartialFailures []models.PartialFailure           `json:"partialFailures"`
	Tracks          map[string][]models.ExternalTrack `json:"tracksByPlaylistId,omitempty"`
	StartedAt       time.Time                         `json:"startedAt"`
	FinishedAt      time.Time                         `json:"finishedAt"`
	Warning         string                            `json:"warning,omitempty"`
}

func summarize(result *models.SyncResult) syncResponse {
	resp := syncResponse{
		Success:         true,
		Persisted:       true,
		Status:          result.Status(),
		User:            result.Identity,
		PlaylistCount:   len(result.Playlists),
		TrackCount:      result.TrackCount(),
		Playlists:       make([]syncedPlaylist, 0, len(result.Playlists)),
		PartialFailures: result.PartialFailures,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
	}
	for _, p := range result.Playlists {
		tracks, ok := result.TracksByPlaylistID[p.ID]
		resp.Playlists = append(resp.Playlists, syncedPlaylist{
			ID:         p.ID,
			Title:      p.Title,
			TrackCount: len(tracks),
			Virtual:    p.IsVirtual(),
			Failed:     !ok,
		})
	}
	return resp
}

// sync runs one synchronization. A persistence failure still returns the
// fetched library with persisted=false.
func (a *API) sync(w http.ResponseWriter, r *http.Request) {
	result, err := a.engine.Run(r.Context(), nil)
	if result == nil {
		a.logger.Error("sync failed", "error", err)
		writeErr(w, err)
		return
	}

	resp := summarize(result)
	if err != nil {
		if !errors.Is(err, shared.ErrPersist) {
			writeErr(w, err)
			return
		}
		a.logger.Error("sync not persisted", "error", err)
		resp.Persisted = false
		resp.Warning = err.Error()
	}
	if v, _ := strconv.ParseBool(r.URL.Query().Get("tracks")); v {
		resp.Tracks = result.TracksByPlaylistID
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Join(shared.ErrInvalidArgument, errors.New(key+" must be an integer"))
	}
	return n, nil
}

func (a *API) searchPlaylists(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeErr(w, err)
		return
	}
	q := r.URL.Query()
	playlists, err := a.browser.SearchPlaylists(r.Context(), q.Get("query"), limit, q.Get("countryCode"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": playlists, "totalNumberOfItems": len(playlists)})
}

func (a *API) featured(w http.ResponseWriter, r *http.Request) {
	groups, err := a.browser.Featured(r.Context(), r.URL.Query().Get("countryCode"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"featured": groups})
}

func (a *API) playlist(w http.ResponseWriter, r *http.Request) {
	p, err := a.browser.Playlist(r.Context(), r.PathValue("id"), r.URL.Query().Get("countryCode"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) playlistItems(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeErr(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeErr(w, err)
		return
	}
	page, err := a.browser.PlaylistItems(r.Context(), r.PathValue("id"), limit, offset, r.URL.Query().Get("countryCode"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
