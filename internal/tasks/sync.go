package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/services"
	"github.com/dooseok913/music-front/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 4
	MaxWorkers     = 8
)

// LibraryWriter persists a finished synchronization.
type LibraryWriter interface {
	SaveSync(ctx context.Context, userID string, result *models.SyncResult) (*models.SyncRun, error)
}

// SyncEngine is the control surface consumed by the CLI, the TUI and the HTTP server.
type SyncEngine interface {
	// Run performs one synchronization with the current user token.
	Run(ctx context.Context, progress chan<- ProgressUpdate) (*models.SyncResult, error)

	// InitDeviceAuth starts a device-code login.
	InitDeviceAuth(ctx context.Context) (*models.DeviceAuthorization, error)

	// PollToken polls once and reports the result the way clients expect it.
	PollToken(ctx context.Context, deviceCode string) (*TokenPoll, error)

	// LoginWithDevice polls d until it is authorized, rejected, expired or canceled.
	LoginWithDevice(ctx context.Context, d *models.DeviceAuthorization) (*models.DevicePollResult, error)

	// StartWebLogin opens a PKCE session and returns where to send the user.
	StartWebLogin() *WebLogin

	// ExchangeCode redeems code with the verifier stored for sessionID.
	ExchangeCode(ctx context.Context, sessionID, code string) (*models.LoginResult, error)

	// AuthStatus reports the available credentials.
	AuthStatus(ctx context.Context) auth.Status

	// Logout forgets the user credential. Catalog reads keep using the client token.
	Logout()

	// PendingLogins reports how many web logins await their callback.
	PendingLogins() int
}

// LibraryEngine implements [SyncEngine] for one provider.
type LibraryEngine struct {
	provider services.Provider
	sessions *auth.SessionStore
	library  LibraryWriter
	workers  int
	logger   *log.Logger
	now      func() time.Time
}

// EngineOption configures a [LibraryEngine].
type EngineOption func(*LibraryEngine)

// WithLibrary persists every successful run through w.
func WithLibrary(w LibraryWriter) EngineOption {
	return func(e *LibraryEngine) { e.library = w }
}

// WithWorkers sets how many playlists are fetched at once, clamped to [1, MaxWorkers].
func WithWorkers(n int) EngineOption {
	return func(e *LibraryEngine) { e.workers = n }
}

func WithLogger(l *log.Logger) EngineOption {
	return func(e *LibraryEngine) { e.logger = l }
}

// WithSessions replaces the PKCE session store.
func WithSessions(s *auth.SessionStore) EngineOption {
	return func(e *LibraryEngine) { e.sessions = s }
}

// NewLibraryEngine creates an engine for provider.
func NewLibraryEngine(provider services.Provider, opts ...EngineOption) *LibraryEngine {
	e := &LibraryEngine{
		provider: provider,
		workers:  DefaultWorkers,
		logger:   log.New(io.Discard),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sessions == nil {
		e.sessions = auth.NewSessionStore(auth.DefaultSessionTTL)
	}
	e.workers = min(max(e.workers, 1), MaxWorkers)
	return e
}

// Provider returns the platform the engine talks to.
func (e *LibraryEngine) Provider() services.Provider { return e.provider }

// sendProgress sends a progress update through the channel without blocking.
func (e *LibraryEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run performs one synchronization.
//
// Track fetch failures are recorded in the result's PartialFailures and never
// abort the run. A run that finds nothing is an empty result, not an error.
// When a [LibraryWriter] is configured and fails, the result is returned along
// with an error matching [shared.ErrPersist].
func (e *LibraryEngine) Run(ctx context.Context, progress chan<- ProgressUpdate) (*models.SyncResult, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", shared.ErrConfig)
	}

	token, err := e.provider.Tokens().UserToken(ctx)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, resolvingUpdate())
	identity, err := e.identity(ctx, token)
	if err != nil {
		return nil, err
	}
	e.sendProgress(progress, resolvedUpdate(identity))

	result := models.NewSyncResult(*identity, e.now())

	e.sendProgress(progress, listingUpdate())
	playlists, err := e.provider.ListPlaylists(ctx, token, *identity)
	if err != nil {
		return nil, err
	}
	result.Playlists = playlists
	e.sendProgress(progress, listedUpdate(playlists))

	if err := e.fetchAll(ctx, token, result, progress); err != nil {
		return nil, err
	}
	result.FinishedAt = e.now()

	e.logger.Info("sync finished",
		"user_id", identity.UserID,
		"playlists", len(result.Playlists),
		"tracks", result.TrackCount(),
		"failures", len(result.PartialFailures),
		"took", result.FinishedAt.Sub(result.StartedAt),
	)

	if e.library == nil {
		return result, nil
	}

	e.sendProgress(progress, persistUpdate(0, nil))
	run, err := e.library.SaveSync(ctx, identity.UserID, result)
	if err != nil {
		if !errors.Is(err, shared.ErrPersist) {
			err = fmt.Errorf("%w: %w", shared.ErrPersist, err)
		}
		return result, err
	}
	e.sendProgress(progress, persistUpdate(1, run))
	return result, nil
}

// identity resolves the account behind token. The identity captured at login
// stands in when resolution fails.
func (e *LibraryEngine) identity(ctx context.Context, token string) (*models.ResolvedIdentity, error) {
	identity, err := e.provider.Resolve(ctx, token)
	if err == nil {
		return identity, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if stored, ok := e.provider.Tokens().Identity(); ok {
		e.logger.Warn("identity resolution failed, using identity from login", "user_id", stored.UserID, "err", err)
		return &stored, nil
	}
	return nil, err
}

// fetchAll fills result.TracksByPlaylistID on a bounded pool. Results are
// collected per index so the output order follows the playlist order.
func (e *LibraryEngine) fetchAll(ctx context.Context, token string, result *models.SyncResult, progress chan<- ProgressUpdate) error {
	playlists := result.Playlists
	tracks := make([][]models.ExternalTrack, len(playlists))
	errs := make([]error, len(playlists))

	var (
		g    errgroup.Group
		done atomic.Int32
	)
	g.SetLimit(e.workers)

	total := len(playlists)
	for i, p := range playlists {
		if p.IsVirtual() {
			tracks[i] = p.Tracks
			e.sendProgress(progress, trackUpdate(int(done.Add(1)), total, p, len(p.Tracks)))
			continue
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			got, err := e.provider.FetchTracks(ctx, token, p.ID, result.Identity.CountryCode)
			step := int(done.Add(1))
			if err != nil {
				errs[i] = err
				e.logger.Warn("playlist fetch failed", "playlist_id", p.ID, "title", p.Title, "status", shared.StatusCode(err), "err", err)
				e.sendProgress(progress, trackFailedUpdate(step, total, p, err))
				return nil
			}
			tracks[i] = got
			e.sendProgress(progress, trackUpdate(step, total, p, len(got)))
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, p := range playlists {
		if errs[i] != nil {
			result.PartialFailures = append(result.PartialFailures, models.PartialFailure{
				PlaylistID: p.ID,
				Title:      p.Title,
				Error:      errs[i].Error(),
			})
			continue
		}
		if tracks[i] == nil {
			tracks[i] = []models.ExternalTrack{}
		}
		result.TracksByPlaylistID[p.ID] = tracks[i]
	}
	return nil
}
