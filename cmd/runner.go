package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/repositories"
	"github.com/dooseok913/music-front/internal/services"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/dooseok913/music-front/internal/tasks"
)

// libraryService is the service column written for every persisted row.
const libraryService = "tidal"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The provider and the database are opened on first use so that commands
// which need neither (setup, help) work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	provider   services.Provider
	db         *sql.DB
	ownsDB     bool
	library    *repositories.LibraryStore
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Provider   services.Provider
	DB         *sql.DB
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Tidal.Timeout()}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		provider:   opts.Provider,
		db:         opts.DB,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the logger used by everything the runner creates from now on.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database if the runner opened it.
func (r *Runner) Close() error {
	if r.db == nil || !r.ownsDB {
		return nil
	}
	err := r.db.Close()
	r.db, r.library, r.ownsDB = nil, nil, false
	return err
}

// requireProvider returns the TIDAL service, creating it from the configured credentials.
func (r *Runner) requireProvider() (services.Provider, error) {
	if r.provider != nil {
		return r.provider, nil
	}

	creds := r.config.Credentials.Tidal
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	r.logger.Debug("creating TIDAL service", "client_id", shared.RedactClientID(creds.ClientID))
	r.provider = services.NewTidalService(creds, r.config.Tidal,
		services.WithHTTPClient(r.httpClient),
		services.WithLogger(shared.WithLogger(r.logger, "service", "tidal")),
	)
	return r.provider, nil
}

// openLibrary opens the configured database, migrates it and wraps it in a [repositories.LibraryStore].
func (r *Runner) openLibrary() (*repositories.LibraryStore, error) {
	if r.library != nil {
		return r.library, nil
	}

	if r.db == nil {
		path := r.config.Database.Path
		r.logger.Debug("opening database", "path", path)

		db, err := shared.NewDatabase(path)
		if err != nil {
			return nil, err
		}
		shared.ConfigureDatabase(db, r.config.Database)

		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		r.db, r.ownsDB = db, true
	}

	r.library = repositories.NewLibraryStore(r.db, libraryService, shared.WithLogger(r.logger, "component", "library"))
	return r.library, nil
}

// newEngine builds a sync engine. With persist set, finished runs are written to the database.
func (r *Runner) newEngine(persist bool, workers int) (*tasks.LibraryEngine, error) {
	provider, err := r.requireProvider()
	if err != nil {
		return nil, err
	}

	if workers <= 0 {
		workers = r.config.Tidal.Workers
	}
	opts := []tasks.EngineOption{
		tasks.WithWorkers(workers),
		tasks.WithLogger(shared.WithLogger(r.logger, "component", "engine")),
	}

	if persist {
		store, err := r.openLibrary()
		if err != nil {
			return nil, err
		}
		opts = append(opts, tasks.WithLibrary(store))
	}

	return tasks.NewLibraryEngine(provider, opts...), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	out, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain("\n"+format+"\n", args...)
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
