package main

import (
	"context"

	"github.com/dooseok913/music-front/internal/server"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until the context is canceled.
//
// When the database cannot be opened the API still serves logins and syncs,
// reporting every sync as not persisted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	provider, err := r.requireProvider()
	if err != nil {
		return err
	}

	engine, err := r.newEngine(true, 0)
	if err != nil {
		r.logger.Warn("database unavailable, sync results will not be saved", "error", err)
		if engine, err = r.newEngine(false, 0); err != nil {
			return err
		}
	}

	logger := shared.WithLogger(r.logger, "component", "http")
	api := server.NewAPI(engine, provider,
		server.WithAPILogger(logger),
		server.WithSecureCookies(cmd.Bool("secure-cookies")),
	)
	handler := server.NewHandler(api, r.config.Server.AllowedOrigins, logger)

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	return server.Serve(ctx, addr, handler, logger)
}
