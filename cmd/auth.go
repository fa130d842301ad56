package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/server"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/dooseok913/music-front/internal/tasks"
	"github.com/dooseok913/music-front/internal/ui"
	"github.com/urfave/cli/v3"
)

const webLoginTimeout = 2 * time.Minute

// AuthDevice runs a device login, in the terminal UI unless --plain is set.
func (r *Runner) AuthDevice(ctx context.Context, cmd *cli.Command) error {
	plain := cmd.Bool("plain")
	if !plain {
		closeLog, err := r.logToFile(cmd.String("log-file"))
		if err != nil {
			return err
		}
		defer closeLog()
	}

	engine, err := r.newEngine(false, 0)
	if err != nil {
		return err
	}

	if !plain {
		model, err := r.runTUI(ctx, engine, ui.LoginOnly)
		if err != nil {
			return err
		}
		if model.Err() != nil {
			return model.Err()
		}
		if model.Canceled() || model.Login() == nil {
			return r.writePlain("Login canceled\n")
		}
		return r.printLogin(model.Login().Identity)
	}

	res, err := r.deviceLogin(ctx, engine, cmd.Bool("open"))
	if err != nil {
		return err
	}
	return r.printLogin(res.Identity)
}

// deviceLogin prints the user code and polls until the login settles.
func (r *Runner) deviceLogin(ctx context.Context, engine *tasks.LibraryEngine, open bool) (*models.DevicePollResult, error) {
	d, err := engine.InitDeviceAuth(ctx)
	if err != nil {
		return nil, err
	}

	link := d.VerificationURI
	if d.VerificationURIComplete != "" {
		link = d.VerificationURIComplete
	}

	r.writePlainHeader("Connect your TIDAL account")
	r.writePlain("1. Visit %s\n", d.VerificationURI)
	r.writePlain("2. Enter the code: %s\n\n", d.UserCode)
	if open {
		if err := shared.OpenBrowser(link); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
		}
	}
	r.writePlain("→ Waiting for authorization (code expires in %s)...\n", shared.FormatDuration(d.Window()))

	res, err := engine.LoginWithDevice(ctx, d)
	switch {
	case errors.Is(err, shared.ErrDeviceExpired):
		return nil, fmt.Errorf("%w: run the login again for a new code", err)
	case errors.Is(err, shared.ErrDeviceDenied):
		return nil, fmt.Errorf("%w: the request was declined", err)
	case err != nil:
		return nil, err
	}
	return res, nil
}

// AuthWeb performs a PKCE login with a local HTTP server on the redirect URI.
//
// Opens the browser at the TIDAL login page and waits for the callback.
func (r *Runner) AuthWeb(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.newEngine(false, 0)
	if err != nil {
		return err
	}

	redirect, err := url.Parse(r.config.Credentials.Tidal.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: credentials.tidal.redirect_uri must be an absolute URL", shared.ErrConfig)
	}

	login := engine.StartWebLogin()
	oauthHandler := server.NewOAuthHandler(engine.ExchangeCode, login.SessionID, redirect.Path)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serverCtx, stop := context.WithCancel(ctx)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting callback server at %v", redirect.Host)
		serverErrors <- server.Serve(serverCtx, redirect.Host, router, r.logger)
	}()

	r.writePlain("→ Opening browser for TIDAL login...\n")
	if err := shared.OpenBrowser(login.AuthURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", login.AuthURL)
	}

	wait := cmd.Duration("timeout")
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", wait)

	timeout := time.NewTimer(wait)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, wait)
	case <-ctx.Done():
		return ctx.Err()
	}

	stop()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("callback server did not shut down cleanly", "error", err)
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}
	return r.printLogin(result.Login.Identity)
}

// AuthStatus reports which credentials the current process can use.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	provider, err := r.requireProvider()
	if err != nil {
		return err
	}

	status := provider.Tokens().Status(ctx)
	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	if status.Authenticated {
		r.writePlain("✓ Client credentials: ok\n")
	} else {
		r.writePlain("✗ Client credentials: %s\n", status.Error)
	}
	if status.UserConnected {
		r.writePlain("✓ User session: %s\n", status.UserID)
	} else {
		r.writePlain("✗ User session: none (run 'musicspace auth device')\n")
	}
	if status.ExpiresAt != nil {
		r.writePlain("Expires: %s\n", status.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func (r *Runner) printLogin(identity *models.ResolvedIdentity) error {
	r.writePlainln("✓ TIDAL connected")
	if identity == nil {
		return r.writePlain("⚠ The account could not be identified yet; it will be resolved on the first sync.\n")
	}
	r.writePlain("User: %s\n", identity.UserID)
	return r.writePlain("Country: %s\n", identity.CountryCode)
}
