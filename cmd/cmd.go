// submodule cmd contains command definitions
package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/formatter"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/urfave/cli/v3"
)

const version = "0.3.0"

// newApp builds the root command around r.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "musicspace",
		Usage:     "Connect a TIDAL account and synchronize its playlists",
		Version:   version,
		Writer:    r.output,
		ErrWriter: r.output,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				shared.SetLogLevel(r.logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, tidalCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func countryFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "country",
		Usage: "Catalog country code (defaults to tidal.default_country)",
	}
}

func logFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "log-file",
		Usage: "Where to write logs while the terminal UI is running",
		Value: "./tmp/musicspace-tui.log",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// setupCommand handles setup operations for the configuration file and database.
func setupCommand(r *Runner) *cli.Command {
	configFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		}
	}

	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml from the built-in template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles TIDAL logins
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Connect a TIDAL account",
		Commands: []*cli.Command{
			{
				Name:  "device",
				Usage: "Log in by entering a code at link.tidal.com",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "plain",
						Usage: "Print the code instead of starting the terminal UI",
					},
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Open the verification link in a browser (plain mode)",
					},
					logFileFlag(),
				},
				Action: r.AuthDevice,
			},
			{
				Name:  "web",
				Usage: "Log in through the browser with a local callback server",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: webLoginTimeout,
					},
				},
				Action: r.AuthWeb,
			},
			{
				Name:   "status",
				Usage:  "Show which TIDAL credentials are available",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// syncCommand handles library synchronization
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize the TIDAL library into the local database",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Fetch every playlist and its tracks, then persist them",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Playlists fetched at once (1-8)",
					},
					&cli.BoolFlag{
						Name:  "export",
						Usage: "Write the synchronized library to disk",
					},
					&cli.StringFlag{
						Name:  "export-dir",
						Usage: "Export directory (implies --export; default tidal-export-<timestamp>)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: json, csv, markdown or txt",
						Value:   string(formatter.FormatJSON),
					},
					&cli.BoolFlag{
						Name:  "covers",
						Usage: "Download playlist covers (markdown exports)",
					},
					jsonFlag(),
				},
				Action: r.SyncRun,
			},
			{
				Name:  "history",
				Usage: "Show recent synchronization runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "user",
						Usage: "Only runs for this TIDAL user id",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 10,
					},
					jsonFlag(),
				},
				Action: r.SyncHistory,
			},
			{
				Name:  "show",
				Usage: "List stored playlists, or the tracks of one stored playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "user",
						Usage: "Only playlists of this TIDAL user id",
					},
					jsonFlag(),
				},
				Action: r.SyncShow,
			},
		},
	}
}

// tidalCommand handles catalog browsing with the client token
func tidalCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tidal",
		Usage: "Browse the public TIDAL catalog",
		Commands: []*cli.Command{
			{
				Name:  "search",
				Usage: "Search public playlists",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "query"},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists",
						Value: 10,
					},
					countryFlag(),
					jsonFlag(),
				},
				Action: r.TidalSearch,
			},
			{
				Name:   "featured",
				Usage:  "Top playlists for each featured genre",
				Flags:  []cli.Flag{countryFlag(), jsonFlag()},
				Action: r.TidalFeatured,
			},
			{
				Name:  "playlist",
				Usage: "Show playlist metadata",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{countryFlag(), jsonFlag()},
				Action: r.TidalPlaylist,
			},
			{
				Name:  "items",
				Usage: "Show one page of playlist tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Page size",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Index of the first track",
					},
					countryFlag(),
					jsonFlag(),
				},
				Action: r.TidalItems,
			},
			{
				Name:  "raw",
				Usage: "GET any catalog endpoint, e.g. /genres",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "endpoint"},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "param",
						Aliases: []string{"p"},
						Usage:   "Query parameter as key=value (repeatable)",
					},
					countryFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the body as received, without indentation",
					},
				},
				Action: r.TidalRaw,
			},
		},
	}
}

// serveCommand runs the HTTP control surface
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the login and sync API for a web client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
			&cli.BoolFlag{
				Name:  "secure-cookies",
				Usage: "Mark the login session cookie Secure",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for logging in and browsing the synchronized library.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Log in if needed, synchronize and browse the library",
		Flags:   []cli.Flag{logFileFlag()},
		Action:  r.TUI,
	}
}
