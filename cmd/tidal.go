package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/services"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) browser() (services.Browser, error) {
	return r.requireProvider()
}

// TidalSearch searches public playlists with the client token.
func (r *Runner) TidalSearch(ctx context.Context, cmd *cli.Command) error {
	browser, err := r.browser()
	if err != nil {
		return err
	}

	query := cmd.StringArg("query")
	if query == "" {
		query = services.DefaultSearchQuery
	}

	r.logger.Infof("searching TIDAL playlists for %q", query)
	playlists, err := browser.SearchPlaylists(ctx, query, cmd.Int("limit"), cmd.String("country"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"items": playlists, "totalNumberOfItems": len(playlists)}, true)
	}

	r.writePlain("Found %d playlists for %q:\n\n", len(playlists), query)
	r.printPlaylists(playlists)
	return nil
}

// TidalFeatured lists the top playlists of each featured genre.
func (r *Runner) TidalFeatured(ctx context.Context, cmd *cli.Command) error {
	browser, err := r.browser()
	if err != nil {
		return err
	}

	groups, err := browser.Featured(ctx, cmd.String("country"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"featured": groups}, true)
	}

	if len(groups) == 0 {
		return r.writePlain("No featured playlists (check the region and client credentials).\n")
	}
	for _, g := range groups {
		r.writePlainHeader(g.Genre)
		r.printPlaylists(g.Playlists)
	}
	return nil
}

// TidalPlaylist shows one playlist's metadata.
func (r *Runner) TidalPlaylist(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	browser, err := r.browser()
	if err != nil {
		return err
	}

	p, err := browser.Playlist(ctx, id, cmd.String("country"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(p, true)
	}

	r.writePlain("Playlist: %s\n", p.Title)
	if p.Description != "" {
		r.writePlain("Description: %s\n", p.Description)
	}
	if p.Creator != "" {
		r.writePlain("Creator: %s\n", p.Creator)
	}
	r.writePlain("ID: %s\n", p.ID)
	return r.writePlain("Tracks: %d\n", p.TrackCount)
}

// TidalItems prints one page of a playlist's tracks.
func (r *Runner) TidalItems(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	browser, err := r.browser()
	if err != nil {
		return err
	}

	page, err := browser.PlaylistItems(ctx, id, cmd.Int("limit"), cmd.Int("offset"), cmd.String("country"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(page, true)
	}

	r.writePlain("Tracks %d-%d of %d:\n\n", page.Offset+1, page.Offset+len(page.Items), page.Total)
	for i, t := range page.Items {
		r.writePlain("%d. %s - %s [%s]\n", page.Offset+i+1, t.Artist, t.Title, shared.FormatDuration(t.Duration))
		if t.Album != "" {
			r.writePlain("   Album: %s\n", t.Album)
		}
		if t.ISRC != "" {
			r.writePlain("   ISRC: %s\n", t.ISRC)
		}
	}
	return nil
}

// TidalRaw GETs any catalog endpoint, for endpoints the other commands do not cover.
func (r *Runner) TidalRaw(ctx context.Context, cmd *cli.Command) error {
	endpoint := cmd.StringArg("endpoint")
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint", shared.ErrMissingArgument)
	}

	params := url.Values{}
	for _, kv := range cmd.StringSlice("param") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("%w: --param %q must be key=value", shared.ErrInvalidFlag, kv)
		}
		params.Add(key, value)
	}
	if country := cmd.String("country"); country != "" {
		params.Set("countryCode", country)
	}

	browser, err := r.browser()
	if err != nil {
		return err
	}

	r.logger.Info("GET request", "endpoint", endpoint)
	resp, err := browser.Raw(ctx, endpoint, params)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrCatalogFetch, resp.StatusCode, string(resp.Body))
	}

	if !cmd.Bool("json") && json.Valid(resp.Body) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Body, "", "  "); err == nil {
			return r.writePlain("%s\n", pretty.String())
		}
	}
	return r.writePlain("%s\n", resp.Body)
}

func (r *Runner) printPlaylists(playlists []models.ExternalPlaylist) {
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Title)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n\n", p.TrackCount)
	}
}
