package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

// DefaultSearchQuery is used when a playlist search has no query.
const DefaultSearchQuery = "K-POP"

// FeaturedGenres are searched, in order, for the featured listing.
var FeaturedGenres = []string{"K-POP", "Pop", "Hip-Hop", "Rock", "Electronic"}

const featuredPerGenre = 5

// FeaturedGroup is the top playlists for one genre.
type FeaturedGroup struct {
	Genre     string                    `json:"genre"`
	Playlists []models.ExternalPlaylist `json:"playlists"`
}

// TrackPage is a single page of playlist items.
type TrackPage struct {
	Items  []models.ExternalTrack `json:"items"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Total  int                    `json:"totalNumberOfItems"`
}

// APIResponse is a raw catalog response.
type APIResponse struct {
	StatusCode int
	Body       []byte
}

// catalogToken prefers the application token and falls back to a user token.
func (s *TidalService) catalogToken(ctx context.Context) (string, error) {
	tok, err := s.tokens.ClientToken(ctx)
	if err == nil {
		return tok, nil
	}
	if user, uerr := s.tokens.UserToken(ctx); uerr == nil {
		return user, nil
	}
	return "", err
}

func (s *TidalService) country(country string) string {
	if country == "" {
		return s.cfg.DefaultCountry
	}
	return country
}

// SearchPlaylists searches the public catalog for playlists.
func (s *TidalService) SearchPlaylists(ctx context.Context, query string, limit int, country string) ([]models.ExternalPlaylist, error) {
	token, err := s.catalogToken(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		query = DefaultSearchQuery
	}
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{
		"query":       {query},
		"type":        {"PLAYLISTS"},
		"limit":       {strconv.Itoa(limit)},
		"countryCode": {s.country(country)},
	}

	var resp struct {
		Playlists page[tidalPlaylist] `json:"playlists"`
	}
	if err := s.get(ctx, token, "/search", params, &resp); err != nil {
		return nil, err
	}

	playlists := make([]models.ExternalPlaylist, 0, len(resp.Playlists.Items))
	for _, p := range resp.Playlists.Items {
		playlists = append(playlists, toPlaylist(p))
	}
	return playlists, nil
}

// Featured searches each of [FeaturedGenres] and keeps the top results.
// A failing genre is skipped.
func (s *TidalService) Featured(ctx context.Context, country string) ([]FeaturedGroup, error) {
	if _, err := s.catalogToken(ctx); err != nil {
		return nil, err
	}

	groups := []FeaturedGroup{}
	for _, genre := range FeaturedGenres {
		playlists, err := s.SearchPlaylists(ctx, genre, featuredPerGenre, country)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Error("featured genre failed", "genre", genre, "err", err)
			continue
		}
		if len(playlists) > featuredPerGenre {
			playlists = playlists[:featuredPerGenre]
		}
		groups = append(groups, FeaturedGroup{Genre: genre, Playlists: playlists})
	}

	if len(groups) == 0 {
		s.logger.Warn("featured listing returned no results, check region and credentials", "country", s.country(country))
	}
	return groups, nil
}

// Playlist returns playlist metadata.
func (s *TidalService) Playlist(ctx context.Context, id, country string) (*models.ExternalPlaylist, error) {
	token, err := s.catalogToken(ctx)
	if err != nil {
		return nil, err
	}

	var p tidalPlaylist
	params := url.Values{"countryCode": {s.country(country)}}
	if err := s.get(ctx, token, "/playlists/"+url.PathEscape(id), params, &p); err != nil {
		if shared.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
		}
		return nil, err
	}
	playlist := toPlaylist(p)
	return &playlist, nil
}

// PlaylistItems returns one page of a playlist's tracks.
func (s *TidalService) PlaylistItems(ctx context.Context, id string, limit, offset int, country string) (*TrackPage, error) {
	token, err := s.catalogToken(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", shared.ErrInvalidArgument)
	}

	params := url.Values{
		"limit":       {strconv.Itoa(limit)},
		"offset":      {strconv.Itoa(offset)},
		"countryCode": {s.country(country)},
	}

	var pg page[trackEntry]
	if err := s.get(ctx, token, "/playlists/"+url.PathEscape(id)+"/items", params, &pg); err != nil {
		if shared.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
		}
		return nil, err
	}

	out := &TrackPage{Items: []models.ExternalTrack{}, Limit: limit, Offset: offset}
	for _, item := range pg.Items {
		if t, ok := item.resolve(); ok {
			out.Items = append(out.Items, toTrack(t))
		}
	}
	out.Total = len(pg.Items) + offset
	if pg.TotalNumberOfItems != nil {
		out.Total = *pg.TotalNumberOfItems
	}
	return out, nil
}

// Raw performs an authenticated GET against any catalog endpoint and returns
// the response without interpreting it.
func (s *TidalService) Raw(ctx context.Context, endpoint string, params url.Values) (*APIResponse, error) {
	token, _, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}
	if params.Get("countryCode") == "" {
		params.Set("countryCode", s.cfg.DefaultCountry)
	}

	status, body, err := s.do(ctx, http.MethodGet, token, endpoint, params)
	if err != nil {
		return nil, err
	}
	return &APIResponse{StatusCode: status, Body: body}, nil
}
