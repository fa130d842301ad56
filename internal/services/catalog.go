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

// maxPages bounds a listing whose server never reports a total.
const maxPages = 500

// FavoritesTitle names the virtual playlist built from favorited tracks.
const FavoritesTitle = "Favorite Tracks"

// paginate fetches endpoint page by page, passing each page's items to visit.
//
// It stops when a page is empty or the offset reaches the reported total. When
// the total is omitted, a short page ends the listing.
func paginate[T any](ctx context.Context, s *TidalService, token, endpoint, country string, visit func([]T)) error {
	limit := s.cfg.PageSize
	offset := 0

	for range maxPages {
		params := url.Values{
			"limit":  {strconv.Itoa(limit)},
			"offset": {strconv.Itoa(offset)},
		}
		if country != "" {
			params.Set("countryCode", country)
		}

		var pg page[T]
		if err := s.get(ctx, token, endpoint, params, &pg); err != nil {
			return err
		}
		if len(pg.Items) == 0 {
			return nil
		}

		visit(pg.Items)
		offset += len(pg.Items)

		total := offset
		switch {
		case pg.TotalNumberOfItems != nil:
			total = *pg.TotalNumberOfItems
		case len(pg.Items) >= limit:
			total = offset + 1
		}
		if offset >= total {
			return nil
		}
	}

	s.logger.Warn("pagination stopped at page limit", "endpoint", endpoint, "offset", offset)
	return nil
}

// ListPlaylists tries each configured listing endpoint in order and returns the
// first non-empty result. If none has playlists, favorited tracks become a
// single virtual playlist.
func (s *TidalService) ListPlaylists(ctx context.Context, token string, identity models.ResolvedIdentity) ([]models.ExternalPlaylist, error) {
	for _, template := range s.cfg.PlaylistEndpoints {
		endpoint := expandUser(template, identity.UserID)

		seen := make(map[string]bool)
		var playlists []models.ExternalPlaylist
		err := paginate(ctx, s, token, endpoint, identity.CountryCode, func(items []playlistEntry) {
			for _, item := range items {
				p, ok := item.resolve()
				if !ok || seen[p.UUID] {
					continue
				}
				seen[p.UUID] = true
				playlists = append(playlists, toPlaylist(p))
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("playlist listing failed", "endpoint", endpoint, "status", shared.StatusCode(err), "err", err)
			continue
		}
		if len(playlists) > 0 {
			s.logger.Info("listed playlists", "endpoint", endpoint, "count", len(playlists))
			return playlists, nil
		}
		s.logger.Debug("playlist listing empty", "endpoint", endpoint)
	}

	tracks, err := s.FavoriteTracks(ctx, token, identity)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("favorite tracks unavailable", "err", err)
		return []models.ExternalPlaylist{}, nil
	}
	if len(tracks) == 0 {
		return []models.ExternalPlaylist{}, nil
	}

	s.logger.Info("no playlists found, using favorite tracks", "count", len(tracks))
	return []models.ExternalPlaylist{{
		ID:         models.FavoritesPlaylistID,
		Title:      FavoritesTitle,
		TrackCount: len(tracks),
		Virtual:    true,
		Tracks:     tracks,
	}}, nil
}

// FavoriteTracks returns every track the user has favorited.
func (s *TidalService) FavoriteTracks(ctx context.Context, token string, identity models.ResolvedIdentity) ([]models.ExternalTrack, error) {
	endpoint := expandUser(s.cfg.FavoritesEndpoint, identity.UserID)
	return s.collectTracks(ctx, token, endpoint, identity.CountryCode)
}

// FetchTracks returns every track of playlistID.
//
// A 403 in a country other than the default is retried once, from offset
// zero, in the default country.
func (s *TidalService) FetchTracks(ctx context.Context, token, playlistID, country string) ([]models.ExternalTrack, error) {
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/items"

	var lastErr error
	for i, cc := range s.regionAttempts(country) {
		tracks, err := s.collectTracks(ctx, token, endpoint, cc)
		if err == nil {
			if i > 0 {
				s.logger.Info("playlist fetched in fallback region", "playlist_id", playlistID, "country", cc)
			}
			return tracks, nil
		}

		lastErr = err
		if shared.StatusCode(err) != http.StatusForbidden {
			break
		}
		s.logger.Warn("playlist forbidden in region", "playlist_id", playlistID, "country", cc)
	}
	return nil, fmt.Errorf("playlist %s: %w", playlistID, lastErr)
}

// regionAttempts lists the countries to try, at most two.
func (s *TidalService) regionAttempts(country string) []string {
	def := s.cfg.DefaultCountry
	if country == "" || country == def {
		return []string{def}
	}
	return []string{country, def}
}

func (s *TidalService) collectTracks(ctx context.Context, token, endpoint, country string) ([]models.ExternalTrack, error) {
	tracks := []models.ExternalTrack{}
	err := paginate(ctx, s, token, endpoint, country, func(items []trackEntry) {
		for _, item := range items {
			if t, ok := item.resolve(); ok {
				tracks = append(tracks, toTrack(t))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}
