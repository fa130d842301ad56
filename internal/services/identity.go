package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

var (
	userIDKeys  = []string{"userId", "id", "user_id", "uid", "sub"}
	countryKeys = []string{"countryCode", "country_code", "country", "cc"}
)

// Strategy is one way of finding out who a token belongs to.
//
// A strategy may return an identity with only CountryCode set; the resolver
// keeps that country for later strategies.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, token string) (*models.ResolvedIdentity, error)
}

type getFunc func(ctx context.Context, token, endpoint string, params url.Values, out any) error

// EndpointProbe asks an API endpoint about the current session or user.
type EndpointProbe struct {
	Endpoint string
	get      getFunc
}

func (p *EndpointProbe) Name() string { return p.Endpoint }

func (p *EndpointProbe) Resolve(ctx context.Context, token string) (*models.ResolvedIdentity, error) {
	var body map[string]any
	if err := p.get(ctx, token, p.Endpoint, nil, &body); err != nil {
		return nil, err
	}

	identity := identityFromMap(body)
	if identity == nil {
		if data, ok := body["data"].(map[string]any); ok {
			identity = identityFromMap(data)
			if attrs, ok := data["attributes"].(map[string]any); ok && identity != nil && identity.CountryCode == "" {
				identity.CountryCode = lookupString(attrs, countryKeys)
			}
		}
	}
	if identity == nil {
		if user, ok := body["user"].(map[string]any); ok {
			identity = identityFromMap(user)
		}
	}
	if identity == nil {
		if country := lookupString(body, countryKeys); country != "" {
			return &models.ResolvedIdentity{CountryCode: country}, nil
		}
		return nil, fmt.Errorf("no user id in response from %s", p.Endpoint)
	}
	return identity, nil
}

// JWTClaims reads the user id from the token's own payload without verifying it.
type JWTClaims struct{}

func (JWTClaims) Name() string { return "jwt" }

func (JWTClaims) Resolve(_ context.Context, token string) (*models.ResolvedIdentity, error) {
	claims, err := unverifiedClaims(token)
	if err != nil {
		return nil, err
	}
	identity := identityFromMap(claims)
	if identity == nil {
		return nil, errors.New("token has no user_id or sub claim")
	}
	return identity, nil
}

func unverifiedClaims(token string) (map[string]any, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		return claims, nil
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token is not a JWT")
	}
	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode token payload: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse token payload: %w", err)
	}
	return raw, nil
}

// IdentityResolver tries strategies in order and returns the first user id found.
type IdentityResolver struct {
	strategies     []Strategy
	defaultCountry string
	logger         *log.Logger
}

// NewIdentityResolver creates a resolver. The country falls back to defaultCountry.
func NewIdentityResolver(strategies []Strategy, defaultCountry string, logger *log.Logger) *IdentityResolver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &IdentityResolver{strategies: strategies, defaultCountry: defaultCountry, logger: logger}
}

// Resolve returns the identity behind token or an error matching [shared.ErrIdentityResolution].
func (r *IdentityResolver) Resolve(ctx context.Context, token string) (*models.ResolvedIdentity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", shared.ErrIdentityResolution)
	}

	var (
		country string
		errs    []error
	)
	for _, st := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		identity, err := st.Resolve(ctx, token)
		if err != nil {
			r.logger.Debug("identity strategy failed", "strategy", st.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", st.Name(), err))
			continue
		}
		if country == "" {
			country = identity.CountryCode
		}
		if identity.UserID == "" {
			continue
		}

		identity.Source = st.Name()
		if identity.CountryCode == "" {
			identity.CountryCode = country
		}
		if identity.CountryCode == "" {
			identity.CountryCode = r.defaultCountry
		}
		return identity, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no strategy produced a user id", shared.ErrIdentityResolution)
	}
	return nil, fmt.Errorf("%w: %w", shared.ErrIdentityResolution, errors.Join(errs...))
}

// identityFromMap picks the first user id and country key present in m.
func identityFromMap(m map[string]any) *models.ResolvedIdentity {
	id := lookupString(m, userIDKeys)
	if id == "" {
		return nil
	}
	return &models.ResolvedIdentity{UserID: id, CountryCode: lookupString(m, countryKeys)}
}

func lookupString(m map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
