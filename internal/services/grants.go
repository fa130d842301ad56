package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	deviceGrantType        = "urn:ietf:params:oauth:grant-type:device_code"
	defaultVerificationURI = "link.tidal.com"
	defaultDeviceWindow    = 300
)

// deviceResponse accepts both the camelCase fields TIDAL sends and the RFC 8628 names.
type deviceResponse struct {
	DeviceCode              string `json:"deviceCode"`
	UserCode                string `json:"userCode"`
	VerificationURI         string `json:"verificationUri"`
	VerificationURIComplete string `json:"verificationUriComplete"`
	ExpiresIn               int    `json:"expiresIn"`
	Interval                int    `json:"interval"`

	DeviceCodeRFC              string `json:"device_code"`
	UserCodeRFC                string `json:"user_code"`
	VerificationURIRFC         string `json:"verification_uri"`
	VerificationURICompleteRFC string `json:"verification_uri_complete"`
	ExpiresInRFC               int    `json:"expires_in"`
}

type tokenUser struct {
	UserID      flexID `json:"userId"`
	CountryCode string `json:"countryCode"`
}

// tokenResponse is the token endpoint's body for both success and OAuth errors.
type tokenResponse struct {
	AccessToken      string     `json:"access_token"`
	RefreshToken     string     `json:"refresh_token"`
	TokenType        string     `json:"token_type"`
	ExpiresIn        int64      `json:"expires_in"`
	UserID           flexID     `json:"user_id"`
	User             *tokenUser `json:"user"`
	Error            string     `json:"error"`
	ErrorDescription string     `json:"error_description"`
}

func (s *TidalService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.creds.ClientID,
		ClientSecret: s.creds.ClientSecret,
		RedirectURL:  s.creds.RedirectURI,
		Scopes:       s.creds.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       s.cfg.LoginURL,
			TokenURL:      s.tokenURL(),
			DeviceAuthURL: s.deviceURL(),
			AuthStyle:     oauth2.AuthStyleInHeader,
		},
	}
}

// oauthContext routes x/oauth2 requests through the service's HTTP client.
func (s *TidalService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// FetchClientToken runs the client-credentials grant with HTTP Basic client authentication.
func (s *TidalService) FetchClientToken(ctx context.Context) (*oauth2.Token, error) {
	if err := s.creds.Validate(); err != nil {
		return nil, err
	}

	cc := clientcredentials.Config{
		ClientID:     s.creds.ClientID,
		ClientSecret: s.creds.ClientSecret,
		TokenURL:     s.tokenURL(),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	tok, err := cc.Token(s.oauthContext(ctx))
	if err != nil {
		return nil, s.grantError(shared.ErrAuthRequest, err)
	}
	s.logger.Info("obtained client token", "client_id", shared.RedactClientID(s.creds.ClientID), "expires_in", tok.ExpiresIn)
	return tok, nil
}

// RefreshUserToken runs the refresh_token grant.
func (s *TidalService) RefreshUserToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	src := s.oauthConfig().TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, s.grantError(shared.ErrAuthRequest, err)
	}
	return tok, nil
}

// AuthURL builds the web login URL carrying state and the S256 challenge.
func (s *TidalService) AuthURL(state, challenge string) string {
	return s.oauthConfig().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", auth.ChallengeMethod),
	)
}

// InitDevice requests a device code and user code.
func (s *TidalService) InitDevice(ctx context.Context) (*models.DeviceAuthorization, error) {
	if s.creds.ClientID == "" {
		return nil, fmt.Errorf("%w: TIDAL client_id not set", shared.ErrMissingCredentials)
	}

	form := url.Values{"client_id": {s.creds.ClientID}}
	if len(s.creds.Scopes) > 0 {
		form.Set("scope", strings.Join(s.creds.Scopes, " "))
	}

	status, body, err := s.postForm(ctx, s.deviceURL(), form)
	if err != nil {
		return nil, &shared.AuthError{Kind: shared.ErrAuthRequest, Description: err.Error(), ClientID: shared.RedactClientID(s.creds.ClientID)}
	}
	if status < 200 || status >= 300 {
		return nil, s.responseError(shared.ErrAuthRequest, status, body)
	}

	var dr deviceResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, &shared.AuthError{Kind: shared.ErrAuthRequest, Status: status, Description: "malformed device response", Body: truncate(body)}
	}

	d := &models.DeviceAuthorization{
		DeviceCode:              firstNonEmpty(dr.DeviceCode, dr.DeviceCodeRFC),
		UserCode:                firstNonEmpty(dr.UserCode, dr.UserCodeRFC),
		VerificationURI:         normalizeVerificationURI(firstNonEmpty(dr.VerificationURI, dr.VerificationURIRFC, defaultVerificationURI)),
		VerificationURIComplete: normalizeVerificationURI(firstNonEmpty(dr.VerificationURIComplete, dr.VerificationURICompleteRFC)),
		ExpiresIn:               max(dr.ExpiresIn, dr.ExpiresInRFC),
		Interval:                dr.Interval,
	}
	if d.DeviceCode == "" || d.UserCode == "" {
		return nil, &shared.AuthError{Kind: shared.ErrAuthRequest, Status: status, Description: "device response missing codes", Body: truncate(body)}
	}
	if d.ExpiresIn <= 0 {
		d.ExpiresIn = defaultDeviceWindow
	}

	s.logger.Info("device authorization started", "user_code", d.UserCode, "expires_in", d.ExpiresIn, "interval", d.PollInterval())
	return d, nil
}

// PollOnce polls the token endpoint for deviceCode.
//
// Client credentials are sent in the form body for this grant. On success the
// token is stored and the identity resolved before returning; an identity that
// cannot be resolved is reported, not treated as a failed login.
func (s *TidalService) PollOnce(ctx context.Context, deviceCode string) (*models.DevicePollResult, error) {
	if deviceCode == "" {
		return nil, fmt.Errorf("%w: device code is required", shared.ErrMissingArgument)
	}

	form := url.Values{
		"client_id":   {s.creds.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {deviceGrantType},
	}
	if s.creds.ClientSecret != "" {
		form.Set("client_secret", s.creds.ClientSecret)
	}
	if len(s.creds.Scopes) > 0 {
		form.Set("scope", strings.Join(s.creds.Scopes, " "))
	}

	status, body, err := s.postForm(ctx, s.tokenURL(), form)
	if err != nil {
		return nil, fmt.Errorf("device poll: %w", err)
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	if tr.Error != "" {
		result := &models.DevicePollResult{Status: models.PollFailed, Error: tr.Error, ErrorDescription: tr.ErrorDescription}
		if tr.Error == models.ErrCodePending || tr.Error == models.ErrCodeSlowDown {
			result.Status = models.PollPending
		}
		return result, nil
	}
	if status < 200 || status >= 300 {
		return nil, s.responseError(shared.ErrAuthRequest, status, body)
	}
	if decodeErr != nil || tr.AccessToken == "" {
		return nil, &shared.AuthError{Kind: shared.ErrAuthRequest, Status: status, Description: "token response missing access_token", Body: truncate(body)}
	}

	cred := s.tokens.StoreUserToken(&oauth2.Token{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken, ExpiresIn: tr.ExpiresIn})
	login := s.completeLogin(ctx, cred, tr.identityHint())

	return &models.DevicePollResult{
		Status:           models.PollAuthorized,
		Credential:       login.Credential,
		Identity:         login.Identity,
		IdentityResolved: login.IdentityResolved,
	}, nil
}

// Exchange trades an authorization code for a user token using the PKCE verifier.
func (s *TidalService) Exchange(ctx context.Context, code, verifier string) (*models.LoginResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is required", shared.ErrMissingArgument)
	}
	if verifier == "" {
		return nil, &shared.AuthError{Kind: shared.ErrAuthExchange, Description: "no code verifier for this login"}
	}
	if err := s.creds.Validate(); err != nil {
		return nil, err
	}

	tok, err := s.oauthConfig().Exchange(s.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, s.grantError(shared.ErrAuthExchange, err)
	}

	var hint *models.ResolvedIdentity
	if user, ok := tok.Extra("user").(map[string]any); ok {
		hint = identityFromMap(user)
	}

	cred := s.tokens.StoreUserToken(tok)
	return s.completeLogin(ctx, cred, hint), nil
}

// completeLogin resolves the identity for a freshly stored user token.
func (s *TidalService) completeLogin(ctx context.Context, cred *models.UserCredential, hint *models.ResolvedIdentity) *models.LoginResult {
	result := &models.LoginResult{Credential: cred}

	identity, err := s.identity.Resolve(ctx, cred.AccessToken)
	if err != nil && hint != nil && hint.UserID != "" {
		s.logger.Warn("session lookup failed, using identity from token response", "err", err)
		if hint.CountryCode == "" {
			hint.CountryCode = s.cfg.DefaultCountry
		}
		hint.Source = "token_response"
		identity, err = hint, nil
	}
	if err != nil {
		s.logger.Warn("logged in but identity is unresolved", "err", err)
		return result
	}

	s.tokens.AttachIdentity(*identity)
	cred.UserID, cred.CountryCode = identity.UserID, identity.CountryCode
	result.Identity = identity
	result.IdentityResolved = true
	s.logger.Info("user logged in", "user_id", identity.UserID, "country", identity.CountryCode, "source", identity.Source)
	return result
}

func (tr tokenResponse) identityHint() *models.ResolvedIdentity {
	switch {
	case tr.User != nil && tr.User.UserID != "":
		return &models.ResolvedIdentity{UserID: string(tr.User.UserID), CountryCode: tr.User.CountryCode}
	case tr.UserID != "":
		return &models.ResolvedIdentity{UserID: string(tr.UserID)}
	}
	return nil
}

// postForm sends an unauthenticated form POST and returns status and body.
func (s *TidalService) postForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// responseError builds an [shared.AuthError] from a non-success response body.
func (s *TidalService) responseError(kind error, status int, body []byte) error {
	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)
	return &shared.AuthError{
		Kind:        kind,
		Status:      status,
		Code:        tr.Error,
		Description: tr.ErrorDescription,
		Body:        truncate(body),
		ClientID:    shared.RedactClientID(s.creds.ClientID),
	}
}

// grantError converts x/oauth2 failures into [shared.AuthError].
func (s *TidalService) grantError(kind error, err error) error {
	if errors.Is(err, shared.ErrConfig) {
		return err
	}
	ae := &shared.AuthError{Kind: kind, ClientID: shared.RedactClientID(s.creds.ClientID)}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			ae.Status = re.Response.StatusCode
		}
		ae.Code = re.ErrorCode
		ae.Description = re.ErrorDescription
		ae.Body = truncate(re.Body)
		return ae
	}
	ae.Description = err.Error()
	return ae
}

func normalizeVerificationURI(uri string) string {
	if uri == "" || strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	return "https://" + uri
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
