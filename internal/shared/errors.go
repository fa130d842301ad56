package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = errors.New("not implemented")

	// Configuration errors
	ErrConfig             = errors.New("configuration error")
	ErrMissingCredentials = fmt.Errorf("%w: missing client credentials", ErrConfig)

	// Authentication errors
	ErrAuthRequest      = errors.New("authorization request failed")
	ErrAuthExchange     = errors.New("authorization code exchange failed")
	ErrDeviceExpired    = errors.New("device authorization expired")
	ErrDeviceDenied     = errors.New("device authorization denied")
	ErrPollCanceled     = errors.New("device polling canceled")
	ErrSessionNotFound  = errors.New("login session not found or already used")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrTimeout          = errors.New("operation timed out")

	// Identity and catalog errors
	ErrIdentityResolution = errors.New("could not resolve user identity")
	ErrCatalogFetch       = errors.New("catalog request failed")
	ErrPlaylistNotFound   = errors.New("playlist not found")
	ErrPersist            = errors.New("failed to persist sync result")
	ErrNotFound           = errors.New("record not found")

	// Input validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidFlag     = errors.New("invalid flag value")
)

// AuthError carries the authorization server's response for a failed grant.
//
// Kind is one of the authentication sentinels above and is what [errors.Is] matches.
type AuthError struct {
	Kind        error
	Status      int
	Code        string
	Description string
	Body        string
	ClientID    string
}

func (e *AuthError) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Code != "" {
		msg += ": " + e.Code
		if e.Description != "" {
			msg += " - " + e.Description
		}
	} else if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.ClientID != "" {
		msg += " [client " + e.ClientID + "]"
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Kind }

// StatusError describes a non-success response from a catalog endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d: %s", ErrCatalogFetch, e.Endpoint, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrCatalogFetch }

// StatusCode reports the HTTP status carried by err, or 0 when there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}
