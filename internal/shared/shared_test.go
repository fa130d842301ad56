package shared

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{name: "basic normalization", title: "Song Title", artist: "Artist Name", want: "song title|artist name"},
		{name: "extra whitespace", title: "  Song   Title  ", artist: "  Artist   Name  ", want: "song title|artist name"},
		{name: "mixed case", title: "SoNg TiTlE", artist: "ArTiSt NaMe", want: "song title|artist name"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTrackKey(tt.title, tt.artist); got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedactClientID(t *testing.T) {
	tc := []struct {
		in   string
		want string
	}{
		{in: "", want: "<unset>"},
		{in: "short", want: "*****"},
		{in: "abcdefghijkl", want: "abcd...ijkl"},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := RedactClientID(tt.in); got != tt.want {
				t.Errorf("RedactClientID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tc := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "0:00"},
		{in: 3*time.Minute + 5*time.Second, want: "3:05"},
		{in: time.Hour + 2*time.Minute + 3*time.Second, want: "1:02:03"},
	}

	for _, tt := range tc {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatDuration(tt.in); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState failed: %v", err)
	}
	b, _ := GenerateState()
	if a == b {
		t.Error("expected distinct states")
	}
	if strings.ContainsAny(a, "+/=") {
		t.Errorf("state should be URL safe, got %q", a)
	}
}

func TestErrors(t *testing.T) {
	t.Run("AuthError unwraps to kind", func(t *testing.T) {
		var err error = &AuthError{Kind: ErrAuthExchange, Status: 400, Code: "invalid_grant"}
		wrapped := fmt.Errorf("login: %w", err)
		if !errors.Is(wrapped, ErrAuthExchange) {
			t.Error("expected errors.Is to match ErrAuthExchange")
		}
		if StatusCode(wrapped) != 400 {
			t.Errorf("expected status 400, got %d", StatusCode(wrapped))
		}
		if !strings.Contains(err.Error(), "invalid_grant") {
			t.Errorf("expected code in message, got %q", err.Error())
		}
	})

	t.Run("StatusError unwraps to ErrCatalogFetch", func(t *testing.T) {
		err := fmt.Errorf("page: %w", &StatusError{Endpoint: "/playlists/x/items", StatusCode: 403})
		if !errors.Is(err, ErrCatalogFetch) {
			t.Error("expected errors.Is to match ErrCatalogFetch")
		}
		if StatusCode(err) != 403 {
			t.Errorf("expected status 403, got %d", StatusCode(err))
		}
	})

	t.Run("missing credentials is a config error", func(t *testing.T) {
		if !errors.Is(ErrMissingCredentials, ErrConfig) {
			t.Error("ErrMissingCredentials should wrap ErrConfig")
		}
	})
}
