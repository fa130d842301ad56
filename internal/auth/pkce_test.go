package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dooseok913/music-front/internal/shared"
)

var base64URL = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestGeneratePKCE(t *testing.T) {
	t.Run("verifier encodes at least 32 bytes", func(t *testing.T) {
		p := GeneratePKCE()
		if len(p.Verifier) < 43 {
			t.Errorf("expected verifier of at least 43 chars, got %d", len(p.Verifier))
		}
		if !base64URL.MatchString(p.Verifier) {
			t.Errorf("verifier is not unpadded base64url: %q", p.Verifier)
		}
		if p.Method != "S256" {
			t.Errorf("expected S256, got %s", p.Method)
		}
	})

	t.Run("challenge is sha256 of verifier", func(t *testing.T) {
		for range 10 {
			p := GeneratePKCE()
			sum := sha256.Sum256([]byte(p.Verifier))
			want := base64.RawURLEncoding.EncodeToString(sum[:])
			if p.Challenge != want {
				t.Fatalf("challenge %q does not match sha256(verifier) %q", p.Challenge, want)
			}
		}
	})

	t.Run("verifiers are unique", func(t *testing.T) {
		seen := map[string]bool{}
		for range 50 {
			v := GeneratePKCE().Verifier
			if seen[v] {
				t.Fatalf("duplicate verifier %q", v)
			}
			seen[v] = true
		}
	})
}

func TestSessionStore(t *testing.T) {
	t.Run("Take consumes once", func(t *testing.T) {
		store := NewSessionStore(time.Minute)
		id, p := store.Begin()

		verifier, err := store.Take(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if verifier != p.Verifier {
			t.Errorf("expected %q, got %q", p.Verifier, verifier)
		}

		if _, err := store.Take(id); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("second Take should fail with ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("concurrent logins are independent", func(t *testing.T) {
		store := NewSessionStore(time.Minute)
		idA, a := store.Begin()
		idB, b := store.Begin()

		if store.Len() != 2 {
			t.Fatalf("expected 2 sessions, got %d", store.Len())
		}

		gotB, _ := store.Take(idB)
		gotA, _ := store.Take(idA)
		if gotA != a.Verifier || gotB != b.Verifier {
			t.Error("verifiers were mixed between sessions")
		}
	})

	t.Run("expired sessions are rejected and pruned", func(t *testing.T) {
		clock := newFakeClock()
		store := NewSessionStore(time.Minute)
		store.now = clock.Now

		store.Put("old", "v1")
		clock.Advance(2 * time.Minute)

		if _, err := store.Take("old"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}

		store.Put("stale", "v2")
		clock.Advance(2 * time.Minute)
		store.Put("fresh", "v3")
		if store.Len() != 1 {
			t.Errorf("expected stale entry pruned, got %d entries", store.Len())
		}
	})

	t.Run("parallel Take yields the verifier once", func(t *testing.T) {
		store := NewSessionStore(time.Minute)
		id, _ := store.Begin()

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Take(id); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("expected exactly one successful Take, got %d", wins)
		}
	})
}
