package auth

import "golang.org/x/oauth2"

// ChallengeMethod is the only PKCE method offered.
const ChallengeMethod = "S256"

// PKCE is a verifier and its derived challenge.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCE returns a verifier built from 32 random bytes, base64url
// encoded without padding, and its S256 challenge.
func GeneratePKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{Verifier: verifier, Challenge: Challenge(verifier), Method: ChallengeMethod}
}

// Challenge is base64url(sha256(verifier)) without padding.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
