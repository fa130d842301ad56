// Package auth holds credential state for the TIDAL integration.
//
// [TokenStore] caches the application (client-credentials) token and the
// user-delegated token. Refreshes are single-flight per credential kind and
// no lock is held while a refresh is on the wire.
//
// [SessionStore] keeps one PKCE verifier per in-flight web login, keyed by a
// session id that doubles as the OAuth state. Verifiers are consumed exactly
// once by [SessionStore.Take].
//
// [Poller] drives the device-code grant: it calls a poll function at the
// server-mandated interval until authorization, a fatal error, expiry of the
// device code, or [Poller.Cancel].
package auth
