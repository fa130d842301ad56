// Package services defines the platform interfaces consumed by the sync engine and implements them for TIDAL.
//
// # Interfaces
//
// [Authorizer] runs the OAuth grants, [Resolver] turns a token into a user id
// and catalog region, [Catalog] reads a user's library and [Browser] reads the
// public catalog. [Provider] combines them.
//
// # TIDAL Implementation
//
// [TidalService] implements [Provider]:
//   - client credentials via [clientcredentials.Config] with HTTP Basic client authentication
//   - device-code login with client credentials in the form body, polled one request at a time
//   - PKCE web login through [oauth2.Config.Exchange] with the verifier attached
//   - refresh of expired user tokens through the store's single-flight refresher
//
// Every grant writes to one [auth.TokenStore], and both login flows resolve the
// identity through the same [IdentityResolver].
//
// # Identity Resolution
//
// Endpoint probes run in configured order; the first response carrying a user
// id wins. The last strategy reads the token's own JWT payload without
// verifying it. Country falls back to the configured default.
//
// # Catalog Reads
//
// Listing endpoints are tried in order until one is non-empty. When none is,
// favorited tracks become a single virtual playlist whose id starts with
// [models.VirtualPlaylistPrefix]. Track listings paginate by offset until the
// reported total is reached or a page comes back empty, and a 403 in a
// non-default country is retried once in the default country.
//
// # Error Handling
//
// Failures wrap sentinels from the shared package:
//   - [shared.ErrConfig] : client id or secret unset
//   - [shared.ErrAuthRequest], [shared.ErrAuthExchange] : grant failures, as [shared.AuthError]
//   - [shared.ErrIdentityResolution] : no strategy produced a user id
//   - [shared.ErrCatalogFetch] : catalog failures, as [shared.StatusError] when the server answered
package services
