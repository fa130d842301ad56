// Package server provides HTTP routing, middleware, and the TIDAL login and sync routes.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [CORS] are the middleware the API installs.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
// Middleware runs before the method check so CORS preflight requests are answered for every route.
//
// # API
//
// [API] registers the routes a web client drives:
//
//	GET  /api/health                       liveness and pending web logins
//	GET  /api/tidal/auth/status            credential status
//	POST /api/tidal/auth/device            start a device login
//	POST /api/tidal/auth/token             poll once; pending is a 200 with an error field
//	GET  /api/tidal/auth/login             start a PKCE login, set the tidal_session cookie, redirect
//	GET  /api/tidal/auth/callback          exchange code (state is the session id), render a result page
//	POST /api/tidal/auth/exchange          exchange code for a session id in the body or cookie
//	POST /api/tidal/auth/logout            forget the user token, answer with the auth status
//	POST /api/auth/sync/tidal              run and persist a synchronization
//	GET  /api/tidal/search/playlists       search public playlists
//	GET  /api/tidal/featured               featured playlists by genre
//	GET  /api/tidal/playlists/{id}         playlist metadata
//	GET  /api/tidal/playlists/{id}/items   one page of playlist tracks
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves one web login callback for the CLI. It validates the
// state parameter, redeems the code through an [ExchangeFunc], and sends the
// result through a channel. It only processes one callback to prevent replay.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
