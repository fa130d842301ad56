// Package tasks orchestrates logins and library synchronization with real-time progress reporting.
//
// # Core Operations
//
// The [SyncEngine] interface covers the client-facing control surface:
//
//  1. [SyncEngine.Run] : one synchronization
//     - Resolves the identity behind the user token
//     - Lists playlists, or the virtual favorites playlist
//     - Fetches tracks per playlist on a bounded worker pool
//     - Collects per-playlist failures instead of aborting
//     - Hands the result to the optional [LibraryWriter]
//
//  2. Device login: [SyncEngine.InitDeviceAuth], [SyncEngine.PollToken] and
//     [SyncEngine.LoginWithDevice], the last driving an [auth.Poller] to settlement.
//
//  3. Web login: [SyncEngine.StartWebLogin] opens a PKCE session and
//     [SyncEngine.ExchangeCode] consumes it exactly once.
//
//  4. [SyncEngine.AuthStatus] : the credential view shown to clients, and
//     [SyncEngine.Logout] to drop the user token
//
// # Progress Reporting
//
// Run sends [ProgressUpdate] values on an optional channel. Sends never block;
// a full channel drops the update.
//
// # Implementation
//
// [LibraryEngine] implements [SyncEngine] on top of a [services.Provider].
package tasks
