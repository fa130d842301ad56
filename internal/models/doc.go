// Package models defines domain entities and persistence interfaces for the TIDAL sync engine.
//
// The package contains two categories of types:
//
// 1. Transfer types: values produced by authorization and catalog reads
//   - [ClientCredential], [UserCredential] : cached access tokens
//   - [DeviceAuthorization], [DevicePollResult] : device-code grant state
//   - [ResolvedIdentity] : the user id and catalog region a sync runs against
//   - [ExternalPlaylist], [ExternalTrack] : catalog items as the platform reports them
//   - [SyncResult], [PartialFailure] : the outcome of one synchronization
//
// 2. Persistent entities: database-backed models written after a sync
//   - [PersistedPlaylist], [PersistedTrack] : library snapshot keyed by service ids
//   - [SyncRun] : one row of synchronization history
//
// Persistent entities implement [Model]; repositories implement [Repository].
package models
