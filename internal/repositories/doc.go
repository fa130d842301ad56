// Package repositories implements SQLite persistence for synchronized libraries.
//
// Each repository works against a [Querier], so the same code runs on a
// [*sql.DB] or inside a [*sql.Tx]. [LibraryStore] uses that to write a whole
// sync result in one transaction.
//
// Key Implementations:
//   - [PlaylistRepository] : playlist snapshots, unique per service, service id and user
//   - [TrackRepository] : tracks shared between playlists, unique per service and service id
//   - [PlaylistTrackRepository] : ordered playlist membership
//   - [SyncRunRepository] : synchronization history
//   - [LibraryStore] : upserts a [models.SyncResult] and records its run
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
