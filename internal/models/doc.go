// Package models defines domain entities and persistence interfaces for the qsync library synchronizer.
//
// The package contains three categories of types:
//
// 1. Catalog records: immutable shapes produced by the external catalog clients
//   - [Track] : Song metadata with ISRC for cross-catalog matching
//   - [Album] : Album metadata with UPC, release year and track count
//   - [Playlist] : Playlist metadata with a revision token for change detection
//
// 2. Matching and sync results
//   - [MatchOutcome] : Matched-or-suggestions result of one match attempt
//   - [Suggestion] : Ranked near-miss offered for human review
//   - [ProgressSnapshot] : Read-only view of sync progress emitted to sinks
//   - [CumulativeStats] / [ChunkState] / [SyncReport] : Chunked sync accounting
//
// 3. Persistent entities: database-backed models with full lifecycle management
//   - [SyncTask] : One logical sync run driven chunk by chunk
//   - [MigrationRecord] : The migration row owning a task
//   - [UnmatchedTrack] : Tracks held for review with suggestions
//
// Persistent entities implement the Model interface providing ID generation, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
