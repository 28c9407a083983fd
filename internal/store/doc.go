// Package store persists the creator id → last-seen item id mapping.
//
// The main components are:
//
//   - [Store]: Interface every backend implements
//   - [Snapshot]: Thread-safe in-memory mapping shared by the backends
//   - [FileStore]: JSON file, rewritten atomically via rename
//   - [SQLiteStore]: Table in a SQLite database
//   - [RedisStore]: Single Redis hash, replaced inside MULTI/EXEC
//   - [MemoryStore]: Never persists; for dry runs and tests
//
// All backends keep the mapping in memory between Load and Flush. Get and
// Set never touch the medium, and a failed Flush leaves the persisted copy
// as it was.
package store
