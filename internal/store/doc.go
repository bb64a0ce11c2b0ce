// Package store is the durable local record store for quill.
//
// Articles authored on this device live in an embedded SQLite database
// (ncruces/go-sqlite3, WAL mode) until the sync engine has reconciled them
// with the server. The store is a keyed collection:
//
//	articles
//	  local_id    TEXT PRIMARY KEY   -- assigned here, UUIDv4
//	  server_id   INTEGER NULL       -- assigned by the server, never cleared
//	  title, body TEXT
//	  created_at  TEXT               -- UTC, fixed-width, sortable
//
// with non-unique indexes on created_at and server_id.
//
// # Atomicity
//
// Every Put and Remove runs in its own transaction, so a record is either
// fully written or not at all. SQLite's busy timeout serialises concurrent
// writers from other goroutines or processes (a `quill add` running next to
// the daemon). No lock is held across calls.
//
// # Versioning
//
// The schema version lives in PRAGMA user_version. A fresh file is
// initialised to SchemaVersion; a file written by a newer release is
// refused with a StorageFault rather than guessed at.
//
// # Errors
//
// Failures of the underlying medium are reported as *StorageFault:
//
//	var fault *store.StorageFault
//	if errors.As(err, &fault) {
//	    // the write did not happen
//	}
//
// Content is never validated here; that is the caller's job.
package store
