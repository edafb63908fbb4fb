// Package store persists casework state in SQLite.
//
// One database holds the case list, a single file_records table keyed by
// (case_id, path, location), the favorites index, per-case poll state, the
// automation registry's enabled flags, and task history. Callers only need
// upsert and point-lookup semantics; the work daemon is the sole writer of
// records and sync state, so no cross-task locking is required here.
//
// File records are never reconciled against the filesystem: a file that
// disappears keeps its last known record until the owning case is deleted.
// Schema changes bump schemaVersion; older databases must be recreated.
package store
