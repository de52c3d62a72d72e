// Package ledger records camsync runs in SQLite so operators can see what
// each run built, skipped and failed.
//
// The Store keeps three tables: runs (one row per command invocation),
// index_builds (one outcome per camera per run) and extract_failures (frames
// the extraction stage could not produce). The ledger is bookkeeping only;
// index files and manifests on disk remain the source of truth for
// idempotence.
//
// Schema changes bump schemaVersion in schema.go; operators delete ledger.db
// to adopt the new schema.
package ledger
