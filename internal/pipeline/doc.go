// Package pipeline wires the camsync stages into runs.
//
// A Pipeline holds the loaded configuration, the run ledger and an optional
// frame extractor override. Each entry point (Run, BuildIndexes, Sync and
// Extract) acquires the work directory lock, records a ledger run, executes
// its stages in order and returns a Report. Per-camera and per-frame
// failures are collected in the report; only configuration errors, ledger
// failures and cancellation end a run early.
package pipeline
