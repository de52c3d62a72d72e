// Package indexbuild turns camera timecode logs into persisted timecode
// indexes and reopens them for synchronization.
//
// Builder.BuildAll processes every discovered camera on the shared worker
// pool. A camera whose index file already exists is skipped, so re-running a
// build only fills in what is missing; index files are written with temp
// file + rename, so existence implies a complete file. Each camera ends in
// one of four outcomes (built, skipped, failed, missing) that are logged and
// recorded in the run ledger. A failure never stops the other cameras.
package indexbuild
