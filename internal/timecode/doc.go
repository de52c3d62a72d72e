// Package timecode holds the per-camera timecode index used to align
// independently recorded cameras.
//
// A camera's raw log is parsed into Records, sorted, and built into a
// balanced binary search tree stored in a flat slice. A built Index is
// immutable and safe for concurrent Nearest queries without locking. The
// binary codec persists an Index as a checksummed .tci file so later runs can
// reuse it instead of rebuilding.
package timecode
