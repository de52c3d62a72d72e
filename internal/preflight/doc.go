// Package preflight provides readiness checks for the filesystem paths and
// external binaries camsync depends on.
//
// The run and extract commands call RunAll before doing any work so a
// misconfigured work directory or missing ffmpeg fails fast instead of after
// the index build. The status command shows the same results.
package preflight
