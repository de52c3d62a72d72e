// Package extract writes the synchronized frames listed in a manifest as
// image files.
//
// FrameExtractor is the decoding contract; FFmpeg implements it by asking
// ffmpeg for a single frame as PNG on stdout. Stage walks a manifest, skips
// artifacts that already exist, extracts the rest on the shared worker pool
// and aggregates failures instead of aborting.
package extract
