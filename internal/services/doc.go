// Package services defines shared utilities consumed by the pipeline stages and
// the external collaborators they drive.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, stage names, and camera IDs
//     for logging.
//   - Structured error markers plus the Wrap helper that let stages decide
//     whether a failure excludes one camera, one frame, or the whole run.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across build, sync, and extract.
package services
