// Package syncer aligns every camera against a reference camera and produces
// the synchronization manifest.
//
// For each reference record, in log order, the Orchestrator asks every other
// camera's timecode index for the nearest timecode within the threshold. The
// queries for a batch of reference records run concurrently on the shared
// worker pool; sets are appended to the manifest strictly in reference order,
// so the result does not depend on the worker count.
//
// Manifests are persisted as JSON keyed by (reference camera, threshold,
// start timecode). An existing manifest is loaded instead of re-querying. A
// cancelled run persists its completed prefix as a .partial.json checkpoint
// that the next run with the same key resumes from.
package syncer
