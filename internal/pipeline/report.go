package pipeline

import (
	"fmt"
	"strings"
	"time"

	"camsync/internal/extract"
	"camsync/internal/indexbuild"
	"camsync/internal/ledger"
	"camsync/internal/syncer"
)

// Report collects what one pipeline invocation did.
type Report struct {
	RunID   string
	Stage   string
	Cameras []string
	Builds  []indexbuild.Outcome
	// Unloaded maps cameras whose index could not be opened for sync to the
	// cause.
	Unloaded map[string]error
	Sync     *syncer.Result
	Extract  *extract.Report
	Elapsed  time.Duration
}

// Summary renders the report as the one-line summary stored in the ledger.
func (r Report) Summary() string {
	var parts []string
	if len(r.Cameras) > 0 {
		parts = append(parts, fmt.Sprintf("cameras=%d", len(r.Cameras)))
	}
	if len(r.Builds) > 0 {
		counts := indexbuild.Summarize(r.Builds)
		parts = append(parts, fmt.Sprintf("built=%d skipped=%d failed=%d missing=%d",
			counts[ledger.OutcomeBuilt], counts[ledger.OutcomeSkipped],
			counts[ledger.OutcomeFailed], counts[ledger.OutcomeMissing]))
	}
	if r.Sync != nil && r.Sync.Manifest != nil {
		parts = append(parts, fmt.Sprintf("sets=%d matches=%d", r.Sync.Manifest.Len(), r.Sync.Manifest.MatchCount()))
		if r.Sync.Reused {
			parts = append(parts, "manifest=reused")
		}
	}
	if r.Extract != nil {
		parts = append(parts, fmt.Sprintf("frames_written=%d frames_skipped=%d frames_failed=%d",
			r.Extract.Written, r.Extract.Skipped, r.Extract.Failed()))
	}
	return strings.Join(parts, " ")
}
