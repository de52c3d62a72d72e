package preflight

import (
	"errors"
	"strings"

	"camsync/internal/config"
	"camsync/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Output directory and ffmpeg checks only run when extraction is enabled.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
	}

	if cfg.Extract.Enabled {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
		for _, status := range CheckSystemDeps(cfg) {
			results = append(results, Result{
				Name:   status.Name,
				Passed: status.Available || status.Optional,
				Detail: statusDetail(status.Command, status.Detail),
			})
		}
	}

	return results
}

// Err returns a configuration error listing every failed check, or nil.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name+": "+r.Detail)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check environment",
		strings.Join(failed, "; "), errors.New("preflight failed"))
}

func statusDetail(command, detail string) string {
	if detail == "" {
		return command
	}
	return detail
}
