package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"camsync/internal/config"
	"camsync/internal/fileutil"
	"camsync/internal/ledger"
	"camsync/internal/preflight"
)

type statusRun struct {
	ID         string    `json:"id"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Reference  string    `json:"reference_camera,omitempty"`
	Threshold  int64     `json:"threshold"`
	Summary    string    `json:"summary,omitempty"`
	Error      string    `json:"error,omitempty"`
	Failures   int       `json:"extract_failures"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

type statusIndex struct {
	Camera     string    `json:"camera"`
	Outcome    string    `json:"outcome"`
	Records    int       `json:"records"`
	Path       string    `json:"path,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	Detail     string    `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type statusCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

type statusSnapshot struct {
	ConfigPath string        `json:"config_path"`
	Reference  string        `json:"reference_camera"`
	Threshold  int64         `json:"threshold"`
	DataDir    string        `json:"data_dir"`
	WorkDir    string        `json:"work_dir"`
	Extract    bool          `json:"extract_enabled"`
	Checks     []statusCheck `json:"checks"`
	Indexes    []statusIndex `json:"indexes"`
	Runs       []statusRun   `json:"runs"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration, environment checks, indexes and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(cfg *config.Config, store *ledger.Store) error {
				snap, err := collectStatus(cmd, cfg, ctx.configPath, store, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(snap)
				}
				renderStatus(out, snap, newPainter(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent runs to list")
	return cmd
}

func collectStatus(cmd *cobra.Command, cfg *config.Config, configPath string, store *ledger.Store, limit int) (statusSnapshot, error) {
	snap := statusSnapshot{
		ConfigPath: configPath,
		Reference:  cfg.Sync.ReferenceCamera,
		Threshold:  cfg.Sync.Threshold,
		DataDir:    cfg.Paths.DataDir,
		WorkDir:    cfg.Paths.WorkDir,
		Extract:    cfg.Extract.Enabled,
	}
	for _, r := range preflight.RunAll(cfg) {
		snap.Checks = append(snap.Checks, statusCheck{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}

	builds, err := store.LatestIndexBuilds(cmd.Context())
	if err != nil {
		return snap, fmt.Errorf("load index builds: %w", err)
	}
	for _, b := range builds {
		snap.Indexes = append(snap.Indexes, statusIndex{
			Camera:     b.Camera,
			Outcome:    string(b.Outcome),
			Records:    b.RecordCount,
			Path:       b.IndexPath,
			SizeBytes:  fileutil.FileSize(b.IndexPath),
			Detail:     b.Detail,
			RecordedAt: b.RecordedAt,
		})
	}

	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return snap, fmt.Errorf("load runs: %w", err)
	}
	for _, r := range runs {
		failures, err := store.ExtractFailures(cmd.Context(), r.ID)
		if err != nil {
			return snap, fmt.Errorf("load extract failures: %w", err)
		}
		snap.Runs = append(snap.Runs, statusRun{
			ID:         r.ID,
			Stage:      r.Stage,
			Status:     string(r.Status),
			Reference:  r.ReferenceCamera,
			Threshold:  r.Threshold,
			Summary:    r.Summary,
			Error:      r.ErrorMessage,
			Failures:   len(failures),
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		})
	}
	return snap, nil
}

func renderStatus(out io.Writer, snap statusSnapshot, p painter) {
	refTone := toneNeutral
	if strings.TrimSpace(snap.Reference) == "" {
		refTone = toneWarn
	}
	lines := []string{
		p.section("Configuration"),
		p.field("Config", snap.ConfigPath, toneNeutral),
		p.field("Reference camera", valueOr(snap.Reference, "not set"), refTone),
		p.field("Threshold", formatCount(snap.Threshold), toneNeutral),
		p.field("Frame extraction", yesNo(snap.Extract), toneNeutral),
		"",
		p.section("Environment"),
	}
	for _, c := range snap.Checks {
		lines = append(lines, p.check(c.Name, c.Passed, c.Detail))
	}
	lines = append(lines, "", p.section("Indexes"))
	if len(snap.Indexes) == 0 {
		lines = append(lines, "  No index builds recorded")
	} else {
		rows := make([][]string, 0, len(snap.Indexes))
		for _, ix := range snap.Indexes {
			size := "-"
			if ix.SizeBytes > 0 {
				size = humanize.Bytes(uint64(ix.SizeBytes))
			}
			outcome := p.paint(outcomeTone(ledger.BuildOutcome(ix.Outcome)), ix.Outcome)
			rows = append(rows, []string{ix.Camera, outcome, formatCount(ix.Records), size, humanize.Time(ix.RecordedAt)})
		}
		lines = append(lines, renderTable(
			[]column{textCol("Camera"), textCol("Outcome"), numCol("Records"), numCol("Size"), textCol("Recorded")},
			rows,
		))
	}

	lines = append(lines, "", p.section("Recent runs"))
	if len(snap.Runs) == 0 {
		lines = append(lines, "  No runs recorded")
	} else {
		rows := make([][]string, 0, len(snap.Runs))
		for _, r := range snap.Runs {
			duration := "-"
			if !r.FinishedAt.IsZero() {
				duration = formatElapsed(r.FinishedAt.Sub(r.StartedAt))
			}
			note := r.Summary
			if r.Error != "" {
				note = r.Error
			}
			if r.Failures > 0 {
				note = fmt.Sprintf("%s (%s frames failed)", note, formatCount(r.Failures))
			}
			status := p.paint(runTone(ledger.RunStatus(r.Status)), r.Status)
			rows = append(rows, []string{shortID(r.ID), r.Stage, status, humanize.Time(r.StartedAt), duration, note})
		}
		lines = append(lines, renderTable(
			[]column{textCol("Run"), textCol("Stage"), textCol("Status"), textCol("Started"), numCol("Duration"), textCol("Summary")},
			rows,
		))
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
