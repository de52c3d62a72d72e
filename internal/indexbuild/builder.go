package indexbuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"camsync/internal/dataset"
	"camsync/internal/fileutil"
	"camsync/internal/ledger"
	"camsync/internal/logging"
	"camsync/internal/services"
	"camsync/internal/timecode"
	"camsync/internal/workerpool"
)

// Recorder persists build outcomes. *ledger.Store satisfies it.
type Recorder interface {
	RecordIndexBuild(ctx context.Context, build ledger.IndexBuild) error
}

// Outcome describes what happened to one camera.
type Outcome struct {
	Camera  string
	Status  ledger.BuildOutcome
	Records int
	Path    string
	Err     error
	Elapsed time.Duration
}

// Builder builds and persists timecode indexes.
type Builder struct {
	dir      string
	workers  int
	recorder Recorder
	logger   *slog.Logger
}

// NewBuilder returns a Builder writing into dir with at most workers
// concurrent builds. recorder may be nil.
func NewBuilder(dir string, workers int, recorder Recorder, logger *slog.Logger) *Builder {
	return &Builder{
		dir:      dir,
		workers:  workers,
		recorder: recorder,
		logger:   logging.NewComponentLogger(logger, "index-builder"),
	}
}

// Dir returns the index directory.
func (b *Builder) Dir() string {
	return b.dir
}

// BuildAll builds every camera and returns outcomes sorted by camera id. Only
// cancellation or a ledger failure is returned as an error; per-camera
// problems are reported in the outcomes.
func (b *Builder) BuildAll(ctx context.Context, cameras []dataset.Camera) ([]Outcome, error) {
	ctx = services.WithStage(ctx, "index")
	logger := logging.WithContext(ctx, b.logger)
	workers := workerpool.Size(b.workers, len(cameras))
	logger.Info("building timecode indexes",
		logging.Int("cameras", len(cameras)),
		logging.Int("workers", workers),
		logging.String("index_dir", b.dir),
	)

	outcomes := make([]Outcome, 0, len(cameras))
	err := workerpool.Run(ctx, workers, cameras,
		func(ctx context.Context, cam dataset.Camera) (Outcome, error) {
			return b.Build(ctx, cam), nil
		},
		func(res workerpool.Result[dataset.Camera, Outcome]) error {
			outcomes = append(outcomes, res.Value)
			return b.record(ctx, res.Value)
		},
	)
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Camera < outcomes[j].Camera })
	if err != nil {
		return outcomes, err
	}

	counts := Summarize(outcomes)
	logger.Info("timecode indexes ready",
		logging.Int("built", counts[ledger.OutcomeBuilt]),
		logging.Int("skipped", counts[ledger.OutcomeSkipped]),
		logging.Int("failed", counts[ledger.OutcomeFailed]),
		logging.Int("missing", counts[ledger.OutcomeMissing]),
	)
	return outcomes, nil
}

// Build processes a single camera.
func (b *Builder) Build(ctx context.Context, cam dataset.Camera) (out Outcome) {
	started := time.Now()
	ctx = services.WithCamera(ctx, cam.ID)
	logger := logging.WithContext(ctx, b.logger)
	path := timecode.Path(b.dir, cam.ID)
	out = Outcome{Camera: cam.ID, Path: path}
	defer func() { out.Elapsed = time.Since(started) }()

	exists, err := fileutil.Exists(path)
	if err != nil {
		out.Status = ledger.OutcomeFailed
		out.Err = services.Wrap(services.ErrValidation, "index", "check existing index", path, err)
		b.logFailure(logger, out)
		return out
	}
	if exists {
		out.Status = ledger.OutcomeSkipped
		logger.Info("index already built; skipping",
			logging.String(logging.FieldEventType, "index_build_skipped"),
			logging.String("index_path", path),
		)
		return out
	}

	if cam.LogErr != nil {
		out.Status = ledger.OutcomeMissing
		out.Err = cam.LogErr
		b.logFailure(logger, out)
		return out
	}

	records, err := timecode.ReadLogFile(cam.LogPath, cam.ID)
	if err == nil {
		var ix *timecode.Index
		if ix, err = timecode.Build(cam.ID, records); err == nil {
			if err = ctx.Err(); err == nil {
				err = ix.WriteFile(path)
			}
		}
	}
	if err != nil {
		out.Status = classify(err)
		out.Err = err
		b.logFailure(logger, out)
		return out
	}

	out.Status = ledger.OutcomeBuilt
	out.Records = len(records)
	logger.Info("index built",
		logging.String(logging.FieldEventType, "index_built"),
		logging.Int("records", len(records)),
		logging.String("index_path", path),
		logging.Duration("elapsed", time.Since(started)),
	)
	return out
}

func classify(err error) ledger.BuildOutcome {
	if errors.Is(err, services.ErrNotFound) {
		return ledger.OutcomeMissing
	}
	return ledger.OutcomeFailed
}

func (b *Builder) logFailure(logger *slog.Logger, out Outcome) {
	hint := "fix or remove the malformed log lines, then rerun the build"
	if out.Status == ledger.OutcomeMissing {
		hint = "check dataset.sequence_index and dataset.log_extension for this camera"
	}
	logging.WarnWithContext(logger, "camera excluded from index build", "index_build_"+string(out.Status),
		logging.String(logging.FieldErrorKind, services.ErrorKind(out.Err)),
		logging.String(logging.FieldErrorHint, hint),
		logging.Error(out.Err),
	)
}

func (b *Builder) record(ctx context.Context, out Outcome) error {
	if b.recorder == nil {
		return nil
	}
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		return nil
	}
	detail := ""
	if out.Err != nil {
		detail = out.Err.Error()
	}
	if err := b.recorder.RecordIndexBuild(ctx, ledger.IndexBuild{
		RunID:       runID,
		Camera:      out.Camera,
		Outcome:     out.Status,
		RecordCount: out.Records,
		IndexPath:   out.Path,
		Detail:      detail,
	}); err != nil {
		return fmt.Errorf("record outcome for %s: %w", out.Camera, err)
	}
	return nil
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) map[ledger.BuildOutcome]int {
	counts := make(map[ledger.BuildOutcome]int, 4)
	for _, out := range outcomes {
		counts[out.Status]++
	}
	return counts
}
