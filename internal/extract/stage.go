package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"camsync/internal/fileutil"
	"camsync/internal/ledger"
	"camsync/internal/logging"
	"camsync/internal/services"
	"camsync/internal/syncer"
	"camsync/internal/timecode"
	"camsync/internal/workerpool"
)

// FailureRecorder persists extraction failures. *ledger.Store satisfies it.
type FailureRecorder interface {
	RecordExtractFailure(ctx context.Context, failure ledger.ExtractFailure) error
}

// Failure is one frame that could not be written.
type Failure struct {
	Reference int64
	Camera    string
	Frame     int64
	Err       error
}

// Report summarizes an extraction run.
type Report struct {
	Written  int
	Skipped  int
	Failures []Failure
	Elapsed  time.Duration
}

// Failed returns the number of failed frames.
func (r Report) Failed() int {
	return len(r.Failures)
}

// Stage writes manifest frames to disk.
type Stage struct {
	extractor FrameExtractor
	outputDir string
	format    string
	workers   int
	recorder  FailureRecorder
	logger    *slog.Logger
}

// NewStage returns a Stage writing images in format under outputDir. recorder
// may be nil.
func NewStage(extractor FrameExtractor, outputDir, format string, workers int, recorder FailureRecorder, logger *slog.Logger) *Stage {
	return &Stage{
		extractor: extractor,
		outputDir: outputDir,
		format:    format,
		workers:   workers,
		recorder:  recorder,
		logger:    logging.NewComponentLogger(logger, "extractor"),
	}
}

type item struct {
	reference int64
	camera    string
	match     timecode.Match
	path      string
}

// Run extracts every (reference timecode, camera) entry of m. Entries whose
// artifact exists are skipped. Failures are logged, recorded and returned in
// the report; only cancellation or a ledger error is returned as an error.
func (s *Stage) Run(ctx context.Context, m *syncer.Manifest) (Report, error) {
	started := time.Now()
	ctx = services.WithStage(ctx, "extract")
	logger := logging.WithContext(ctx, s.logger)
	var report Report

	var pending []item
	for _, set := range m.Sets {
		for _, cam := range set.Cameras() {
			match := set.Matches[cam]
			path := ArtifactPath(s.outputDir, set.Reference, cam, match, s.format)
			it := item{reference: set.Reference, camera: cam, match: match, path: path}
			exists, err := fileutil.Exists(path)
			if err != nil {
				err = services.Wrap(services.ErrValidation, "extract", "check artifact", path, err)
				if recErr := s.fail(ctx, logger, &report, it, err, "remove or fix the entry blocking the artifact path"); recErr != nil {
					return report, recErr
				}
				continue
			}
			if exists {
				report.Skipped++
				continue
			}
			pending = append(pending, it)
		}
	}

	workers := workerpool.Size(s.workers, len(pending))
	logger.Info("extracting synchronized frames",
		logging.Int("pending", len(pending)),
		logging.Int("skipped", report.Skipped),
		logging.Int("workers", workers),
		logging.String("output_dir", s.outputDir),
		logging.String("format", s.format),
	)

	err := workerpool.Run(ctx, workers, pending,
		func(ctx context.Context, it item) (struct{}, error) {
			return struct{}{}, s.extractOne(ctx, it)
		},
		func(res workerpool.Result[item, struct{}]) error {
			if res.Err == nil {
				report.Written++
				return nil
			}
			if ctx.Err() != nil && errors.Is(res.Err, ctx.Err()) {
				return nil
			}
			return s.fail(ctx, logger, &report, res.Item, res.Err, "check the camera video and ffmpeg output")
		},
	)
	report.Elapsed = time.Since(started)
	if err != nil {
		return report, err
	}

	logger.Info("frame extraction finished",
		logging.String(logging.FieldEventType, "extract_finished"),
		logging.Int("written", report.Written),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed()),
		logging.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (s *Stage) extractOne(ctx context.Context, it item) error {
	img, err := s.extractor.Extract(services.WithCamera(ctx, it.camera), it.camera, it.match.Frame)
	if err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(it.path, 0o644, func(w io.Writer) error {
		return Encode(w, img, s.format)
	}); err != nil {
		return services.Wrap(services.ErrExternalTool, "extract", "write image", it.path, err)
	}
	return nil
}

// fail adds a failed entry to the report, logs it and records it in the
// ledger.
func (s *Stage) fail(ctx context.Context, logger *slog.Logger, report *Report, it item, cause error, hint string) error {
	report.Failures = append(report.Failures, Failure{Reference: it.reference, Camera: it.camera, Frame: it.match.Frame, Err: cause})
	logging.WarnWithContext(logger, "frame extraction failed", "frame_extract_failed",
		logging.String(logging.FieldCamera, it.camera),
		logging.Int64("reference_timecode", it.reference),
		logging.Int64("frame", it.match.Frame),
		logging.String(logging.FieldErrorKind, services.ErrorKind(cause)),
		logging.String(logging.FieldErrorHint, hint),
		logging.Error(cause),
	)
	return s.record(ctx, it, cause)
}

func (s *Stage) record(ctx context.Context, it item, cause error) error {
	if s.recorder == nil {
		return nil
	}
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		return nil
	}
	if err := s.recorder.RecordExtractFailure(ctx, ledger.ExtractFailure{
		RunID:             runID,
		ReferenceTimecode: it.reference,
		Camera:            it.camera,
		Frame:             it.match.Frame,
		Error:             cause.Error(),
	}); err != nil {
		return fmt.Errorf("record extract failure: %w", err)
	}
	return nil
}
