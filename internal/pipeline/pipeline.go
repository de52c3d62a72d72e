package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"camsync/internal/config"
	"camsync/internal/dataset"
	"camsync/internal/extract"
	"camsync/internal/indexbuild"
	"camsync/internal/ledger"
	"camsync/internal/logging"
	"camsync/internal/services"
	"camsync/internal/syncer"
	"camsync/internal/timecode"
)

// Stage names recorded in the ledger.
const (
	StageRun     = "run"
	StageIndex   = "index"
	StageSync    = "sync"
	StageExtract = "extract"
)

// ErrLocked is returned when another camsync process holds the work
// directory lock.
var ErrLocked = errors.New("work directory is locked by another camsync process")

// Pipeline runs camsync stages against one configuration.
type Pipeline struct {
	cfg       *config.Config
	store     *ledger.Store
	logger    *slog.Logger
	extractor extract.FrameExtractor
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithExtractor replaces the ffmpeg extractor built from the dataset.
func WithExtractor(e extract.FrameExtractor) Option {
	return func(p *Pipeline) {
		p.extractor = e
	}
}

// New returns a Pipeline recording runs in store.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run builds indexes, synchronizes against the reference camera and, when
// enabled, extracts the matched frames.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	return p.execute(ctx, StageRun, func(ctx context.Context, rep *Report) error {
		cameras, err := p.discover(rep)
		if err != nil {
			return err
		}
		if err := p.build(ctx, rep, cameras); err != nil {
			return err
		}
		manifest, err := p.sync(ctx, rep, cameras)
		if err != nil {
			return err
		}
		if !p.cfg.Extract.Enabled {
			return nil
		}
		return p.extract(ctx, rep, cameras, manifest)
	})
}

// BuildIndexes builds the index of every discovered camera.
func (p *Pipeline) BuildIndexes(ctx context.Context) (Report, error) {
	return p.execute(ctx, StageIndex, func(ctx context.Context, rep *Report) error {
		cameras, err := p.discover(rep)
		if err != nil {
			return err
		}
		return p.build(ctx, rep, cameras)
	})
}

// Sync synchronizes using the indexes already on disk.
func (p *Pipeline) Sync(ctx context.Context) (Report, error) {
	return p.execute(ctx, StageSync, func(ctx context.Context, rep *Report) error {
		cameras, err := p.discover(rep)
		if err != nil {
			return err
		}
		_, err = p.sync(ctx, rep, cameras)
		return err
	})
}

// Extract writes the frames of the manifest matching the configured sync
// parameters. The manifest must already exist.
func (p *Pipeline) Extract(ctx context.Context) (Report, error) {
	return p.execute(ctx, StageExtract, func(ctx context.Context, rep *Report) error {
		cameras, err := p.discover(rep)
		if err != nil {
			return err
		}
		key := p.key()
		path := syncer.ManifestPath(p.cfg.ManifestDir(), key)
		manifest, err := syncer.ReadManifest(path, key)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return services.Wrap(services.ErrConfiguration, StageExtract, "load manifest",
					"no manifest for the configured sync parameters; run 'camsync sync' first", err)
			}
			return services.Wrap(services.ErrConfiguration, StageExtract, "load manifest", "manifest is unreadable", err)
		}
		rep.Sync = &syncer.Result{Manifest: manifest, Path: path, Reused: true}
		return p.extract(ctx, rep, cameras, manifest)
	})
}

func (p *Pipeline) key() syncer.Key {
	return syncer.Key{
		Reference:     p.cfg.Sync.ReferenceCamera,
		Threshold:     p.cfg.Sync.Threshold,
		StartTimecode: p.cfg.Sync.StartTimecode,
	}
}

// execute wraps fn with the work directory lock and a ledger run.
func (p *Pipeline) execute(ctx context.Context, stage string, fn func(context.Context, *Report) error) (Report, error) {
	started := time.Now()
	rep := Report{Stage: stage}

	if err := p.cfg.EnsureDirectories(); err != nil {
		return rep, services.Wrap(services.ErrConfiguration, stage, "prepare directories", "", err)
	}
	lock := flock.New(p.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return rep, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return rep, services.Wrap(services.ErrConfiguration, stage, "acquire lock", p.cfg.LockPath(), ErrLocked)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release work directory lock", logging.String("lock", p.cfg.LockPath()), logging.Error(err))
		}
	}()

	run, err := p.store.BeginRun(context.WithoutCancel(ctx), ledger.Run{
		ID:              uuid.NewString(),
		Stage:           stage,
		ReferenceCamera: p.cfg.Sync.ReferenceCamera,
		Threshold:       p.cfg.Sync.Threshold,
		StartTimecode:   p.cfg.Sync.StartTimecode,
	})
	if err != nil {
		return rep, fmt.Errorf("record run start: %w", err)
	}
	rep.RunID = run.ID
	ctx = services.WithStage(services.WithRunID(ctx, run.ID), stage)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.String("reference", p.cfg.Sync.ReferenceCamera),
		logging.Int64("threshold", p.cfg.Sync.Threshold),
	)

	runErr := fn(ctx, &rep)
	rep.Elapsed = time.Since(started)

	status := ledger.RunCompleted
	errMsg := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = ledger.RunCancelled
		errMsg = runErr.Error()
	default:
		status = ledger.RunFailed
		errMsg = runErr.Error()
	}

	// Run rows are written even when ctx is already cancelled.
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run.ID, status, rep.Summary(), errMsg); err != nil {
		logger.Error("failed to record run completion", logging.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("record run completion: %w", err)
		}
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String("status", string(status)),
		logging.String("summary", rep.Summary()),
		logging.Duration("elapsed", rep.Elapsed),
	}
	if runErr != nil {
		attrs = append(attrs,
			logging.String(logging.FieldErrorKind, services.ErrorKind(runErr)),
			logging.Error(runErr),
		)
		logger.Error("run finished", logging.Args(attrs...)...)
	} else {
		logger.Info("run finished", logging.Args(attrs...)...)
	}
	return rep, runErr
}

func (p *Pipeline) discover(rep *Report) ([]dataset.Camera, error) {
	cameras, err := dataset.Discover(dataset.OptionsFromConfig(p.cfg))
	if err != nil {
		return nil, err
	}
	rep.Cameras = dataset.IDs(cameras)
	if _, ok := dataset.Find(cameras, p.cfg.Sync.ReferenceCamera); !ok {
		return nil, services.Wrap(services.ErrConfiguration, "dataset", "find reference",
			fmt.Sprintf("reference camera %q not found under %s", p.cfg.Sync.ReferenceCamera, p.cfg.Paths.DataDir), nil)
	}
	return cameras, nil
}

func (p *Pipeline) build(ctx context.Context, rep *Report, cameras []dataset.Camera) error {
	builder := indexbuild.NewBuilder(p.cfg.IndexDir(), p.cfg.Workers.Build, p.store, p.logger)
	outcomes, err := builder.BuildAll(ctx, cameras)
	rep.Builds = outcomes
	if err != nil {
		return err
	}
	ref := p.cfg.Sync.ReferenceCamera
	idx := slices.IndexFunc(outcomes, func(o indexbuild.Outcome) bool { return o.Camera == ref })
	if idx < 0 {
		return services.Wrap(services.ErrConfiguration, StageIndex, "check reference", "reference camera "+ref+" was not built", nil)
	}
	out := outcomes[idx]
	if out.Status != ledger.OutcomeBuilt && out.Status != ledger.OutcomeSkipped {
		return services.Wrap(services.ErrConfiguration, StageIndex, "check reference",
			fmt.Sprintf("reference camera %s index %s", ref, out.Status), out.Err)
	}
	return nil
}

func (p *Pipeline) sync(ctx context.Context, rep *Report, cameras []dataset.Camera) (*syncer.Manifest, error) {
	ref, _ := dataset.Find(cameras, p.cfg.Sync.ReferenceCamera)
	if ref.LogErr != nil {
		return nil, services.Wrap(services.ErrConfiguration, StageSync, "read reference log", ref.ID, ref.LogErr)
	}
	records, err := timecode.ReadLogFile(ref.LogPath, ref.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, StageSync, "read reference log", ref.ID, err)
	}

	others := make([]string, 0, len(cameras))
	for _, cam := range cameras {
		if cam.ID != ref.ID {
			others = append(others, cam.ID)
		}
	}
	indexes, unloaded, err := indexbuild.LoadAll(ctx, p.cfg.IndexDir(), others, p.cfg.Workers.Query, p.logger)
	if err != nil {
		return nil, err
	}
	rep.Unloaded = unloaded

	orchestrator := syncer.NewOrchestrator(p.cfg.ManifestDir(), p.cfg.Workers.Query, p.logger)
	key := p.key()
	res, err := orchestrator.Run(ctx, syncer.Request{
		Reference:     key.Reference,
		Records:       records,
		Indexes:       indexes,
		Threshold:     key.Threshold,
		StartTimecode: key.StartTimecode,
	})
	rep.Sync = &res
	if err != nil {
		return nil, err
	}
	return res.Manifest, nil
}

func (p *Pipeline) extract(ctx context.Context, rep *Report, cameras []dataset.Camera, manifest *syncer.Manifest) error {
	extractor := p.extractor
	if extractor == nil {
		videos := make(map[string]string, len(cameras))
		for _, cam := range cameras {
			if cam.VideoErr == nil {
				videos[cam.ID] = cam.VideoPath
			}
		}
		timeout := time.Duration(p.cfg.Extract.TimeoutSeconds) * time.Second
		extractor = extract.NewFFmpeg(p.cfg.FFmpegBinary(), videos, timeout)
	}
	stage := extract.NewStage(extractor, p.cfg.FrameDir(), p.cfg.Extract.ImageFormat, p.cfg.Workers.Extract, p.store, p.logger)
	res, err := stage.Run(ctx, manifest)
	rep.Extract = &res
	return err
}
