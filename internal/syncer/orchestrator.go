package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"camsync/internal/logging"
	"camsync/internal/services"
	"camsync/internal/timecode"
	"camsync/internal/workerpool"
)

// batchSize is the number of reference records whose queries are scheduled
// together. Cancellation is checked between batches.
const batchSize = 256

// Request describes one synchronization.
type Request struct {
	// Reference is the reference camera id.
	Reference string
	// Records is the reference camera's log in order.
	Records []timecode.Record
	// Indexes holds the built indexes of the other cameras. An entry for the
	// reference camera is ignored.
	Indexes       map[string]*timecode.Index
	Threshold     int64
	StartTimecode int64
}

// Key returns the manifest key of the request.
func (r Request) Key() Key {
	return Key{Reference: r.Reference, Threshold: r.Threshold, StartTimecode: r.StartTimecode}
}

// Result reports what a synchronization produced.
type Result struct {
	Manifest *Manifest
	Path     string
	// Reused is true when an existing manifest was loaded without querying.
	Reused bool
	// Resumed is the number of sets taken from a checkpoint.
	Resumed int
	// Queries is the number of index lookups issued.
	Queries int64
	Elapsed time.Duration
}

// Orchestrator runs synchronizations and persists their manifests.
type Orchestrator struct {
	dir     string
	workers int
	logger  *slog.Logger

	// onBatch is called with the manifest length after each batch; tests use
	// it to interrupt a run between batches.
	onBatch func(completed int)
}

// NewOrchestrator returns an Orchestrator persisting manifests in dir and
// running at most workers concurrent queries.
func NewOrchestrator(dir string, workers int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		dir:     dir,
		workers: workers,
		logger:  logging.NewComponentLogger(logger, "syncer"),
	}
}

type query struct {
	set       int
	reference int64
	camera    string
	index     *timecode.Index
}

// Run produces the manifest for req, loading it from disk when it already
// exists. On cancellation the completed prefix is checkpointed and the
// context error is returned together with the partial result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	ctx = services.WithStage(ctx, "sync")
	logger := logging.WithContext(ctx, o.logger)
	key := req.Key()
	finalPath := ManifestPath(o.dir, key)
	partialPath := PartialPath(o.dir, key)
	res := Result{Path: finalPath}

	if key.Reference == "" {
		return res, services.Wrap(services.ErrConfiguration, "sync", "validate request", "reference camera is required", nil)
	}

	existing, err := ReadManifest(finalPath, key)
	switch {
	case err == nil:
		res.Manifest = existing
		res.Reused = true
		res.Elapsed = time.Since(started)
		logger.Info("manifest already exists; reusing",
			logging.String(logging.FieldEventType, "manifest_reused"),
			logging.String("manifest", finalPath),
			logging.Int("sets", existing.Len()),
		)
		return res, nil
	case !errors.Is(err, services.ErrNotFound):
		return res, services.Wrap(services.ErrConfiguration, "sync", "load manifest",
			"existing manifest is unreadable; delete it to resynchronize", err)
	}

	refs := timecode.FilterFrom(req.Records, req.StartTimecode)
	if err := checkUnique(refs); err != nil {
		return res, err
	}

	cameras := make([]string, 0, len(req.Indexes))
	for cam, ix := range req.Indexes {
		if cam == key.Reference || ix.State() != timecode.StateBuilt {
			continue
		}
		cameras = append(cameras, cam)
	}
	sort.Strings(cameras)

	manifest := &Manifest{Key: key, Sets: make([]Set, 0, len(refs))}
	manifest.Sets = append(manifest.Sets, o.resume(logger, partialPath, key, refs, cameras)...)
	res.Resumed = len(manifest.Sets)

	logger.Info("synchronizing cameras",
		logging.String("reference", key.Reference),
		logging.Int("reference_records", len(refs)),
		logging.Int("cameras", len(cameras)),
		logging.Int64("threshold", key.Threshold),
		logging.Int64("start_timecode", key.StartTimecode),
		logging.Int("resumed_sets", res.Resumed),
	)

	var queries atomic.Int64
	for start := res.Resumed; start < len(refs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return o.checkpoint(logger, res, manifest, partialPath, cameras, &queries, started, err)
		}
		end := min(start+batchSize, len(refs))
		batch, err := o.queryBatch(ctx, refs[start:end], cameras, req.Indexes, key.Threshold, &queries)
		if err != nil {
			return o.checkpoint(logger, res, manifest, partialPath, cameras, &queries, started, err)
		}
		manifest.Sets = append(manifest.Sets, batch...)
		if o.onBatch != nil {
			o.onBatch(manifest.Len())
		}
	}

	if err := WriteManifest(finalPath, manifest); err != nil {
		return res, err
	}
	if err := os.Remove(partialPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove checkpoint", logging.String("checkpoint", partialPath), logging.Error(err))
	}

	res.Manifest = manifest
	res.Queries = queries.Load()
	res.Elapsed = time.Since(started)
	logger.Info("manifest written",
		logging.String(logging.FieldEventType, "manifest_written"),
		logging.String("manifest", finalPath),
		logging.Int("sets", manifest.Len()),
		logging.Int("matches", manifest.MatchCount()),
		logging.Int64("queries", res.Queries),
		logging.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// queryBatch fills one set per reference record. Every (record, camera) pair
// is an independent unit on the pool; reduce merges matches by camera key.
func (o *Orchestrator) queryBatch(ctx context.Context, refs []timecode.Record, cameras []string, indexes map[string]*timecode.Index, threshold int64, counter *atomic.Int64) ([]Set, error) {
	sets := make([]Set, len(refs))
	for i, ref := range refs {
		sets[i] = Set{Reference: ref.Timecode, Matches: make(map[string]timecode.Match)}
	}
	if len(cameras) == 0 {
		return sets, nil
	}

	items := make([]query, 0, len(refs)*len(cameras))
	for i, ref := range refs {
		for _, cam := range cameras {
			items = append(items, query{set: i, reference: ref.Timecode, camera: cam, index: indexes[cam]})
		}
	}

	type answer struct {
		match timecode.Match
		ok    bool
	}
	err := workerpool.Run(ctx, workerpool.Size(o.workers, len(items)), items,
		func(_ context.Context, q query) (answer, error) {
			counter.Add(1)
			m, ok := q.index.Nearest(q.reference, threshold)
			return answer{match: m, ok: ok}, nil
		},
		func(r workerpool.Result[query, answer]) error {
			if r.Value.ok {
				sets[r.Item.set].Matches[r.Item.camera] = r.Value.match
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return sets, nil
}

// resume returns the checkpointed prefix when it matches the current
// reference sequence and camera set, and nothing otherwise.
func (o *Orchestrator) resume(logger *slog.Logger, path string, key Key, refs []timecode.Record, cameras []string) []Set {
	checkpointed, partial, err := readCheckpoint(path, key)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			logging.WarnWithContext(logger, "ignoring unreadable checkpoint", "checkpoint_discarded",
				logging.String("checkpoint", path),
				logging.Error(err),
			)
		}
		return nil
	}
	if !slices.Equal(checkpointed, cameras) {
		logging.WarnWithContext(logger, "ignoring checkpoint taken with different cameras", "checkpoint_discarded",
			logging.String("checkpoint", path),
			logging.String("checkpoint_cameras", strings.Join(checkpointed, ",")),
			logging.String("cameras", strings.Join(cameras, ",")),
		)
		return nil
	}
	if partial.Len() > len(refs) {
		logging.WarnWithContext(logger, "ignoring checkpoint longer than reference log", "checkpoint_discarded",
			logging.String("checkpoint", path),
		)
		return nil
	}
	for i, set := range partial.Sets {
		if set.Reference != refs[i].Timecode {
			logging.WarnWithContext(logger, "ignoring checkpoint that does not match reference log", "checkpoint_discarded",
				logging.String("checkpoint", path),
				logging.Int("position", i),
			)
			return nil
		}
	}
	logger.Info("resuming from checkpoint",
		logging.String(logging.FieldEventType, "checkpoint_resumed"),
		logging.String("checkpoint", path),
		logging.Int("sets", partial.Len()),
	)
	return partial.Sets
}

func (o *Orchestrator) checkpoint(logger *slog.Logger, res Result, manifest *Manifest, path string, cameras []string, queries *atomic.Int64, started time.Time, cause error) (Result, error) {
	res.Manifest = manifest
	res.Path = path
	res.Queries = queries.Load()
	res.Elapsed = time.Since(started)
	if manifest.Len() > 0 {
		if err := writeCheckpoint(path, cameras, manifest); err != nil {
			return res, errors.Join(cause, err)
		}
	}
	logging.WarnWithContext(logger, "synchronization interrupted; checkpoint saved", "sync_interrupted",
		logging.String("checkpoint", path),
		logging.Int("sets", manifest.Len()),
		logging.String(logging.FieldErrorHint, "rerun with the same configuration to resume"),
		logging.Error(cause),
	)
	return res, fmt.Errorf("synchronize %s: %w", manifest.Key.Reference, cause)
}

func checkUnique(refs []timecode.Record) error {
	seen := make(map[int64]struct{}, len(refs))
	for _, rec := range refs {
		if _, dup := seen[rec.Timecode]; dup {
			return services.Wrap(services.ErrConfiguration, "sync", "validate reference",
				fmt.Sprintf("reference timecode %d appears more than once", rec.Timecode), nil)
		}
		seen[rec.Timecode] = struct{}{}
	}
	return nil
}
