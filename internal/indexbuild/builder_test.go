package indexbuild_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"camsync/internal/dataset"
	"camsync/internal/indexbuild"
	"camsync/internal/ledger"
	"camsync/internal/logging"
	"camsync/internal/services"
	"camsync/internal/testsupport"
	"camsync/internal/timecode"
)

type memoryRecorder struct {
	mu     sync.Mutex
	builds []ledger.IndexBuild
}

func (m *memoryRecorder) RecordIndexBuild(_ context.Context, b ledger.IndexBuild) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds = append(m.builds, b)
	return nil
}

func discover(t *testing.T, root string) []dataset.Camera {
	t.Helper()
	cameras, err := dataset.Discover(dataset.Options{
		Root:           root,
		CameraFilter:   "cam",
		LogExtension:   ".txt",
		VideoExtension: ".mp4",
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return cameras
}

func outcomeFor(t *testing.T, outcomes []indexbuild.Outcome, camera string) indexbuild.Outcome {
	t.Helper()
	for _, out := range outcomes {
		if out.Camera == camera {
			return out
		}
	}
	t.Fatalf("no outcome for %s", camera)
	return indexbuild.Outcome{}
}

func TestBuildAllOutcomes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.AddCamera(t, cfg, "cam1", 100, 200, 300)
	testsupport.AddCamera(t, cfg, "cam2", 105, 310)
	testsupport.WriteText(t, filepath.Join(cfg.Paths.DataDir, "cam3", "a.txt"), "x_10_0\nx_10_1\n")
	testsupport.WriteText(t, filepath.Join(cfg.Paths.DataDir, "cam4", "a.mp4"), "video")

	recorder := &memoryRecorder{}
	builder := indexbuild.NewBuilder(cfg.IndexDir(), 2, recorder, logging.NewNop())
	ctx := services.WithRunID(context.Background(), "run-1")

	outcomes, err := builder.BuildAll(ctx, discover(t, cfg.Paths.DataDir))
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(outcomes) != 4 || outcomes[0].Camera != "cam1" || outcomes[3].Camera != "cam4" {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}

	cam1 := outcomeFor(t, outcomes, "cam1")
	if cam1.Status != ledger.OutcomeBuilt || cam1.Records != 3 {
		t.Fatalf("cam1 outcome %+v", cam1)
	}
	cam3 := outcomeFor(t, outcomes, "cam3")
	if cam3.Status != ledger.OutcomeFailed || !errors.Is(cam3.Err, services.ErrValidation) {
		t.Fatalf("cam3 outcome %+v", cam3)
	}
	cam4 := outcomeFor(t, outcomes, "cam4")
	if cam4.Status != ledger.OutcomeMissing || !errors.Is(cam4.Err, services.ErrNotFound) {
		t.Fatalf("cam4 outcome %+v", cam4)
	}
	if _, err := os.Stat(timecode.Path(cfg.IndexDir(), "cam3")); !os.IsNotExist(err) {
		t.Fatalf("failed camera must not leave an index file: %v", err)
	}

	if len(recorder.builds) != 4 {
		t.Fatalf("expected 4 ledger rows, got %d", len(recorder.builds))
	}
	for _, b := range recorder.builds {
		if b.RunID != "run-1" {
			t.Fatalf("ledger row missing run id: %+v", b)
		}
	}

	counts := indexbuild.Summarize(outcomes)
	if counts[ledger.OutcomeBuilt] != 2 || counts[ledger.OutcomeFailed] != 1 || counts[ledger.OutcomeMissing] != 1 {
		t.Fatalf("unexpected summary %v", counts)
	}
}

func TestBuildAllSkipsExisting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.AddCamera(t, cfg, "cam1", 100, 200)
	builder := indexbuild.NewBuilder(cfg.IndexDir(), 1, nil, nil)
	ctx := context.Background()

	if _, err := builder.BuildAll(ctx, discover(t, cfg.Paths.DataDir)); err != nil {
		t.Fatal(err)
	}
	path := timecode.Path(cfg.IndexDir(), "cam1")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// A changed log must not trigger a rebuild while the index exists.
	testsupport.AddCamera(t, cfg, "cam1", 1, 2, 3, 4)
	outcomes, err := builder.BuildAll(ctx, discover(t, cfg.Paths.DataDir))
	if err != nil {
		t.Fatal(err)
	}
	if outcomes[0].Status != ledger.OutcomeSkipped {
		t.Fatalf("expected skipped, got %+v", outcomes[0])
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("existing index was overwritten")
	}
}

func TestBuildAllWithLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.AddCamera(t, cfg, "cam1", 5, 6)
	store := testsupport.MustOpenLedger(t, cfg)
	run := testsupport.BeginRun(t, store, "index")

	builder := indexbuild.NewBuilder(cfg.IndexDir(), 0, store, nil)
	ctx := services.WithRunID(context.Background(), run.ID)
	if _, err := builder.BuildAll(ctx, discover(t, cfg.Paths.DataDir)); err != nil {
		t.Fatal(err)
	}
	builds, err := store.IndexBuilds(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(builds) != 1 || builds[0].Outcome != ledger.OutcomeBuilt || builds[0].RecordCount != 2 {
		t.Fatalf("unexpected ledger rows %+v", builds)
	}
}

func TestBuildAllCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.AddCamera(t, cfg, "cam1", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	builder := indexbuild.NewBuilder(cfg.IndexDir(), 1, nil, nil)
	if _, err := builder.BuildAll(ctx, discover(t, cfg.Paths.DataDir)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestLoadAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.AddCamera(t, cfg, "cam1", 100, 200)
	testsupport.AddCamera(t, cfg, "cam2", 105)
	builder := indexbuild.NewBuilder(cfg.IndexDir(), 2, nil, nil)
	ctx := context.Background()
	if _, err := builder.BuildAll(ctx, discover(t, cfg.Paths.DataDir)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(timecode.Path(cfg.IndexDir(), "cam2"), []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, skipped, err := indexbuild.LoadAll(ctx, cfg.IndexDir(), []string{"cam1", "cam2", "cam9"}, 2, nil)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 || loaded["cam1"].Len() != 2 {
		t.Fatalf("unexpected loaded set %v", loaded)
	}
	if !errors.Is(skipped["cam2"], services.ErrValidation) || !errors.Is(skipped["cam9"], services.ErrNotFound) {
		t.Fatalf("unexpected skipped set %v", skipped)
	}
}
