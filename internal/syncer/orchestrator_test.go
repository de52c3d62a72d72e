package syncer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camsync/internal/logging"
	"camsync/internal/services"
	"camsync/internal/timecode"
)

func records(camera string, timecodes ...int64) []timecode.Record {
	out := make([]timecode.Record, len(timecodes))
	for i, tc := range timecodes {
		out[i] = timecode.Record{Camera: camera, Timecode: tc, Frame: int64(i)}
	}
	return out
}

func mustIndex(t *testing.T, camera string, timecodes ...int64) *timecode.Index {
	t.Helper()
	ix, err := timecode.Build(camera, records(camera, timecodes...))
	if err != nil {
		t.Fatalf("Build(%s): %v", camera, err)
	}
	return ix
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func TestRunThresholdExample(t *testing.T) {
	dir := t.TempDir()
	o := NewOrchestrator(dir, 4, logging.NewNop())
	req := Request{
		Reference: "A",
		Records:   records("A", 100, 200, 300),
		Indexes: map[string]*timecode.Index{
			"A": mustIndex(t, "A", 100, 200, 300),
			"B": mustIndex(t, "B", 105, 310),
		},
		Threshold: 10,
	}

	res, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	m := res.Manifest
	if m.Len() != 3 {
		t.Fatalf("len = %d, want 3", m.Len())
	}
	if got := m.Sets[0].Matches["B"]; got.Timecode != 105 || got.Frame != 0 || got.Distance != 5 {
		t.Fatalf("set 100 = %+v", m.Sets[0].Matches)
	}
	if len(m.Sets[1].Matches) != 0 {
		t.Fatalf("set 200 should be empty, got %+v", m.Sets[1].Matches)
	}
	if got := m.Sets[2].Matches["B"]; got.Timecode != 310 || got.Distance != 10 {
		t.Fatalf("set 300 = %+v", m.Sets[2].Matches)
	}
	if _, ok := m.Sets[0].Matches["A"]; ok {
		t.Fatal("reference camera must not appear in its own sets")
	}
	if res.Queries != 3 {
		t.Fatalf("queries = %d, want 3", res.Queries)
	}

	want := "{\n  \"100\": {\n    \"B\": \"B_105_0\"\n  },\n  \"200\": {},\n  \"300\": {\n    \"B\": \"B_310_1\"\n  }\n}\n"
	if got := string(readFile(t, res.Path)); got != want {
		t.Fatalf("manifest file:\n%s\nwant:\n%s", got, want)
	}
	if filepath.Base(res.Path) != "A_t10_s0.json" {
		t.Fatalf("manifest path %s", res.Path)
	}
}

func TestRunTieBreak(t *testing.T) {
	o := NewOrchestrator(t.TempDir(), 1, nil)
	res, err := o.Run(context.Background(), Request{
		Reference: "A",
		Records:   records("A", 100),
		Indexes:   map[string]*timecode.Index{"B": mustIndex(t, "B", 105, 95)},
		Threshold: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Manifest.Sets[0].Matches["B"]; got.Timecode != 95 {
		t.Fatalf("tie resolved to %d, want 95", got.Timecode)
	}
}

func largeRequest(t *testing.T) Request {
	t.Helper()
	var ref []int64
	for i := int64(0); i < 700; i++ {
		ref = append(ref, 1000+i*33)
	}
	indexes := map[string]*timecode.Index{}
	for c, offset := range []int64{-7, 3, 16, 40, -16} {
		var tcs []int64
		for i := int64(0); i < 690; i++ {
			tcs = append(tcs, 1000+offset+i*33+(i%5))
		}
		cam := "cam" + string(rune('B'+c))
		indexes[cam] = mustIndex(t, cam, tcs...)
	}
	return Request{Reference: "camA", Records: records("camA", ref...), Indexes: indexes, Threshold: 16}
}

func TestRunWorkerCountInvariance(t *testing.T) {
	req := largeRequest(t)

	var outputs [][]byte
	for _, workers := range []int{1, 3, 16} {
		dir := t.TempDir()
		res, err := NewOrchestrator(dir, workers, nil).Run(context.Background(), req)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if res.Manifest.Len() != len(req.Records) {
			t.Fatalf("workers=%d: len %d, want %d", workers, res.Manifest.Len(), len(req.Records))
		}
		for i, set := range res.Manifest.Sets {
			if set.Reference != req.Records[i].Timecode {
				t.Fatalf("workers=%d: set %d out of order", workers, i)
			}
		}
		outputs = append(outputs, readFile(t, res.Path))
	}
	for i := 1; i < len(outputs); i++ {
		if !bytes.Equal(outputs[0], outputs[i]) {
			t.Fatal("manifest differs between worker counts")
		}
	}
}

func TestRunReusesExistingManifest(t *testing.T) {
	dir := t.TempDir()
	req := largeRequest(t)
	first, err := NewOrchestrator(dir, 4, nil).Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	before := readFile(t, first.Path)

	// No indexes: any query attempt would fail to find matches.
	req.Indexes = nil
	second, err := NewOrchestrator(dir, 4, nil).Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Reused || second.Queries != 0 {
		t.Fatalf("expected reuse without queries, got reused=%v queries=%d", second.Reused, second.Queries)
	}
	if second.Manifest.MatchCount() != first.Manifest.MatchCount() {
		t.Fatal("reloaded manifest lost matches")
	}

	var buf bytes.Buffer
	if err := second.Manifest.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), before) {
		t.Fatal("re-encoded manifest differs from file")
	}
	for i, set := range second.Manifest.Sets {
		for cam, m := range set.Matches {
			if m != first.Manifest.Sets[i].Matches[cam] {
				t.Fatalf("set %d camera %s: %+v vs %+v", i, cam, m, first.Manifest.Sets[i].Matches[cam])
			}
		}
	}
}

func TestRunStartTimecode(t *testing.T) {
	o := NewOrchestrator(t.TempDir(), 2, nil)
	res, err := o.Run(context.Background(), Request{
		Reference:     "A",
		Records:       records("A", 100, 200, 300),
		Indexes:       map[string]*timecode.Index{"B": mustIndex(t, "B", 105, 310)},
		Threshold:     10,
		StartTimecode: 200,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Manifest.Len() != 2 || res.Manifest.Sets[0].Reference != 200 {
		t.Fatalf("unexpected filtered manifest %+v", res.Manifest.Sets)
	}
	if filepath.Base(res.Path) != "A_t10_s200.json" {
		t.Fatalf("path %s", res.Path)
	}
}

func TestRunCheckpointAndResume(t *testing.T) {
	dir := t.TempDir()
	req := largeRequest(t)

	full, err := NewOrchestrator(t.TempDir(), 2, nil).Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	want := readFile(t, full.Path)

	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(dir, 2, nil)
	o.onBatch = func(completed int) {
		if completed >= batchSize {
			cancel()
		}
	}
	partial, err := o.Run(ctx, req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if partial.Manifest.Len() != batchSize {
		t.Fatalf("checkpoint holds %d sets, want %d", partial.Manifest.Len(), batchSize)
	}
	key := req.Key()
	if _, err := os.Stat(ManifestPath(dir, key)); !os.IsNotExist(err) {
		t.Fatal("final manifest must not exist after cancellation")
	}
	if _, err := os.Stat(PartialPath(dir, key)); err != nil {
		t.Fatalf("checkpoint missing: %v", err)
	}

	resumed, err := NewOrchestrator(dir, 5, nil).Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Resumed != batchSize {
		t.Fatalf("resumed %d sets, want %d", resumed.Resumed, batchSize)
	}
	if !bytes.Equal(readFile(t, resumed.Path), want) {
		t.Fatal("resumed manifest differs from uninterrupted run")
	}
	if _, err := os.Stat(PartialPath(dir, key)); !os.IsNotExist(err) {
		t.Fatal("checkpoint should be removed after completion")
	}
}

func TestRunDiscardsMismatchedCheckpoint(t *testing.T) {
	dir := t.TempDir()
	req := Request{
		Reference: "A",
		Records:   records("A", 100, 200),
		Indexes:   map[string]*timecode.Index{"B": mustIndex(t, "B", 100, 200)},
		Threshold: 0,
	}
	stale := &Manifest{Key: req.Key(), Sets: []Set{{Reference: 999}}}
	if err := writeCheckpoint(PartialPath(dir, req.Key()), []string{"B"}, stale); err != nil {
		t.Fatal(err)
	}
	res, err := NewOrchestrator(dir, 1, nil).Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resumed != 0 || res.Manifest.Sets[0].Reference != 100 {
		t.Fatalf("stale checkpoint was used: %+v", res)
	}
}

func TestRunDiscardsCheckpointFromOtherCameras(t *testing.T) {
	full := largeRequest(t)
	narrow := full
	narrow.Indexes = map[string]*timecode.Index{"camB": full.Indexes["camB"]}

	want, err := NewOrchestrator(t.TempDir(), 2, nil).Run(context.Background(), full)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(dir, 2, nil)
	o.onBatch = func(completed int) {
		if completed >= batchSize {
			cancel()
		}
	}
	if _, err := o.Run(ctx, narrow); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	saved, _, err := readCheckpoint(PartialPath(dir, narrow.Key()), narrow.Key())
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	if len(saved) != 1 || saved[0] != "camB" {
		t.Fatalf("checkpoint cameras = %v, want [camB]", saved)
	}

	res, err := NewOrchestrator(dir, 3, nil).Run(context.Background(), full)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resumed != 0 {
		t.Fatalf("resumed %d sets from a checkpoint with other cameras", res.Resumed)
	}
	if !bytes.Equal(readFile(t, res.Path), readFile(t, want.Path)) {
		t.Fatal("manifest differs from uninterrupted run with all cameras")
	}
}

func TestReadCheckpointRejectsPlainManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.json")
	m := &Manifest{Sets: []Set{{Reference: 1}}}
	if err := WriteManifest(path, m); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readCheckpoint(path, Key{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := readCheckpoint(filepath.Join(t.TempDir(), "missing.json"), Key{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunRejectsDuplicateReference(t *testing.T) {
	_, err := NewOrchestrator(t.TempDir(), 1, nil).Run(context.Background(), Request{
		Reference: "A",
		Records:   records("A", 100, 100),
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	_, err = NewOrchestrator(t.TempDir(), 1, nil).Run(context.Background(), Request{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for blank reference, got %v", err)
	}
}

func TestRunWithoutOtherCameras(t *testing.T) {
	res, err := NewOrchestrator(t.TempDir(), 1, nil).Run(context.Background(), Request{
		Reference: "A",
		Records:   records("A", 1, 2, 3),
		Indexes:   map[string]*timecode.Index{"A": mustIndex(t, "A", 1, 2, 3), "C": {}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Manifest.Len() != 3 || res.Manifest.MatchCount() != 0 || res.Queries != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunUnreadableManifestIsFatal(t *testing.T) {
	dir := t.TempDir()
	req := Request{Reference: "A", Records: records("A", 1)}
	if err := os.WriteFile(ManifestPath(dir, req.Key()), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewOrchestrator(dir, 1, nil).Run(context.Background(), req)
	if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), "delete it") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
