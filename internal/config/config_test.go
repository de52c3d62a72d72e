package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"camsync/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CAMSYNC_DATA_DIR", "")
	t.Setenv("CAMSYNC_REFERENCE_CAMERA", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "camsync")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "captures") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.IndexDir() != filepath.Join(wantWork, "indexes", "seq_0000") {
		t.Fatalf("unexpected index dir: %q", cfg.IndexDir())
	}
	if cfg.Sync.Threshold != config.Default().Sync.Threshold {
		t.Fatalf("unexpected threshold: %d", cfg.Sync.Threshold)
	}
	if cfg.Extract.ImageFormat != "png" {
		t.Fatalf("unexpected image format: %q", cfg.Extract.ImageFormat)
	}
	if cfg.FFmpegBinary() != "ffmpeg" {
		t.Fatalf("unexpected ffmpeg binary: %q", cfg.FFmpegBinary())
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("CAMSYNC_REFERENCE_CAMERA", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	payload := map[string]any{
		"paths": map[string]any{
			"data_dir":   filepath.Join(tempDir, "data"),
			"work_dir":   filepath.Join(tempDir, "work"),
			"output_dir": filepath.Join(tempDir, "frames"),
			"log_dir":    filepath.Join(tempDir, "logs"),
		},
		"dataset": map[string]any{
			"camera_filter":   "bric",
			"sequence_index":  2,
			"log_extension":   "TXT",
			"video_extension": ".MP4",
		},
		"sync": map[string]any{
			"reference_camera": "bric-rev1-001_cam0",
			"threshold":        1000,
			"start_timecode":   174562411,
		},
		"workers": map[string]any{
			"query": 8,
		},
		"extract": map[string]any{
			"image_format": "JPEG",
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal toml: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Sync.ReferenceCamera != "bric-rev1-001_cam0" {
		t.Fatalf("unexpected reference camera: %q", cfg.Sync.ReferenceCamera)
	}
	if cfg.Sync.Threshold != 1000 || cfg.Sync.StartTimecode != 174562411 {
		t.Fatalf("unexpected sync section: %+v", cfg.Sync)
	}
	if cfg.Dataset.LogExtension != ".txt" || cfg.Dataset.VideoExtension != ".mp4" {
		t.Fatalf("expected normalized extensions, got %q %q", cfg.Dataset.LogExtension, cfg.Dataset.VideoExtension)
	}
	if cfg.Dataset.SequenceIndex != 2 {
		t.Fatalf("unexpected sequence index: %d", cfg.Dataset.SequenceIndex)
	}
	if cfg.Workers.Query != 8 {
		t.Fatalf("unexpected query workers: %d", cfg.Workers.Query)
	}
	if cfg.Extract.ImageFormat != "jpg" {
		t.Fatalf("expected jpeg to normalize to jpg, got %q", cfg.Extract.ImageFormat)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging section: %+v", cfg.Logging)
	}
	if err := cfg.ValidateForRun(); err != nil {
		t.Fatalf("ValidateForRun returned error: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[sync]\nthreshhold = 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvironmentFallbacks(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CAMSYNC_DATA_DIR", dataDir)
	t.Setenv("CAMSYNC_REFERENCE_CAMERA", " cam7 ")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.DataDir != dataDir {
		t.Fatalf("expected data dir from env, got %q", cfg.Paths.DataDir)
	}
	if cfg.Sync.ReferenceCamera != "cam7" {
		t.Fatalf("expected reference camera from env, got %q", cfg.Sync.ReferenceCamera)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative threshold", func(c *config.Config) { c.Sync.Threshold = -1 }, "sync.threshold"},
		{"negative start", func(c *config.Config) { c.Sync.StartTimecode = -5 }, "sync.start_timecode"},
		{"reference path", func(c *config.Config) { c.Sync.ReferenceCamera = "a/b" }, "sync.reference_camera"},
		{"negative workers", func(c *config.Config) { c.Workers.Query = -2 }, "workers.query"},
		{"image format", func(c *config.Config) { c.Extract.ImageFormat = "gif" }, "extract.image_format"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"sequence index", func(c *config.Config) { c.Dataset.SequenceIndex = -1 }, "dataset.sequence_index"},
		{"same extensions", func(c *config.Config) { c.Dataset.VideoExtension = ".txt" }, "must differ"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestValidateForRunRequiresReference(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidateForRun(); err == nil {
		t.Fatal("expected missing reference camera to fail")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "frames")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.IndexDir(), cfg.ManifestDir(), cfg.FrameDir(), cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CAMSYNC_DATA_DIR", "")
	t.Setenv("CAMSYNC_REFERENCE_CAMERA", "")
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Dataset.CameraFilter != "cam" {
		t.Fatalf("unexpected camera filter: %q", cfg.Dataset.CameraFilter)
	}
}

func TestSequenceScopedDirectories(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = "/work"
	cfg.Paths.OutputDir = "/frames"
	cfg.Dataset.SequenceIndex = 3

	if got := cfg.IndexDir(); got != filepath.Join("/work", "indexes", "seq_0003") {
		t.Fatalf("IndexDir = %q", got)
	}
	if got := cfg.ManifestDir(); got != filepath.Join("/work", "manifests", "seq_0003") {
		t.Fatalf("ManifestDir = %q", got)
	}
	if got := cfg.FrameDir(); got != filepath.Join("/frames", "seq_0003") {
		t.Fatalf("FrameDir = %q", got)
	}
}
