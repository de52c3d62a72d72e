package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Dataset describes how camera directories and their files are discovered
// beneath Paths.DataDir.
type Dataset struct {
	CameraFilter   string `toml:"camera_filter"`
	SequenceIndex  int    `toml:"sequence_index"`
	LogExtension   string `toml:"log_extension"`
	VideoExtension string `toml:"video_extension"`
}

// Sync contains the synchronization parameters.
type Sync struct {
	ReferenceCamera string `toml:"reference_camera"`
	// Threshold is the maximum timecode distance accepted as a match. The
	// bound is inclusive.
	Threshold int64 `toml:"threshold"`
	// StartTimecode drops reference records with a smaller timecode. Zero
	// keeps every record.
	StartTimecode int64 `toml:"start_timecode"`
}

// Workers sizes the per-stage worker pools. Zero selects the available
// parallelism.
type Workers struct {
	Build   int `toml:"build"`
	Query   int `toml:"query"`
	Extract int `toml:"extract"`
}

// Extract contains frame extraction settings.
type Extract struct {
	Enabled        bool   `toml:"enabled"`
	ImageFormat    string `toml:"image_format"`
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for camsync.
//
// Configuration sections by subsystem:
//   - Paths: input dataset, working state, extracted frames, logs
//   - Dataset: camera directory filter and per-camera file selection
//   - Sync: reference camera, match threshold, start timecode
//   - Workers: pool sizes for build, query, and extract stages
//   - Extract: frame extraction toggle, image format, ffmpeg binary
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Dataset Dataset `toml:"dataset"`
	Sync    Sync    `toml:"sync"`
	Workers Workers `toml:"workers"`
	Extract Extract `toml:"extract"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("camsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into. DataDir is
// input only and is never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.IndexDir(), c.ManifestDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Extract.Enabled && strings.TrimSpace(c.Paths.OutputDir) != "" {
		if err := os.MkdirAll(c.FrameDir(), 0o755); err != nil {
			return fmt.Errorf("create output directory %q: %w", c.FrameDir(), err)
		}
	}
	return nil
}

// SequenceDir names the per-sequence subdirectory. Indexes, manifests and
// frames of different recordings never share a directory.
func (c *Config) SequenceDir() string {
	return fmt.Sprintf("seq_%04d", c.Dataset.SequenceIndex)
}

// IndexDir returns the directory holding persisted timecode indexes for the
// configured sequence.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Paths.WorkDir, "indexes", c.SequenceDir())
}

// ManifestDir returns the directory holding persisted sync manifests for the
// configured sequence.
func (c *Config) ManifestDir() string {
	return filepath.Join(c.Paths.WorkDir, "manifests", c.SequenceDir())
}

// FrameDir returns where extracted frames of the configured sequence go.
func (c *Config) FrameDir() string {
	return filepath.Join(c.Paths.OutputDir, c.SequenceDir())
}

// LedgerPath returns the SQLite run ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.WorkDir, "ledger.db")
}

// LockPath returns the file used to serialize runs against one work directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, "camsync.lock")
}

// FFmpegBinary returns the ffmpeg executable used for frame extraction.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Extract.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
