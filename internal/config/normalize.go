package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDataset()
	c.normalizeSync()
	c.normalizeExtract()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" || c.Paths.DataDir == defaultDataDir {
		if value, ok := os.LookupEnv("CAMSYNC_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
			c.Paths.DataDir = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDataset() {
	c.Dataset.CameraFilter = strings.TrimSpace(c.Dataset.CameraFilter)
	c.Dataset.LogExtension = normalizeExtension(c.Dataset.LogExtension, defaultLogExtension)
	c.Dataset.VideoExtension = normalizeExtension(c.Dataset.VideoExtension, defaultVideoExtension)
}

func (c *Config) normalizeSync() {
	c.Sync.ReferenceCamera = strings.TrimSpace(c.Sync.ReferenceCamera)
	if c.Sync.ReferenceCamera == "" {
		if value, ok := os.LookupEnv("CAMSYNC_REFERENCE_CAMERA"); ok {
			c.Sync.ReferenceCamera = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeExtract() {
	format := strings.ToLower(strings.TrimSpace(c.Extract.ImageFormat))
	format = strings.TrimPrefix(format, ".")
	switch format {
	case "":
		format = defaultImageFormat
	case "jpeg":
		format = "jpg"
	}
	c.Extract.ImageFormat = format
	c.Extract.FFmpegBinary = strings.TrimSpace(c.Extract.FFmpegBinary)
	if c.Extract.FFmpegBinary == "" {
		c.Extract.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Extract.TimeoutSeconds == 0 {
		c.Extract.TimeoutSeconds = defaultExtractTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeExtension(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	if !strings.HasPrefix(value, ".") {
		value = "." + value
	}
	return value
}
