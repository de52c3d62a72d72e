package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDataset(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateExtract(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateForRun applies the additional checks needed before a sync run.
// Commands that only inspect state (status, config validate) skip it so they
// work before a reference camera has been chosen.
func (c *Config) ValidateForRun() error {
	if strings.TrimSpace(c.Sync.ReferenceCamera) == "" {
		return errors.New("sync.reference_camera is required. Set CAMSYNC_REFERENCE_CAMERA or edit the config file")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Extract.Enabled && strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set when extract.enabled is true")
	}
	return nil
}

func (c *Config) validateDataset() error {
	if c.Dataset.SequenceIndex < 0 {
		return errors.New("dataset.sequence_index must be >= 0")
	}
	if c.Dataset.LogExtension == c.Dataset.VideoExtension {
		return fmt.Errorf("dataset.log_extension and dataset.video_extension must differ (both %q)", c.Dataset.LogExtension)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Threshold < 0 {
		return errors.New("sync.threshold must be >= 0")
	}
	if c.Sync.StartTimecode < 0 {
		return errors.New("sync.start_timecode must be >= 0")
	}
	if strings.ContainsAny(c.Sync.ReferenceCamera, `/\`) {
		return fmt.Errorf("sync.reference_camera %q must be a camera directory name, not a path", c.Sync.ReferenceCamera)
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Build < 0 {
		return errors.New("workers.build must be >= 0")
	}
	if c.Workers.Query < 0 {
		return errors.New("workers.query must be >= 0")
	}
	if c.Workers.Extract < 0 {
		return errors.New("workers.extract must be >= 0")
	}
	return nil
}

func (c *Config) validateExtract() error {
	switch c.Extract.ImageFormat {
	case "png", "jpg":
	default:
		return fmt.Errorf("extract.image_format: unsupported value %q (use png or jpg)", c.Extract.ImageFormat)
	}
	if c.Extract.TimeoutSeconds < 0 {
		return errors.New("extract.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
