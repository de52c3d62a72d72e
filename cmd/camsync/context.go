package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"camsync/internal/config"
	"camsync/internal/ledger"
	"camsync/internal/logging"
	"camsync/internal/pipeline"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// withLedger opens the run ledger for the duration of fn.
func (c *commandContext) withLedger(fn func(*config.Config, *ledger.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// withPipeline opens the ledger and builds a pipeline for fn.
func (c *commandContext) withPipeline(fn func(*config.Config, *pipeline.Pipeline) error) error {
	logger, err := c.ensureLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return c.withLedger(func(cfg *config.Config, store *ledger.Store) error {
		return fn(cfg, pipeline.New(cfg, store, logger))
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// syncFlags overrides the [sync] section for a single invocation.
type syncFlags struct {
	reference string
	threshold int64
	start     int64
}

func (f *syncFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.reference, "reference", "r", "", "Reference camera (overrides sync.reference_camera)")
	cmd.Flags().Int64VarP(&f.threshold, "threshold", "t", 0, "Maximum timecode distance for a match (overrides sync.threshold)")
	cmd.Flags().Int64Var(&f.start, "start", 0, "Skip reference frames below this timecode (overrides sync.start_timecode)")
}

func (f *syncFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("reference") {
		cfg.Sync.ReferenceCamera = strings.TrimSpace(f.reference)
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Sync.Threshold = f.threshold
	}
	if cmd.Flags().Changed("start") {
		cfg.Sync.StartTimecode = f.start
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.ValidateForRun()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
