package main

import (
	"github.com/spf13/cobra"

	"camsync/internal/config"
	"camsync/internal/pipeline"
	"camsync/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags
	var noExtract bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build indexes, synchronize cameras and extract matched frames",
		Long: "Run discovers the camera directories, builds any missing timecode index,\n" +
			"writes the sync manifest for the reference camera and, unless disabled,\n" +
			"extracts every matched frame. Completed work is reused on the next run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(cfg *config.Config, p *pipeline.Pipeline) error {
				if err := flags.apply(cmd, cfg); err != nil {
					return err
				}
				if noExtract {
					cfg.Extract.Enabled = false
				}
				if err := preflight.Err(preflight.RunAll(cfg)); err != nil {
					return err
				}
				rep, err := p.Run(cmd.Context())
				printReport(cmd.OutOrStdout(), rep)
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&noExtract, "no-extract", false, "Skip frame extraction")
	return cmd
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Write the sync manifest from the indexes already built",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(cfg *config.Config, p *pipeline.Pipeline) error {
				if err := flags.apply(cmd, cfg); err != nil {
					return err
				}
				rep, err := p.Sync(cmd.Context())
				printReport(cmd.OutOrStdout(), rep)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the frames listed in an existing sync manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(cfg *config.Config, p *pipeline.Pipeline) error {
				if err := flags.apply(cmd, cfg); err != nil {
					return err
				}
				cfg.Extract.Enabled = true
				if err := cfg.EnsureDirectories(); err != nil {
					return err
				}
				if err := preflight.Err(preflight.RunAll(cfg)); err != nil {
					return err
				}
				rep, err := p.Extract(cmd.Context())
				printReport(cmd.OutOrStdout(), rep)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}
