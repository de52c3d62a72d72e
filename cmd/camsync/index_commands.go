package main

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"camsync/internal/config"
	"camsync/internal/fileutil"
	"camsync/internal/pipeline"
	"camsync/internal/services"
	"camsync/internal/timecode"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect per-camera timecode indexes",
	}

	indexCmd.AddCommand(newIndexBuildCommand(ctx))
	indexCmd.AddCommand(newIndexQueryCommand(ctx))
	indexCmd.AddCommand(newIndexShowCommand(ctx))
	indexCmd.AddCommand(newIndexExportCommand(ctx))

	return indexCmd
}

func newIndexBuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the timecode index of every camera that lacks one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(cfg *config.Config, p *pipeline.Pipeline) error {
				if err := cfg.ValidateForRun(); err != nil {
					return err
				}
				rep, err := p.BuildIndexes(cmd.Context())
				printReport(cmd.OutOrStdout(), rep)
				return err
			})
		},
	}
}

func newIndexQueryCommand(ctx *commandContext) *cobra.Command {
	var threshold int64

	cmd := &cobra.Command{
		Use:   "query <camera> <timecode>",
		Short: "Find the record nearest to a timecode in one camera's index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tc, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid timecode %q: %w", args[1], err)
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Sync.Threshold
			}
			ix, err := loadIndex(cfg, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			match, ok := ix.Nearest(tc, threshold)
			if !ok {
				fmt.Fprintf(out, "No record of %s within %d of %d\n", ix.Camera(), threshold, tc)
				return nil
			}
			fmt.Fprintf(out, "%s\n", timecode.FormatDescriptor(ix.Camera(), match.Timecode, match.Frame))
			fmt.Fprintf(out, "  Timecode: %d\n", match.Timecode)
			fmt.Fprintf(out, "  Frame:    %d\n", match.Frame)
			fmt.Fprintf(out, "  Distance: %d\n", match.Distance)
			return nil
		},
	}
	cmd.Flags().Int64VarP(&threshold, "threshold", "t", 0, "Maximum distance (defaults to sync.threshold)")
	return cmd
}

func newIndexShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <camera>",
		Short: "Summarize a persisted timecode index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ix, err := loadIndex(cfg, args[0])
			if err != nil {
				return err
			}
			path := timecode.Path(cfg.IndexDir(), ix.Camera())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Camera:  %s\n", ix.Camera())
			fmt.Fprintf(out, "Path:    %s (%s)\n", path, humanize.Bytes(uint64(fileutil.FileSize(path))))
			fmt.Fprintf(out, "Records: %s\n", formatCount(ix.Len()))
			fmt.Fprintf(out, "Height:  %d\n", ix.Height())
			if lo, ok := ix.Min(); ok {
				hi, _ := ix.Max()
				fmt.Fprintf(out, "Range:   %d .. %d\n", lo.Timecode, hi.Timecode)
			}
			return nil
		},
	}
}

func newIndexExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <camera>",
		Short: "Write a persisted index back out as a timecode log",
		Long: "Writes one <camera>_<timecode>_<frame> line per indexed record in frame\n" +
			"order, so the output can be read back as a camera log.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ix, err := loadIndex(cfg, args[0])
			if err != nil {
				return err
			}
			write := func(w io.Writer) error { return writeRecords(w, ix.Records()) }
			if output == "" {
				return write(cmd.OutOrStdout())
			}
			if err := fileutil.WriteAtomic(output, 0o644, write); err != nil {
				return fmt.Errorf("export %s: %w", ix.Camera(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s records of %s to %s\n", formatCount(ix.Len()), ix.Camera(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func writeRecords(w io.Writer, records []timecode.Record) error {
	slices.SortFunc(records, func(a, b timecode.Record) int { return cmp.Compare(a.Frame, b.Frame) })
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintln(bw, rec.Descriptor()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func loadIndex(cfg *config.Config, camera string) (*timecode.Index, error) {
	camera = strings.TrimSpace(camera)
	ix, err := timecode.ReadFile(timecode.Path(cfg.IndexDir(), camera))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, fmt.Errorf("no index for camera %s; run 'camsync index build' first: %w", camera, err)
		}
		return nil, err
	}
	return ix, nil
}
