package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"camsync/internal/services"
	"camsync/internal/syncer"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect sync manifests",
	}
	manifestCmd.AddCommand(newManifestShowCommand(ctx))
	return manifestCmd
}

func newManifestShowCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the manifest for the configured sync parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			key := syncer.Key{
				Reference:     cfg.Sync.ReferenceCamera,
				Threshold:     cfg.Sync.Threshold,
				StartTimecode: cfg.Sync.StartTimecode,
			}
			path := syncer.ManifestPath(cfg.ManifestDir(), key)
			m, err := syncer.ReadManifest(path, key)
			if err != nil {
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("no manifest at %s; run 'camsync sync' first", path)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return m.Encode(out)
			}

			fmt.Fprintf(out, "Manifest: %s\n", path)
			fmt.Fprintf(out, "Reference %s, threshold %d, start %d: %s sets, %s matches\n",
				key.Reference, key.Threshold, key.StartTimecode,
				formatCount(m.Len()), formatCount(m.MatchCount()))
			if m.Len() == 0 {
				return nil
			}

			sets := m.Sets
			if limit > 0 && len(sets) > limit {
				sets = sets[:limit]
			}
			rows := make([][]string, 0, len(sets))
			for _, set := range sets {
				cams := set.Cameras()
				parts := make([]string, 0, len(cams))
				for _, cam := range cams {
					match := set.Matches[cam]
					parts = append(parts, fmt.Sprintf("%s@%d (frame %d, Δ%d)", cam, match.Timecode, match.Frame, match.Distance))
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", set.Reference),
					fmt.Sprintf("%d", len(cams)),
					strings.Join(parts, ", "),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{numCol("Reference"), numCol("Matched"), textCol("Matches")},
				rows,
			))
			if len(sets) < m.Len() {
				fmt.Fprintf(out, "(%s more sets; use --limit 0 to show all)\n", formatCount(m.Len()-len(sets)))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the manifest JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sets to list (0 for all)")
	return cmd
}
