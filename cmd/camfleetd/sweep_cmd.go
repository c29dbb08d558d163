// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ManuGH/camfleet/internal/app"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := cmd.Context()
			core, err := app.OpenCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			res := core.Recordings.SweepOnce(ctx)
			if cerr := core.Close(ctx); cerr != nil {
				return cerr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deleted %d recordings, freed %s\n", res.Deleted, humanize.IBytes(uint64(max(res.FreedBytes, 0))))
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  error: %v\n", e)
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("sweep finished with %d errors", len(res.Errors))
			}
			return nil
		},
	}
}
