// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/camfleet/internal/config"
	"github.com/ManuGH/camfleet/internal/persistence"
	"github.com/ManuGH/camfleet/internal/persistence/sqlite"
	"github.com/ManuGH/camfleet/internal/validate"
)

func newCheckConfigCmd(opts *rootOptions) *cobra.Command {
	var (
		writeExample string
		verifyDB     string
	)
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if writeExample != "" {
				if err := config.WriteExample(writeExample); err != nil {
					return fmt.Errorf("write example: %w", err)
				}
				fmt.Fprintf(out, "wrote example configuration to %s\n", writeExample)
				return nil
			}

			cfg, loader, err := loadConfig(opts)
			if err != nil {
				var verr validate.ValidationError
				if errors.As(err, &verr) {
					for _, e := range verr.Errors() {
						fmt.Fprintf(out, "  %s: %s\n", e.Field, e.Message)
					}
				}
				return err
			}
			for _, key := range loader.UnknownEnvKeys() {
				fmt.Fprintf(out, "warning: unknown environment variable %s\n", key)
			}

			if verifyDB != "" && cfg.Storage.Backend == persistence.BackendSQLite {
				if _, err := os.Stat(cfg.Storage.Path); err == nil {
					problems, err := sqlite.VerifyIntegrity(cfg.Storage.Path, verifyDB)
					if err != nil {
						return err
					}
					for _, p := range problems {
						fmt.Fprintf(out, "  integrity: %s\n", p)
					}
					if len(problems) > 0 {
						return fmt.Errorf("database %s failed %s integrity check", cfg.Storage.Path, verifyDB)
					}
				}
			}

			fmt.Fprintf(out, "configuration ok (backend %s, %d cameras)\n", cfg.Storage.Backend, len(cfg.Cameras))
			return nil
		},
	}
	cmd.Flags().StringVar(&writeExample, "write-example", "", "write an example configuration to this path and exit")
	cmd.Flags().StringVar(&verifyDB, "verify-db", "", "also run a sqlite integrity check: quick or full")
	return cmd
}
