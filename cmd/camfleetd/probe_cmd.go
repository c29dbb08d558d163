// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/media/ffmpeg"
	"github.com/ManuGH/camfleet/internal/persistence"
	"github.com/ManuGH/camfleet/internal/stream"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var (
		rawURL   string
		username string
		password string
	)
	cmd := &cobra.Command{
		Use:   "probe [camera-id]",
		Short: "Test the connection to one camera",
		Long:  "Probe a registered camera by id, or an ad-hoc stream with --url, and print the result as JSON. Camera status is not changed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (rawURL == "") {
				return errors.New("pass either a camera id or --url")
			}
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := cmd.Context()

			target := rawURL
			creds := camera.Credentials{Username: username, Password: password}
			if len(args) == 1 {
				stores, err := persistence.Open(cfg.Storage.Backend, cfg.Storage.Path)
				if err != nil {
					return fmt.Errorf("open stores: %w", err)
				}
				defer func() { _ = stores.Close() }()
				cam, err := stores.Cameras.GetByID(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get camera: %w", err)
				}
				if cam == nil {
					return fmt.Errorf("%w: %s", camera.ErrNotFound, args[0])
				}
				target, creds = cam.URL, cam.Credentials
			}

			enc := ffmpeg.New(ffmpeg.Config{FFmpegPath: cfg.FFmpeg.Bin, FFprobePath: cfg.FFmpeg.FFprobeBin, KillTimeout: cfg.FFmpeg.KillTimeout})
			res := stream.NewFFProbe(enc, cfg.Monitor.ProbeTimeout).TestConnection(ctx, target, creds)

			je := json.NewEncoder(cmd.OutOrStdout())
			je.SetIndent("", "  ")
			if err := je.Encode(res); err != nil {
				return err
			}
			return res.Err()
		},
	}
	cmd.Flags().StringVar(&rawURL, "url", "", "stream URL to probe instead of a registered camera")
	cmd.Flags().StringVar(&username, "username", "", "username for --url")
	cmd.Flags().StringVar(&password, "password", "", "password for --url")
	return cmd
}
