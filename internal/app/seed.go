// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/camfleet/internal/config"
	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/log"
)

// SeedCameras adds every configured camera the store does not know yet.
// Existing cameras are left untouched so runtime status survives restarts.
func SeedCameras(ctx context.Context, store camera.Store, cams []config.CameraConfig) error {
	logger := log.WithComponent("app")
	added := 0
	for _, cc := range cams {
		existing, err := store.GetByID(ctx, cc.ID)
		if err != nil && !errors.Is(err, camera.ErrNotFound) {
			return fmt.Errorf("seed camera %s: %w", cc.ID, err)
		}
		if existing != nil {
			continue
		}
		now := time.Now().UTC()
		name := cc.Name
		if name == "" {
			name = cc.ID
		}
		err = store.Add(ctx, camera.Camera{
			ID:          cc.ID,
			Name:        name,
			URL:         cc.URL,
			Credentials: camera.Credentials{Username: cc.Username, Password: cc.Password},
			Status:      camera.StatusUnknown,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil && !errors.Is(err, camera.ErrExists) {
			return fmt.Errorf("seed camera %s: %w", cc.ID, err)
		}
		added++
	}
	if added > 0 {
		logger.Info().Str(log.FieldEvent, "app.cameras_seeded").Int("count", added).Msg("seeded cameras from config")
	}
	return nil
}
