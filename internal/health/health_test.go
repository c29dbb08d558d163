// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camfleet/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

type fakeUsage struct {
	ratio   float64
	warning bool
}

func (f fakeUsage) UsageRatio() float64             { return f.ratio }
func (f fakeUsage) IsWarningThresholdExceeded() bool { return f.warning }

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []Status
		wantReady  bool
		wantStatus Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded stays ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("v")
	m.RegisterChecker(NewPingChecker("store", func(context.Context) error { return errors.New("database is locked") }))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Ready)
	assert.Equal(t, "database is locked", body.Checks["store"].Error)
}

func TestManager_ServeHealth_AlwaysOK(t *testing.T) {
	m := NewManager("v")
	m.RegisterChecker(&mockChecker{name: "broken", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, StatusUnhealthy, body.Status)
	assert.Contains(t, body.Checks, "broken")
}

func TestPingChecker_HasDeadline(t *testing.T) {
	c := NewPingChecker("redis", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}
		return nil
	})
	assert.Equal(t, "redis", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestStorageChecker(t *testing.T) {
	tests := []struct {
		name  string
		usage fakeUsage
		want  Status
	}{
		{"plenty", fakeUsage{ratio: 0.2}, StatusHealthy},
		{"warning", fakeUsage{ratio: 0.85, warning: true}, StatusDegraded},
		{"full", fakeUsage{ratio: 1, warning: true}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStorageChecker(tt.usage).Check(context.Background())
			assert.Equal(t, tt.want, r.Status)
			assert.NotEmpty(t, r.Message)
		})
	}
}

func TestFuncChecker(t *testing.T) {
	c := NewFuncChecker("monitor", func(context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded, Message: "not running"}
	})
	assert.Equal(t, "monitor", c.Name())
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

func TestPerformStartupChecks_CreatesDirs(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = root
	cfg.Recordings.Dir = filepath.Join(root, "rec")
	cfg.Recordings.ThumbnailsDir = filepath.Join(root, "thumbs")
	cfg.FFmpeg.Bin = "camfleet-missing-ffmpeg"
	cfg.FFmpeg.FFprobeBin = "camfleet-missing-ffprobe"

	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	for _, dir := range []string{cfg.Recordings.Dir, cfg.Recordings.ThumbnailsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	_, err := os.Stat(filepath.Join(root, ".write_test"))
	assert.True(t, os.IsNotExist(err))
}

func TestPerformStartupChecks_FileInsteadOfDir(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := config.Default()
	cfg.DataDir = root
	cfg.Recordings.Dir = blocker
	cfg.Recordings.ThumbnailsDir = filepath.Join(root, "thumbs")

	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
}
