// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission gates new recordings on the space left in the recordings directory.
package admission

import (
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/log"
)

// DefaultWarningThreshold is the usage ratio at which a warning is raised.
const DefaultWarningThreshold = 0.8

// DiskStats reads filesystem capacity for a directory.
type DiskStats interface {
	// Usage returns total and available bytes of the filesystem holding dir.
	Usage(dir string) (total, available uint64, err error)
	// DirSize returns the recursive size of dir in bytes.
	DirSize(dir string) (int64, error)
}

// StorageInfo is a snapshot of recordings storage.
type StorageInfo struct {
	Total          int64   `json:"totalBytes"`
	Used           int64   `json:"usedBytes"`
	Available      int64   `json:"availableBytes"`
	UsagePercent   float64 `json:"usagePercent"`
	Quota          int64   `json:"quotaBytes,omitempty"`
	TotalHuman     string  `json:"total"`
	UsedHuman      string  `json:"used"`
	AvailableHuman string  `json:"available"`
	WarningReached bool    `json:"warningReached"`
}

// StorageGuard answers admission questions about the recordings directory.
// Every call is a fresh read; the guard keeps no session state.
type StorageGuard struct {
	dir       string
	threshold float64
	quota     int64
	stats     DiskStats
	logger    zerolog.Logger

	mu sync.RWMutex
}

// Option configures a StorageGuard.
type Option func(*StorageGuard)

// WithWarningThreshold sets the usage ratio (0..1) treated as a warning.
func WithWarningThreshold(ratio float64) Option {
	return func(g *StorageGuard) {
		if ratio > 0 && ratio <= 1 {
			g.threshold = ratio
		}
	}
}

// WithQuota caps recordings storage at maxBytes regardless of free disk space.
func WithQuota(maxBytes int64) Option {
	return func(g *StorageGuard) {
		if maxBytes > 0 {
			g.quota = maxBytes
		}
	}
}

// WithDiskStats replaces the filesystem reader.
func WithDiskStats(s DiskStats) Option {
	return func(g *StorageGuard) {
		if s != nil {
			g.stats = s
		}
	}
}

// NewStorageGuard creates a guard for dir.
func NewStorageGuard(dir string, opts ...Option) *StorageGuard {
	g := &StorageGuard{
		dir:       dir,
		threshold: DefaultWarningThreshold,
		stats:     OSDiskStats{},
		logger:    log.WithComponent("storage"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetLimits updates threshold and quota, for config reloads.
func (g *StorageGuard) SetLimits(threshold float64, quota int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if threshold > 0 && threshold <= 1 {
		g.threshold = threshold
	}
	if quota >= 0 {
		g.quota = quota
	}
}

func (g *StorageGuard) limits() (float64, int64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold, g.quota
}

// Dir returns the guarded directory.
func (g *StorageGuard) Dir() string { return g.dir }

// Available returns free bytes on the filesystem, or 0 if it cannot be read.
func (g *StorageGuard) Available() int64 {
	_, avail, err := g.stats.Usage(g.dir)
	if err != nil {
		g.logger.Warn().Err(err).Str(log.FieldEvent, "storage.stat_failed").Str(log.FieldPath, g.dir).Msg("cannot read filesystem capacity")
		return 0
	}
	return clampInt64(avail)
}

// Used returns the bytes occupied by the recordings directory.
func (g *StorageGuard) Used() int64 {
	n, err := g.stats.DirSize(g.dir)
	if err != nil {
		g.logger.Warn().Err(err).Str(log.FieldEvent, "storage.walk_failed").Str(log.FieldPath, g.dir).Msg("cannot size recordings directory")
		return 0
	}
	return n
}

// HasEnoughSpace reports whether estimate bytes fit. A configured quota is
// checked first, then free filesystem space.
func (g *StorageGuard) HasEnoughSpace(estimate int64) bool {
	_, quota := g.limits()
	if quota > 0 {
		if quota-g.Used() < estimate {
			return false
		}
	}
	return g.Available() >= estimate
}

// UsageRatio returns used/total, where total is the quota if set.
func (g *StorageGuard) UsageRatio() float64 {
	_, quota := g.limits()
	used := g.Used()
	if quota > 0 {
		return float64(used) / float64(quota)
	}
	total, _, err := g.stats.Usage(g.dir)
	if err != nil || total == 0 {
		return 0
	}
	return float64(used) / float64(total)
}

// IsWarningThresholdExceeded reports usage >= warning threshold.
func (g *StorageGuard) IsWarningThresholdExceeded() bool {
	threshold, _ := g.limits()
	return g.UsageRatio() >= threshold
}

// Info returns a formatted snapshot of storage usage.
func (g *StorageGuard) Info() StorageInfo {
	threshold, quota := g.limits()
	total, avail, err := g.stats.Usage(g.dir)
	if err != nil {
		g.logger.Warn().Err(err).Str(log.FieldEvent, "storage.stat_failed").Msg("cannot read filesystem capacity")
	}
	used := g.Used()

	info := StorageInfo{
		Total:     clampInt64(total),
		Used:      used,
		Available: clampInt64(avail),
		Quota:     quota,
	}
	denominator := info.Total
	if quota > 0 {
		denominator = quota
	}
	if denominator > 0 {
		info.UsagePercent = float64(used) / float64(denominator) * 100
	}
	info.WarningReached = info.UsagePercent/100 >= threshold && denominator > 0
	info.TotalHuman = humanize.IBytes(uint64(info.Total))
	info.UsedHuman = humanize.IBytes(uint64(max(used, 0)))
	info.AvailableHuman = humanize.IBytes(uint64(info.Available))
	return info
}

// OSDiskStats reads capacity from the operating system.
type OSDiskStats struct{}

// DirSize walks dir and sums regular file sizes. A missing dir is size 0.
func (OSDiskStats) DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil {
				return err
			}
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	if err != nil && errorsIsNotExist(err) {
		return 0, nil
	}
	return total, err
}

func clampInt64(v uint64) int64 {
	const maxInt64 = 1<<63 - 1
	if v > maxInt64 {
		return maxInt64
	}
	return int64(v)
}
