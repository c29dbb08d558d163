// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recording defines the recording record, its media settings and the
// failure kinds returned by the recording lifecycle.
package recording

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a recording.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Format is the output container.
type Format string

const (
	FormatMP4 Format = "MP4"
	FormatMKV Format = "MKV"
	FormatAVI Format = "AVI"
	FormatMOV Format = "MOV"
	FormatFLV Format = "FLV"
)

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatMKV:
		return "mkv"
	case FormatAVI:
		return "avi"
	case FormatMOV:
		return "mov"
	case FormatFLV:
		return "flv"
	default:
		return "mp4"
	}
}

// ContentType returns the MIME type of the container.
func (f Format) ContentType() string {
	switch f {
	case FormatMKV:
		return "video/x-matroska"
	case FormatAVI:
		return "video/x-msvideo"
	case FormatMOV:
		return "video/quicktime"
	case FormatFLV:
		return "video/x-flv"
	default:
		return "video/mp4"
	}
}

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case FormatMP4, FormatMKV, FormatAVI, FormatMOV, FormatFLV:
		return f, nil
	}
	return "", fmt.Errorf("unknown recording format %q", s)
}

// Quality is the encoding tier.
type Quality string

const (
	QualityLow    Quality = "LOW"
	QualityMedium Quality = "MEDIUM"
	QualityHigh   Quality = "HIGH"
	QualityUltra  Quality = "ULTRA"
)

const mib = int64(1024 * 1024)

// EstimatedSize is the expected one-hour footprint of a recording at quality q.
// It is what admission control checks against free space.
func (q Quality) EstimatedSize() int64 {
	switch q {
	case QualityLow:
		return 500 * mib
	case QualityHigh:
		return 2000 * mib
	case QualityUltra:
		return 4000 * mib
	default:
		return 1000 * mib
	}
}

// ParseQuality parses a case-insensitive quality name.
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToUpper(strings.TrimSpace(s)))
	switch q {
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return q, nil
	}
	return "", fmt.Errorf("unknown recording quality %q", s)
}

// Recording is the persisted record of one recording attempt.
type Recording struct {
	ID            string        `json:"id"`
	CameraID      string        `json:"cameraId"`
	CameraName    string        `json:"cameraName,omitempty"`
	Format        Format        `json:"format"`
	Quality       Quality       `json:"quality"`
	Status        Status        `json:"status"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       *time.Time    `json:"endTime,omitempty"`
	Duration      time.Duration `json:"duration"`
	FilePath      string        `json:"filePath,omitempty"`
	FileSize      int64         `json:"fileSize"`
	ThumbnailURL  string        `json:"thumbnailUrl,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// FileName builds the output file name {id}_{unixMillis}.{ext}.
func FileName(id string, at time.Time, f Format) string {
	return fmt.Sprintf("%s_%d.%s", id, at.UnixMilli(), f.Extension())
}

// ThumbnailURL is the public path a thumbnail for id is served under.
func ThumbnailURL(id string) string {
	return "/thumbnails/" + id + ".jpg"
}
