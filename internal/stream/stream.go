// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stream defines the camera stream capabilities the core consumes:
// a reachability probe and a frame source for raw capture.
package stream

import (
	"context"
	"errors"

	"github.com/ManuGH/camfleet/internal/domain/camera"
)

// ErrProbeFailure marks an unreachable camera. It feeds the health state
// machine and is never returned to API callers.
var ErrProbeFailure = errors.New("camera unreachable")

// Info describes one stream advertised by a camera.
type Info struct {
	Index  int     `json:"index"`
	Type   string  `json:"type"`
	Codec  string  `json:"codec"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	FPS    float64 `json:"fps,omitempty"`
}

// Result is the outcome of a connection test.
type Result struct {
	OK           bool     `json:"ok"`
	Streams      []Info   `json:"streams,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Code         int      `json:"code,omitempty"`
}

// Success builds a successful Result.
func Success(streams []Info, capabilities ...string) Result {
	return Result{OK: true, Streams: streams, Capabilities: capabilities}
}

// Failure builds a failed Result.
func Failure(reason string, code int) Result {
	return Result{Reason: reason, Code: code}
}

// Err returns nil on success, otherwise an error wrapping ErrProbeFailure.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	if r.Reason == "" {
		return ErrProbeFailure
	}
	return &ProbeError{Reason: r.Reason, Code: r.Code}
}

// ProbeError carries the failure reason of a connection test.
type ProbeError struct {
	Reason string
	Code   int
}

func (e *ProbeError) Error() string { return "camera unreachable: " + e.Reason }

// Unwrap makes errors.Is(err, ErrProbeFailure) hold.
func (e *ProbeError) Unwrap() error { return ErrProbeFailure }

// Prober answers whether a camera stream is reachable.
type Prober interface {
	TestConnection(ctx context.Context, url string, creds camera.Credentials) Result
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, url string, creds camera.Credentials) Result

// TestConnection calls f.
func (f ProbeFunc) TestConnection(ctx context.Context, url string, creds camera.Credentials) Result {
	return f(ctx, url, creds)
}

// State is the connection state of a Source.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StatePlaying      State = "PLAYING"
	StateError        State = "ERROR"
)

// Ready reports whether the source can deliver frames.
func (s State) Ready() bool {
	return s == StateConnected || s == StatePlaying
}

// Frame is one unit of raw media data.
type Frame struct {
	Data  []byte
	Audio bool
}

// Source is a live connection to one camera stream.
// Frames is closed when the source stops delivering; Err then reports why.
type Source interface {
	Connect(ctx context.Context) error
	State() State
	Play(ctx context.Context) error
	Pause() error
	Frames() <-chan Frame
	Err() error
	Disconnect() error
	Close() error
}

// SourceFactory creates a Source for a camera.
type SourceFactory interface {
	NewSource(cam camera.Camera) (Source, error)
}

// SourceFactoryFunc adapts a function to SourceFactory.
type SourceFactoryFunc func(cam camera.Camera) (Source, error)

// NewSource calls f.
func (f SourceFactoryFunc) NewSource(cam camera.Camera) (Source, error) {
	return f(cam)
}
