// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/ManuGH/camfleet/internal/domain/camera"
)

// ErrNoFrames is returned by Play on sources that only verify reachability.
var ErrNoFrames = errors.New("source does not deliver frames")

// ProbeSource connects by running a Prober and never delivers frames. It
// backs cameras whose transport only the external encoder speaks (RTSP).
type ProbeSource struct {
	prober Prober
	url    string
	creds  camera.Credentials

	mu     sync.Mutex
	state  State
	err    error
	frames chan Frame
	once   sync.Once
}

// NewProbeSource returns a Source for cam backed by p.
func NewProbeSource(p Prober, cam camera.Camera) *ProbeSource {
	return &ProbeSource{
		prober: p,
		url:    cam.URL,
		creds:  cam.Credentials,
		state:  StateDisconnected,
		frames: make(chan Frame),
	}
}

func (s *ProbeSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateConnecting
	s.mu.Unlock()

	res := s.prober.TestConnection(ctx, s.url, s.creds)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := res.Err(); err != nil {
		s.state = StateError
		s.err = err
		return err
	}
	s.state = StateConnected
	return nil
}

func (s *ProbeSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ProbeSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ProbeSource) Play(context.Context) error { return ErrNoFrames }
func (s *ProbeSource) Pause() error                { return ErrNoFrames }
func (s *ProbeSource) Frames() <-chan Frame        { return s.frames }

func (s *ProbeSource) Disconnect() error {
	s.once.Do(func() { close(s.frames) })
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	return nil
}

func (s *ProbeSource) Close() error { return s.Disconnect() }

// DefaultFactory opens an HTTPSource for http(s) cameras and a ProbeSource
// for everything else.
type DefaultFactory struct {
	HTTP   HTTPFactory
	Prober Prober
}

// NewSource implements SourceFactory.
func (f DefaultFactory) NewSource(cam camera.Camera) (Source, error) {
	u, err := url.Parse(cam.URL)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return f.HTTP.NewSource(cam)
		}
	}
	if f.Prober == nil {
		return nil, ErrUnsupportedScheme
	}
	return NewProbeSource(f.Prober, cam), nil
}
