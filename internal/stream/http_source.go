// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/camfleet/internal/domain/camera"
)

const defaultChunkSize = 64 * 1024

// ErrUnsupportedScheme is returned for stream URLs no Source can open.
var ErrUnsupportedScheme = errors.New("unsupported stream scheme")

// HTTPSource pulls an HTTP(S) camera stream (MJPEG, MPEG-TS over HTTP) and
// hands out fixed size chunks. It does not demux.
type HTTPSource struct {
	url       string
	creds     camera.Credentials
	client    *http.Client
	chunkSize int

	mu      sync.Mutex
	state   State
	err     error
	resp    *http.Response
	cancel  context.CancelFunc
	started bool

	paused     atomic.Bool
	frames     chan Frame
	readerDone chan struct{}
	closeOnce  sync.Once
}

// NewHTTPSource creates a source for rawURL. A nil client uses http.DefaultClient.
func NewHTTPSource(rawURL string, creds camera.Credentials, client *http.Client, chunkSize int) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &HTTPSource{
		url:        rawURL,
		creds:      creds,
		client:     client,
		chunkSize:  chunkSize,
		state:      StateDisconnected,
		frames:     make(chan Frame, 16),
		readerDone: make(chan struct{}),
	}
}

func (s *HTTPSource) setState(st State, err error) {
	s.mu.Lock()
	s.state = st
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
}

// State implements Source.
func (s *HTTPSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err implements Source.
func (s *HTTPSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Frames implements Source.
func (s *HTTPSource) Frames() <-chan Frame { return s.frames }

// Connect opens the HTTP stream. The connection outlives ctx and is released by Disconnect.
func (s *HTTPSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.resp != nil {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		s.setState(StateError, err)
		return err
	}
	if !s.creds.Empty() {
		req.SetBasicAuth(s.creds.Username, s.creds.Password)
	}

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.client.Do(req) // #nosec G107 -- camera URL comes from the camera store
		done <- result{resp, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		cancel()
		res = <-done
		if res.resp != nil {
			_ = res.resp.Body.Close()
		}
		s.setState(StateError, ctx.Err())
		return ctx.Err()
	}

	if res.err != nil {
		cancel()
		s.setState(StateError, res.err)
		return res.err
	}
	if res.resp.StatusCode < 200 || res.resp.StatusCode > 299 {
		_ = res.resp.Body.Close()
		cancel()
		err := fmt.Errorf("stream returned HTTP %d", res.resp.StatusCode)
		s.setState(StateError, err)
		return err
	}

	s.mu.Lock()
	s.resp = res.resp
	s.cancel = cancel
	s.state = StateConnected
	s.mu.Unlock()
	return nil
}

// Play starts or resumes chunk delivery.
func (s *HTTPSource) Play(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resp == nil || !s.state.Ready() {
		return fmt.Errorf("play: source is %s", s.state)
	}
	s.paused.Store(false)
	s.state = StatePlaying
	if !s.started {
		s.started = true
		go s.readLoop(s.resp.Body)
	}
	return nil
}

// Pause stops delivery. Data read while paused is discarded.
func (s *HTTPSource) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		return fmt.Errorf("pause: source is %s", s.state)
	}
	s.paused.Store(true)
	s.state = StateConnected
	return nil
}

func (s *HTTPSource) readLoop(body io.Reader) {
	defer close(s.readerDone)
	defer s.closeFrames()

	buf := make([]byte, s.chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 && !s.paused.Load() {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.frames <- Frame{Data: chunk}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				s.setState(StateDisconnected, nil)
			} else {
				s.setState(StateError, err)
			}
			return
		}
	}
}

func (s *HTTPSource) closeFrames() {
	s.closeOnce.Do(func() { close(s.frames) })
}

// Disconnect aborts the request and waits for the reader to stop.
// Frames not yet consumed are dropped.
func (s *HTTPSource) Disconnect() error {
	s.mu.Lock()
	cancel, resp, started := s.cancel, s.resp, s.started
	s.cancel, s.resp = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	if started {
		// Unblock a reader stuck on a full channel.
		for {
			select {
			case <-s.readerDone:
				s.setState(StateDisconnected, nil)
				return nil
			case _, ok := <-s.frames:
				if !ok {
					<-s.readerDone
					s.setState(StateDisconnected, nil)
					return nil
				}
			}
		}
	}
	s.closeFrames()
	s.setState(StateDisconnected, nil)
	return nil
}

// Close implements Source.
func (s *HTTPSource) Close() error {
	return s.Disconnect()
}

// HTTPFactory opens HTTPSource for http and https cameras.
type HTTPFactory struct {
	Client    *http.Client
	ChunkSize int
}

// NewSource implements SourceFactory.
func (f HTTPFactory) NewSource(cam camera.Camera) (Source, error) {
	u, err := url.Parse(cam.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPSource(cam.URL, cam.Credentials, f.Client, f.ChunkSize), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}
