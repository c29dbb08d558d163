// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package camera holds the camera record as seen by the monitoring and
// recording core, plus the store contract it is read and updated through.
package camera

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// Status is the reachability state of a camera.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
	StatusError   Status = "ERROR"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusUnknown, StatusOnline, StatusOffline, StatusError}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnline, StatusOffline, StatusError:
		return true
	}
	return false
}

// Credentials authenticate against the camera stream.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Empty reports whether no credentials are configured.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// Camera is a network camera under management.
type Camera struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	URL         string      `json:"url"`
	Credentials Credentials `json:"credentials"`
	Status      Status      `json:"status"`
	LastSeen    *time.Time  `json:"lastSeen,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// AuthenticatedURL returns the stream URL with credentials embedded as userinfo.
// URLs that already carry userinfo, or cannot be parsed, are returned unchanged.
func (c Camera) AuthenticatedURL() string {
	return WithCredentials(c.URL, c.Credentials)
}

// WithCredentials embeds creds into rawURL as user:pass@.
func WithCredentials(rawURL string, creds Credentials) string {
	if creds.Empty() {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.User != nil || u.Host == "" {
		return rawURL
	}
	if creds.Password == "" {
		u.User = url.User(creds.Username)
	} else {
		u.User = url.UserPassword(creds.Username, creds.Password)
	}
	return u.String()
}

// RedactedURL strips any userinfo so the URL is safe to log.
func RedactedURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	return u.String()
}

// ErrNotFound is returned by Update for an unknown camera.
var ErrNotFound = errors.New("camera not found")

// ErrExists is returned by Add for a duplicate ID.
var ErrExists = errors.New("camera already exists")

// Store is the camera repository consumed by the core.
// GetByID returns (nil, nil) when the camera does not exist.
type Store interface {
	List(ctx context.Context) ([]Camera, error)
	GetByID(ctx context.Context, id string) (*Camera, error)
	Add(ctx context.Context, cam Camera) error
	Update(ctx context.Context, cam Camera) (*Camera, error)
}
