// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package admission

import (
	"errors"
	"io/fs"
)

var errUnsupportedPlatform = errors.New("filesystem capacity is not available on this platform")

// Usage is not implemented on Windows.
func (OSDiskStats) Usage(string) (uint64, uint64, error) {
	return 0, 0, errUnsupportedPlatform
}

func errorsIsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
