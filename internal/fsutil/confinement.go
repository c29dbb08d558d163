// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil guards file operations on paths read back from the store.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that resolve outside the root directory.
var ErrOutsideRoot = errors.New("path escapes root")

// ConfineAbsPath resolves symlinks in target and checks the result lies under
// root. It returns the resolved path. target need not exist.
func ConfineAbsPath(root, target string) (string, error) {
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("target path must be absolute: %s", target)
	}
	target = filepath.Clean(target)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}

	realPath, err := resolve(target)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	return realPath, nil
}

// resolve follows symlinks for an existing path, or for its parent when the
// path itself is missing.
func resolve(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		rp, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		return rp, nil
	}
	dir := filepath.Dir(path)
	rp, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return filepath.Join(rp, filepath.Base(path)), nil
	}
	if _, statErr := os.Stat(dir); statErr == nil {
		return "", fmt.Errorf("failed to resolve parent path: %w", err)
	}
	return path, nil
}

// RemoveConfined removes target if it lies under root. A missing file is
// not an error. It returns the size of the removed file.
func RemoveConfined(root, target string) (int64, error) {
	if target == "" {
		return 0, nil
	}
	resolved, err := ConfineAbsPath(root, target)
	if err != nil {
		return 0, err
	}
	info, err := os.Lstat(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", target)
	}
	if err := os.Remove(resolved); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}
	return info.Size(), nil
}
