// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

//go:build !windows

package config

import (
	"log/slog"
	"os"
)

// readableByOthers masks the group and world read bits.
const readableByOthers os.FileMode = 0o044

// InsecurePermissions reports whether the file at path can be read by users
// other than its owner. API keys may be stored in it.
func InsecurePermissions(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Mode().Perm()&readableByOthers != 0, nil
}

// WarnInsecurePermissions logs a warning when the config file at path is
// readable by other users. An empty path is ignored.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	insecure, err := InsecurePermissions(path)
	if err != nil {
		slog.Debug("config permission check skipped", "path", path, "error", err)
		return
	}
	if insecure {
		slog.Warn("config file is readable by other users; api keys in it may leak",
			"path", path,
			"recommended", "0600")
	}
}
