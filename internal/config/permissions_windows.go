// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

//go:build windows

package config

// InsecurePermissions always reports false on Windows, where access is
// governed by ACLs rather than mode bits.
func InsecurePermissions(string) (bool, error) {
	return false, nil
}

func WarnInsecurePermissions(string) {}
