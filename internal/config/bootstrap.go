// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	basalterr "github.com/basalt-chat/basalt/pkg/errors"
)

//go:embed basalt.yaml.default
var DefaultConfigYAML []byte

// DefaultDir returns ~/.config/basalt.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", basalterr.Errorf(basalterr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "basalt"), nil
}

// DefaultConfigPath returns ~/.config/basalt/basalt.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "basalt.yaml"), nil
}

// DefaultTranscriptPath returns ~/.config/basalt/transcripts.db.
func DefaultTranscriptPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcripts.db"), nil
}

// WriteDefault writes the commented default config to path unless a file is
// already there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, basalterr.Errorf(basalterr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		return false, basalterr.Errorf(basalterr.CodeConfigLoadReadFailure, "writing default config: %w", err)
	}
	return true, nil
}

// BootstrapConfig writes the default config to the default path on first
// run. Failures are logged and skipped; an empty result means nothing was
// written.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	written, err := WriteDefault(cfgPath)
	if err != nil {
		slog.Debug("skipping config bootstrap", "path", cfgPath, "error", err)
		return ""
	}
	if !written {
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
