// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"os"
	"path/filepath"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

//go:embed lectern.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/lectern/lectern.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", lecternerr.Errorf(lecternerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "lectern", "lectern.yaml"), nil
}

// WriteDefault writes the commented default config to path. An existing
// file is left alone unless force is set.
func WriteDefault(path string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, lecternerr.Errorf(lecternerr.CodeConfigLoadReadFailure, "creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		return false, lecternerr.Errorf(lecternerr.CodeConfigLoadReadFailure, "writing %s: %w", path, err)
	}
	return true, nil
}
