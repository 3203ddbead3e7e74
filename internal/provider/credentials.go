// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sigil-dev/lectern/internal/secrets"
)

// CredentialSource reports the credential for a provider, if present.
// Implementations must read current state on every call.
type CredentialSource interface {
	Credential(name string) (string, bool)
}

// EnvCredentials reads credentials from the process environment. Values of
// the form keyring://service/key are resolved through Secrets.
type EnvCredentials struct {
	Vars    map[string][]string
	Secrets secrets.Store

	// lookup defaults to os.LookupEnv.
	lookup func(string) (string, bool)
}

// NewEnvCredentials returns a source reading vars, falling back to
// DefaultEnv for providers vars does not mention.
func NewEnvCredentials(vars map[string][]string, store secrets.Store) *EnvCredentials {
	merged := DefaultEnv()
	for name, names := range vars {
		if len(names) > 0 {
			merged[name] = names
		}
	}
	return &EnvCredentials{Vars: merged, Secrets: store, lookup: os.LookupEnv}
}

func (e *EnvCredentials) Credential(name string) (string, bool) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	for _, env := range e.Vars[name] {
		val, ok := lookup(env)
		val = strings.TrimSpace(val)
		if !ok || val == "" {
			continue
		}
		if !secrets.IsReference(val) {
			return val, true
		}
		if e.Secrets == nil {
			slog.Warn("keyring reference without a secret store", "provider", name, "env", env)
			continue
		}
		resolved, err := secrets.Resolve(e.Secrets, val)
		if err != nil {
			slog.Warn("credential reference did not resolve", "provider", name, "env", env, "error", err)
			continue
		}
		if resolved != "" {
			return resolved, true
		}
	}
	return "", false
}

// StaticCredentials is a fixed map, mostly useful in tests.
type StaticCredentials map[string]string

func (s StaticCredentials) Credential(name string) (string, bool) {
	v, ok := s[name]
	return v, ok && v != ""
}

// Snapshot records provider availability at one instant.
type Snapshot map[string]bool

// TakeSnapshot queries src once for each name.
func TakeSnapshot(src CredentialSource, names []string) Snapshot {
	snap := make(Snapshot, len(names))
	for _, n := range names {
		_, ok := src.Credential(n)
		snap[n] = ok
	}
	return snap
}
