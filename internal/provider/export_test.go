// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import "github.com/sigil-dev/lectern/internal/secrets"

// NewEnvCredentialsWithLookup builds an EnvCredentials over a fake
// environment.
func NewEnvCredentialsWithLookup(vars map[string][]string, store secrets.Store, lookup func(string) (string, bool)) *EnvCredentials {
	c := NewEnvCredentials(vars, store)
	c.lookup = lookup
	return c
}
