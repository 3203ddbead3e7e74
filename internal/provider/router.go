// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"slices"
	"strings"
	"sync"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Choose picks a provider name from a credential snapshot.
//
// An explicit preference is returned when available and fails with
// provider.credential.unavailable otherwise, or provider.registry.not_found
// when the snapshot does not know the name. "auto" (or "") returns the first
// available name in order; ok is false when none is.
func Choose(snap Snapshot, preference string, order []string) (string, bool, error) {
	pref := strings.ToLower(strings.TrimSpace(preference))

	if pref == "" || pref == Auto {
		for _, name := range order {
			if snap[name] {
				return name, true, nil
			}
		}
		return "", false, nil
	}

	available, known := snap[pref]
	if !known {
		return "", false, lecternerr.New(lecternerr.CodeProviderNotFound,
			"unknown provider "+pref, lecternerr.FieldProvider(pref))
	}
	if !available {
		return "", false, lecternerr.New(lecternerr.CodeProviderUnavailable,
			"provider "+pref+" has no credential configured", lecternerr.FieldProvider(pref))
	}
	return pref, true, nil
}

type registration struct {
	factory  Factory
	settings Settings
}

// Router builds the provider chosen for each request. It holds no provider
// instances between calls and never retries.
type Router struct {
	mu    sync.RWMutex
	regs  map[string]registration
	creds CredentialSource
	order []string
}

// NewRouter returns a router reading credentials from creds. A nil or empty
// order means DefaultOrder.
func NewRouter(creds CredentialSource, order []string) *Router {
	if len(order) == 0 {
		order = DefaultOrder
	}
	return &Router{
		regs:  make(map[string]registration),
		creds: creds,
		order: slices.Clone(order),
	}
}

// Register makes a provider selectable under name.
func (r *Router) Register(name string, f Factory, s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[strings.ToLower(name)] = registration{factory: f, settings: s}
}

// Names lists registered providers in routing order, followed by any
// registered provider the order leaves out.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.regs))
	for _, n := range r.order {
		if _, ok := r.regs[n]; ok {
			names = append(names, n)
		}
	}
	var rest []string
	for n := range r.regs {
		if !slices.Contains(names, n) {
			rest = append(rest, n)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// Order returns the auto-selection order.
func (r *Router) Order() []string {
	return slices.Clone(r.order)
}

// Settings returns the settings registered for name.
func (r *Router) Settings(name string) (Settings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[name]
	return reg.settings, ok
}

// Snapshot reads current credential availability for every registered
// provider.
func (r *Router) Snapshot() Snapshot {
	return TakeSnapshot(r.creds, r.Names())
}

// Select chooses a provider for preference and constructs it. ok is false,
// with a nil error, when preference is auto and nothing is available.
func (r *Router) Select(ctx context.Context, preference string) (Provider, bool, error) {
	name, ok, err := Choose(r.Snapshot(), preference, r.order)
	if err != nil || !ok {
		return nil, ok, err
	}

	r.mu.RLock()
	reg := r.regs[name]
	r.mu.RUnlock()

	cred, present := r.creds.Credential(name)
	if !present {
		// Credential vanished between snapshot and construction.
		return nil, false, lecternerr.New(lecternerr.CodeProviderUnavailable,
			"provider "+name+" has no credential configured", lecternerr.FieldProvider(name))
	}

	p, err := reg.factory(ctx, cred, reg.settings)
	if err != nil {
		return nil, false, lecternerr.Wrap(err, lecternerr.CodeProviderSetupFailure,
			"constructing provider", lecternerr.FieldProvider(name))
	}
	return p, true, nil
}
