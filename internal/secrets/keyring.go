// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps provider API keys in the OS keyring and resolves
// keyring:// references found in configuration and environment values.
package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// DefaultService is the keyring service lectern stores its keys under.
const DefaultService = "lectern"

// indexKey holds a JSON list of the key names stored for a service, since
// the keyring API cannot enumerate entries.
const indexKey = "__index__"

// Store reads and writes named secrets.
type Store interface {
	Set(service, key, value string) error
	Get(service, key string) (string, error)
	Delete(service, key string) error
	List(service string) ([]string, error)
}

// Keyring is a Store backed by the OS keyring (Keychain, Secret Service or
// Credential Manager).
type Keyring struct{}

var _ Store = Keyring{}

func (Keyring) Set(service, key, value string) error {
	if err := checkName(service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "storing %s/%s", service, key)
	}

	names, err := loadIndex(service)
	if err != nil {
		return err
	}
	if slices.Contains(names, key) {
		return nil
	}
	return saveIndex(service, append(names, key))
}

func (Keyring) Get(service, key string) (string, error) {
	if err := checkName(service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", lecternerr.Errorf(lecternerr.CodeSecretNotFound, "no secret stored for %s/%s", service, key)
	}
	if err != nil {
		return "", lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "reading %s/%s", service, key)
	}
	return val, nil
}

func (Keyring) Delete(service, key string) error {
	if err := checkName(service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return lecternerr.Errorf(lecternerr.CodeSecretNotFound, "no secret stored for %s/%s", service, key)
	}
	if err != nil {
		return lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "deleting %s/%s", service, key)
	}

	names, err := loadIndex(service)
	if err != nil {
		return err
	}
	return saveIndex(service, slices.DeleteFunc(names, func(n string) bool { return n == key }))
}

// List returns the stored key names for service, sorted.
func (Keyring) List(service string) ([]string, error) {
	names, err := loadIndex(service)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func checkName(service, key string) error {
	if service == "" || key == "" {
		return lecternerr.New(lecternerr.CodeSecretReferenceInvalid, "secret service and key must be non-empty")
	}
	if key == indexKey {
		return lecternerr.Errorf(lecternerr.CodeSecretReferenceInvalid, "%q is reserved", indexKey)
	}
	return nil
}

func loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "reading key index for %s", service)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "decoding key index for %s", service)
	}
	return names, nil
}

func saveIndex(service string, names []string) error {
	if len(names) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "writing key index for %s", service)
	}
	return nil
}
