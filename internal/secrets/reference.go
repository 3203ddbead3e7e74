// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"strings"

	"github.com/spf13/viper"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

const scheme = "keyring://"

// IsReference reports whether value is a keyring://service/key reference.
func IsReference(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// Reference builds the keyring:// reference for key under DefaultService.
func Reference(key string) string {
	return scheme + DefaultService + "/" + key
}

// ParseReference splits a keyring://service/key reference.
func ParseReference(ref string) (service, key string, err error) {
	if !IsReference(ref) {
		return "", "", lecternerr.Errorf(lecternerr.CodeSecretReferenceInvalid, "%q is not a keyring reference", ref)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(ref, scheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", lecternerr.Errorf(lecternerr.CodeSecretReferenceInvalid,
			"malformed keyring reference %q, want keyring://service/key", ref)
	}
	return service, key, nil
}

// Resolve returns value unchanged unless it is a keyring reference, in
// which case the referenced secret is read from s.
func Resolve(s Store, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	service, key, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	secret, err := s.Get(service, key)
	if err != nil {
		return "", lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "resolving %s", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring reference among v's string values
// with the secret it names. All failures are collected and returned
// together, each naming its config key.
func ResolveViper(v *viper.Viper, s Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		raw, ok := v.Get(key).(string)
		if !ok || !IsReference(raw) {
			continue
		}
		secret, err := Resolve(s, raw)
		if err != nil {
			errs = append(errs, lecternerr.Wrapf(err, lecternerr.CodeSecretStoreFailure, "config key %s", key))
			continue
		}
		v.Set(key, secret)
	}
	if len(errs) == 0 {
		return nil
	}
	return lecternerr.Join(errs...)
}
