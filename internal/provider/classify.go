// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"net/http"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Classify wraps an SDK error with the provider.upstream code matching its
// HTTP status. A zero status means the request never got a response
// (network failure, deadline) and is treated as transient.
func Classify(name string, status int, err error) error {
	if err == nil {
		return nil
	}
	return lecternerr.Wrap(err, codeForStatus(status), name+" request failed",
		lecternerr.FieldProvider(name),
		lecternerr.Field("status", status),
	)
}

func codeForStatus(status int) lecternerr.Code {
	switch {
	case status == http.StatusTooManyRequests:
		return lecternerr.CodeProviderQuotaExceeded
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return lecternerr.CodeProviderUnauthorized
	case status == 0, status == http.StatusRequestTimeout, status >= 500:
		return lecternerr.CodeProviderTransient
	default:
		return lecternerr.CodeProviderRejected
	}
}

// EmptyResponse reports a reply that carried no text.
func EmptyResponse(name string) error {
	return lecternerr.New(lecternerr.CodeProviderResponseInvalid, name+" returned an empty response",
		lecternerr.FieldProvider(name))
}
