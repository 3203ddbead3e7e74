// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
//
// Codes follow <domain>.<entity>[.<operation>].<reason>. The reason suffix
// drives the Is* classification helpers and HTTPStatus.
type Code string

const (
	CodeStoreCollectionNotFound   Code = "store.collection.not_found"
	CodeStoreCollectionInvalid    Code = "store.collection.invalid_input"
	CodeStoreDimensionMismatch    Code = "store.ingest.dimension_mismatch"
	CodeStoreQueryDimension       Code = "store.query.dimension_mismatch"
	CodeStoreIngestBatchFailure   Code = "store.ingest.batch.failure"
	CodeStoreQueryInvalid         Code = "store.query.invalid_input"
	CodeStoreDatabaseFailure      Code = "store.database.failure"
	CodeStoreBackendUnsupported   Code = "store.backend.unsupported"
	CodeStoreBackendUnreachable   Code = "store.backend.upstream.failure"
	CodeStoreMetadataInvalid      Code = "store.metadata.invalid_format"
	CodeIngestSourceInvalidFormat Code = "ingest.source.invalid_format"
	CodeIngestSourceReadFailure   Code = "ingest.source.read.failure"

	CodeEmbedRequestInvalid  Code = "embed.request.invalid_input"
	CodeEmbedUpstreamFailure Code = "embed.upstream.failure"
	CodeEmbedResponseInvalid Code = "embed.response.invalid"
	CodeEmbedCacheFailure    Code = "embed.cache.failure"

	CodeRetrievalQueryInvalid Code = "retrieval.query.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeProviderRequestInvalid     Code = "provider.request.invalid"
	CodeProviderResponseInvalid    Code = "provider.response.invalid"
	CodeProviderNotFound           Code = "provider.registry.not_found"
	CodeProviderUnavailable        Code = "provider.credential.unavailable"
	CodeProviderNoneAvailable      Code = "provider.routing.none_available"
	CodeProviderQuotaExceeded      Code = "provider.upstream.quota_exceeded"
	CodeProviderUnauthorized       Code = "provider.upstream.unauthorized"
	CodeProviderTransient          Code = "provider.upstream.transient"
	CodeProviderRejected           Code = "provider.upstream.rejected"
	CodeProviderConfigInvalid      Code = "provider.config.invalid"
	CodeProviderSetupFailure       Code = "provider.setup.failure"
	CodeSecretStoreFailure         Code = "secret.store.failure"
	CodeSecretNotFound             Code = "secret.entry.not_found"
	CodeSecretReferenceInvalid     Code = "secret.reference.invalid_format"
	CodeAnswerGenerationFailure    Code = "answer.generation.failure"
	CodePipelineQuestionInvalid    Code = "pipeline.question.invalid_input"
	CodeServerRequestInvalid       Code = "server.request.invalid"
	CodeServerInternalFailure      Code = "server.internal.failure"
	CodeServerConfigInvalid        Code = "server.config.invalid"
	CodeServerStartFailure         Code = "server.start.failure"
	CodeServerShutdownFailure      Code = "server.shutdown.failure"
	CodeCLISetupFailure            Code = "cli.setup.failure"
	CodeCLIInputInvalid            Code = "cli.input.invalid"
	CodeCLIOutputFailure           Code = "cli.output.failure"
	CodeTelemetryRegistrationError Code = "telemetry.registry.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldCollection(value string) Attr {
	return Field("collection", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

func FieldBatch(value int) Attr {
	return Field("batch", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsDimensionMismatch reports a vector whose length differs from the
// collection's established dimensionality.
func IsDimensionMismatch(err error) bool {
	return reason(CodeOf(err)) == "dimension_mismatch"
}

// IsProviderUnavailable reports an explicitly requested provider whose
// credential is absent.
func IsProviderUnavailable(err error) bool {
	return HasCode(err, CodeProviderUnavailable)
}

func IsNoProviderAvailable(err error) bool {
	return HasCode(err, CodeProviderNoneAvailable)
}

func IsQuotaExceeded(err error) bool {
	return reason(CodeOf(err)) == "quota_exceeded"
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden"
}

func IsTransient(err error) bool {
	return reason(CodeOf(err)) == "transient"
}

// IsProviderFailure reports any error raised by a generation backend after a
// request was sent.
func IsProviderFailure(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "provider.upstream.")
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err), IsDimensionMismatch(err):
		return http.StatusBadRequest
	case IsProviderUnavailable(err), IsNoProviderAvailable(err):
		return http.StatusServiceUnavailable
	case IsUnauthorized(err):
		return http.StatusBadGateway
	case IsQuotaExceeded(err):
		return http.StatusTooManyRequests
	case IsTransient(err), HasCode(err, CodeProviderRejected), IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
