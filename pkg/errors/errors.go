// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeChatSendInvalidInput Code = "chat.send.invalid_input"
	CodeChatSendConflict     Code = "chat.send.conflict"
	CodeChatSendFailure      Code = "chat.send.failure"

	CodeClientRequestInvalid     Code = "client.request.invalid"
	CodeClientResponseInvalid    Code = "client.response.invalid"
	CodeClientTransportFailure   Code = "client.transport.upstream.failure"
	CodeClientStreamInterrupted  Code = "client.stream.upstream.interrupted"
	CodeClientTransportTimeout   Code = "client.transport.timeout"
	CodeClientHealthUnavailable  Code = "client.health.upstream.failure"
	CodeClientTransportUnknown   Code = "client.transport.unsupported"
	CodeClientProviderKeyMissing Code = "client.provider.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeTranscriptOpenFailure  Code = "transcript.open.failure"
	CodeTranscriptWriteFailure Code = "transcript.write.failure"
	CodeTranscriptQueryFailure Code = "transcript.query.failure"
	CodeTranscriptInvalidInput Code = "transcript.invalid_input"

	CodeEventsPublishFailure Code = "events.publish.failure"

	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
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

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldMessageID(value string) Attr {
	return Field("message_id", value)
}

// FieldStatus records the HTTP status returned by the remote endpoint.
func FieldStatus(value int) Attr {
	return Field("status", value)
}

func FieldTransport(value string) Attr {
	return Field("transport", value)
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
		code = CodeChatSendFailure
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

// StatusOf returns the remote HTTP status attached to a transport error.
func StatusOf(err error) (int, bool) {
	status, ok := FieldsOf(err)["status"].(int)
	return status, ok
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

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

// IsValidation reports whether a send was rejected before any network attempt.
func IsValidation(err error) bool {
	return HasCode(err, CodeChatSendInvalidInput)
}

// IsConcurrentSend reports whether a send was rejected because another was in flight.
func IsConcurrentSend(err error) bool {
	return HasCode(err, CodeChatSendConflict)
}

func IsStreamInterrupted(err error) bool {
	return HasCode(err, CodeClientStreamInterrupted)
}

// IsTransport reports whether err came from the exchange with the remote
// endpoint. An interrupted stream or an undecodable reply is a transport
// failure too.
func IsTransport(err error) bool {
	return HasCode(err, CodeClientTransportFailure) ||
		HasCode(err, CodeClientTransportTimeout) ||
		HasCode(err, CodeClientResponseInvalid) ||
		IsStreamInterrupted(err)
}

func Join(errs ...error) error {
	return oops.Code(CodeChatSendFailure).Wrap(stderrors.Join(errs...))
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
