/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package component holds the types shared across the lifecycle manager,
// policy store, sandbox builder, and dispatcher: component identifiers,
// tool metadata, and the error kinds surfaced over the tool protocol.
package component

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the dispatcher can map it to a protocol
// response without string-matching error text.
type Kind string

const (
	KindUnknownComponent Kind = "unknown_component"
	KindAmbiguousTool    Kind = "ambiguous_tool"
	KindFunctionNotFound Kind = "function_not_found"
	KindArgumentMismatch Kind = "argument_mismatch"
	KindPermissionDenied Kind = "permission_denied"
	KindDigestMismatch   Kind = "digest_mismatch"
	KindResolveFailed    Kind = "resolve_failed"
	KindLoadFailure      Kind = "load_failure"
	KindBuiltinsDisabled Kind = "builtins_disabled"
	KindSchemaError      Kind = "schema_error"
)

// Error is a typed error carrying a Kind alongside the usual wrapped cause,
// so callers can errors.As into it instead of matching on message text.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, returning "" if err is not (or does
// not wrap) a *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
