// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package chat

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Service that is not an internal
// failure matches exactly one of these with errors.Is.
var (
	// ErrValidation is returned for malformed input: empty or oversized
	// content, bad ids, unsupported message types.
	ErrValidation = errors.New("validation failed")

	// ErrNotMember is returned when the caller is not a participant.
	ErrNotMember = errors.New("not a member of this conversation")

	// ErrForbidden is returned when the caller is a participant but may not
	// perform the operation, e.g. editing another user's message.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned for unknown or deleted conversations and
	// messages.
	ErrNotFound = errors.New("not found")

	// ErrInvalidParticipant is returned when a conversation would contain
	// the same user twice, an unknown user, or an unapproved user.
	ErrInvalidParticipant = errors.New("invalid participant")
)

// Content validation failures. Both match ErrValidation.
var (
	ErrEmptyContent   = fmt.Errorf("%w: content is empty", ErrValidation)
	ErrContentTooLong = fmt.Errorf("%w: content is too long", ErrValidation)
)

// ErrUnknownUser is returned by a UserDirectory when no profile exists.
var ErrUnknownUser = errors.New("unknown user")

// Error carries the operation and a human readable detail alongside one of
// the error kinds above.
type Error struct {
	Kind error
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Msg
}

// Unwrap exposes Kind to errors.Is.
func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds a validation error. Collaborators use it to report bad
// input they detect, such as an unknown file key.
func Invalid(op, format string, args ...any) error {
	return newError(ErrValidation, op, format, args...)
}

// Message returns the detail to show to clients for err. Internal errors
// yield an empty string.
func Message(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Msg
	}
	for _, kind := range []error{ErrEmptyContent, ErrContentTooLong} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ""
}
