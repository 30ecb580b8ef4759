// Package gferr implements the filter-session error-kind sum type (§7 of
// the design: OK, EOS, NOT_SUPPORTED, ...). Grounded on the teacher's
// typed-error-plus-predicate idiom (cmn/cos.ErrNotFound / IsErrNotFound),
// generalized into a closed enum because §7 requires a fixed set of kinds
// rather than an open set of Go error types.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package gferr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	OK Kind = iota
	EOS
	NotSupported
	BadParam
	IOErr
	URLError
	ServiceError
	FilterNotFound
	OutOfMem
	NetworkEmpty       // normalized to OK at the boundary, per §7
	ProfileNotSupported // resolver retry with upstream blacklist
	PendingPacket       // packet must be re-queued at front of postponed queue
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case EOS:
		return "EOS"
	case NotSupported:
		return "NOT_SUPPORTED"
	case BadParam:
		return "BAD_PARAM"
	case IOErr:
		return "IO_ERR"
	case URLError:
		return "URL_ERROR"
	case ServiceError:
		return "SERVICE_ERROR"
	case FilterNotFound:
		return "FILTER_NOT_FOUND"
	case OutOfMem:
		return "OUT_OF_MEM"
	case NetworkEmpty:
		return "NETWORK_EMPTY"
	case ProfileNotSupported:
		return "PROFILE_NOT_SUPPORTED"
	case PendingPacket:
		return "PENDING_PACKET"
	default:
		return "UNKNOWN"
	}
}

// Error wraps a Kind with an optional cause, preserving the cause's stack
// via github.com/pkg/errors so the kind survives logging/propagation
// without forcing every call site into a type switch.
type Error struct {
	kind  Kind
	cause error
}

func New(k Kind, msg string, args ...any) *Error {
	var cause error
	if msg != "" {
		cause = errors.New(fmt.Sprintf(msg, args...))
	}
	return &Error{kind: k, cause: cause}
}

func Wrap(k Kind, cause error) *Error {
	if cause == nil {
		return &Error{kind: k}
	}
	return &Error{kind: k, cause: errors.WithStack(cause)}
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.cause == nil {
		return e.kind.String()
	}
	return e.kind.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the Kind from any error, defaulting to ServiceError for
// a plain (non-gferr) error and OK for nil - matching §7's "generic error
// during process" fallback.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return ServiceError
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool { return KindOf(err) == k }

// Normalize applies the §7 boundary rule: NETWORK_EMPTY degrades to OK.
func Normalize(err error) error {
	if Is(err, NetworkEmpty) {
		return nil
	}
	return err
}

// IsTerminal reports whether the error kind ends the filter's packet flow
// (EOS) as opposed to a transient/retriable condition.
func IsTerminal(err error) bool { return Is(err, EOS) }
