// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servicemode

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no decoder shows up before the session
	// deadline
	ErrTimeout = errors.New("no decoder detected on programming track")

	// ErrVerifyExhausted is wrapped by AccessError when the retry budget
	// ran out without a confirmed value
	ErrVerifyExhausted = errors.New("verify retries exhausted")

	// ErrUserAbort is returned when the session context is cancelled
	ErrUserAbort = errors.New("aborted by user")

	// ErrSessionClosed is returned by operations on a torn down session
	ErrSessionClosed = errors.New("programming session closed")

	// ErrInvalidCV is returned for CV indices or values outside their range
	ErrInvalidCV = errors.New("invalid CV")

	// ErrInvalidAddress is returned for addresses outside the decoder range
	ErrInvalidAddress = errors.New("invalid decoder address")

	// ErrWriteOnly is returned by operations that need reads on a
	// write-only session
	ErrWriteOnly = errors.New("session is write-only")
)

// AccessError describes a CV read or write that could not be confirmed
type AccessError struct {
	Op       string // "read", "write" or "dump"
	CV       int
	Required bool
	Err      error
}

func (e *AccessError) Error() string {
	kind := "optional"
	if e.Required {
		kind = "required"
	}
	if e.CV == 0 {
		return fmt.Sprintf("%s %s: %v", kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s CV %d: %v", kind, e.Op, e.CV, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err ended the programming session. Recoverable
// errors are unconfirmed optional accesses and rejected arguments.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return accessErr.Required
	}
	if errors.Is(err, ErrInvalidCV) || errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrWriteOnly) {
		return false
	}
	return true
}
