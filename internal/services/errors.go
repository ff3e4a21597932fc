// Package services defines the business logic for profiles, ratings,
// listings, phone verification, and global settings. This file centralizes
// the service-level error taxonomy so that every operation fails with one of
// a small set of sentinel values that callers check with errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated is returned when an operation needs an acting
	// principal and none was supplied.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the principal lacks rights for the
	// requested mutation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the target document is missing or has
	// been soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input. The wrapped message
	// names the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrStoreRead wraps document store read failures.
	ErrStoreRead = errors.New("store read failed")

	// ErrStoreWrite wraps document store write failures.
	ErrStoreWrite = errors.New("store write failed")

	// ErrSMSDisabled is returned by RequestCode when SMS validation is off.
	ErrSMSDisabled = errors.New("sms validation is disabled")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func readErr(err error) error  { return fmt.Errorf("%w: %v", ErrStoreRead, err) }
func writeErr(err error) error { return fmt.Errorf("%w: %v", ErrStoreWrite, err) }

// Detail returns the human-readable part of a validation error, without the
// sentinel prefix.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	msg, _ := strings.CutPrefix(err.Error(), ErrValidation.Error()+": ")
	return msg
}
