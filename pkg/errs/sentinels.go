// Package errs contains sentinel errors used across layers for stable
// error mapping.
package errs

import "errors"

var (
	// ErrConflict indicates an atomic batch precondition failed. Always
	// retryable by re-reading; services handle it inside their own retry
	// loops and it only escapes after bounded retries are exhausted.
	ErrConflict = errors.New("conflict")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness violation on create (e.g.
	// username taken). A normal outcome callers branch on, not a fault.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidCredentials indicates failed authentication. Never
	// distinguishes "no such user" from "wrong password".
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRateLimited indicates the sliding window is exhausted, or that
	// CAS retries were exhausted under contention (fail-closed).
	ErrRateLimited = errors.New("rate limited")

	// ErrNotSupportConversation indicates a support-only operation was
	// attempted on a direct or group conversation.
	ErrNotSupportConversation = errors.New("not a support conversation")
)
