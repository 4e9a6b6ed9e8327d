// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the request would violate an invariant:
	// a duplicate unique field, a book already on loan, the borrow limit,
	// or a constraint/serialization failure surfaced at commit.
	ErrConflict = errors.New("conflict")

	// ErrForbidden indicates the caller is authenticated but may not act
	// on this entity.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
