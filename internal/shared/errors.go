package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict indicates a uniqueness violation raced past a pre-check.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated indicates a missing or invalid caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUpstreamUnavailable indicates an external collaborator failed or timed out.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
