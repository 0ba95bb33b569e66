package perms

import "errors"

// Domain errors for the permission model.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, perms.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a user, group or track does not exist.
	ErrNotFound = errors.New("perms: not found")

	// ErrAlreadyExists is returned when creating an entity that already exists.
	ErrAlreadyExists = errors.New("perms: already exists")

	// ErrUnsupported is returned for operations that do not apply to a holder kind.
	ErrUnsupported = errors.New("perms: operation not supported")

	// ErrInvalidNode is returned when a node key is empty or malformed.
	ErrInvalidNode = errors.New("perms: invalid node")

	// ErrInvalidContext is returned when a context key or value is empty.
	ErrInvalidContext = errors.New("perms: invalid context")

	// ErrInvalidName is returned when a group or track name is empty or malformed.
	ErrInvalidName = errors.New("perms: invalid name")

	// ErrUnknownEnum is returned when an enum value is not recognised.
	ErrUnknownEnum = errors.New("perms: unknown value")
)
