package store

import "errors"

// Error taxonomy shared by the HTTP surface and the socket surface.
// PersistenceUnavailable is recovered at the store boundary and should
// normally never reach a caller.
var (
	ErrNotFound               = errors.New("not found")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrAlreadyExists          = errors.New("already exists")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
