package store

import (
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

// Sentinel errors returned by store implementations.
// All not-found variants match domainerrors.ErrNotFound through errors.Is.
var (
	ErrNotFound             = domainerrors.NotFound("resource not found")
	ErrMappingNotFound      = domainerrors.NotFound("mapping not found")
	ErrRecordNotFound       = domainerrors.NotFound("anime record not found")
	ErrImportStatusNotFound = domainerrors.NotFound("import status not found")
	ErrUserStatusNotFound   = domainerrors.NotFound("user status not found")

	ErrInvalidInput = domainerrors.Validation("invalid input")
)

// IsNotFound reports whether err carries the not-found code.
func IsNotFound(err error) bool {
	return domainerrors.Is(err, domainerrors.ErrNotFound)
}
