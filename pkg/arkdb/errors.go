package arkdb

import (
	arkerrors "github.com/arkilian/arkdb/internal/errors"
)

// Error is the structured error returned by every operation. Use
// errors.Is with the sentinels below; errors.As gives access to Details.
type Error = arkerrors.ArkError

var (
	ErrSchema               = arkerrors.ErrSchema
	ErrTableNotFound        = arkerrors.ErrTableNotFound
	ErrUnknownField         = arkerrors.ErrUnknownField
	ErrRequiredFieldMissing = arkerrors.ErrRequiredFieldMissing
	ErrTypeValidation       = arkerrors.ErrTypeValidation
	ErrIndexNotFound        = arkerrors.ErrIndexNotFound
	ErrInvalidQuery         = arkerrors.ErrInvalidQuery
	ErrTransactionAborted   = arkerrors.ErrTransactionAborted
	ErrScopeFinished        = arkerrors.ErrScopeFinished
	ErrOutOfScope           = arkerrors.ErrOutOfScope
	ErrHostUnavailable      = arkerrors.ErrHostUnavailable
	ErrVersion              = arkerrors.ErrVersion
	ErrObjectNotFound       = arkerrors.ErrObjectNotFound
)
