package api

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
)

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	var ae *arkerrors.ArkError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(err, arkerrors.ErrTableNotFound), errors.Is(err, arkerrors.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, arkerrors.ErrTransactionAborted), errors.Is(err, arkerrors.ErrScopeFinished):
		return http.StatusConflict
	case errors.Is(err, arkerrors.ErrHostUnavailable):
		return http.StatusServiceUnavailable
	}
	switch ae.Category {
	case arkerrors.ErrCategoryValidation, arkerrors.ErrCategoryQuery, arkerrors.ErrCategorySchema:
		return http.StatusBadRequest
	case arkerrors.ErrCategoryTransaction:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// GRPCCode maps an error to a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch HTTPStatus(err) {
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.Aborted
	case http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusBadRequest:
		return codes.InvalidArgument
	}
	return codes.Internal
}
