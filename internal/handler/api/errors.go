package api

import (
	"errors"

	"MarketPull/internal/domain/models"
	xhttp "MarketPull/pkg/http"
)

// toAppError maps domain errors onto HTTP statuses. Anything unknown
// stays a plain error and ends up as a 500.
func toAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrDuplicateTarget):
		return xhttp.ConflictError("ERR_DUPLICATE_TARGET", err.Error()).WithError(err)
	case errors.Is(err, models.ErrAlreadyFired):
		return xhttp.ConflictError("ERR_ALREADY_FIRED", err.Error()).WithError(err)
	case errors.Is(err, models.ErrInvalidTime):
		return xhttp.UnprocessableError("ERR_INVALID_TIME", err.Error()).WithError(err)
	case errors.Is(err, models.ErrNotAuction):
		return xhttp.UnprocessableError("ERR_NOT_AUCTION", err.Error()).WithError(err)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrThreadNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrUnknownSource):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrRateLimited):
		return xhttp.TooManyRequestsError(err.Error()).WithError(err)
	}
	return err
}
