package models

import "errors"

// Error taxonomy shared by marketplace clients, the poller and the scheduler.
var (
	ErrNetwork           = errors.New("network error")
	ErrParse             = errors.New("parse error")
	ErrRateLimited       = errors.New("rate limited")
	ErrDuplicateTarget   = errors.New("listing is already targeted")
	ErrInvalidTime       = errors.New("fire time must be in the future")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyFired      = errors.New("target is already firing")
	ErrDetailUnavailable = errors.New("listing detail unavailable")
	ErrThreadNotFound    = errors.New("thread not found")
	ErrNotAuction        = errors.New("listing is not an auction")
	ErrUnknownSource     = errors.New("unknown marketplace source")
)

// IsUserError reports whether err is a rejection the caller should see as-is.
func IsUserError(err error) bool {
	return errors.Is(err, ErrDuplicateTarget) ||
		errors.Is(err, ErrInvalidTime) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyFired) ||
		errors.Is(err, ErrNotAuction) ||
		errors.Is(err, ErrUnknownSource)
}
