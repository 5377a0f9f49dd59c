package status

import "errors"

var (
	ErrNoSession        = errors.New("session: no session scheduled for today")
	ErrNotEligible      = errors.New("check-in: not eligible")
	ErrDuplicateCheckIn = errors.New("check-in: already checked in")
	ErrCheckInBusy      = errors.New("check-in: another submission holds the lock")
	ErrStoreIO          = errors.New("store: request failed")
	ErrViewNotOpen      = errors.New("view: check-in view is not open")
	ErrForbidden        = errors.New("auth: staff role required")
)
