// Package location keeps the freshest device position for a participant and
// classifies sensing failures.
package location

import (
	"context"
	"errors"

	"checkin-system/models"
)

type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionPrompt  PermissionState = "prompt"
	PermissionDenied  PermissionState = "denied"
)

func (p PermissionState) Valid() bool {
	return p == PermissionGranted || p == PermissionPrompt || p == PermissionDenied
}

var (
	ErrPermissionDenied    = errors.New("location: permission denied")
	ErrPositionUnavailable = errors.New("location: position unavailable")
	ErrTimeout             = errors.New("location: request timed out")
	ErrUnsupported         = errors.New("location: sensing not supported")
)

// ErrorFromCode maps a device error code to one of the sensing errors.
func ErrorFromCode(code string) error {
	switch code {
	case "permission_denied":
		return ErrPermissionDenied
	case "position_unavailable":
		return ErrPositionUnavailable
	case "timeout":
		return ErrTimeout
	default:
		return ErrUnsupported
	}
}

// Reading is one delivery from a watch: either a position or an error.
type Reading struct {
	Position *models.Position
	Err      error
}

// Sensor is the platform positioning capability.
type Sensor interface {
	QueryPermission(ctx context.Context) (PermissionState, error)
	// Prompt asks the user for permission and returns the resulting state.
	Prompt(ctx context.Context) (PermissionState, error)
	// Watch streams readings until ctx is cancelled; the channel is closed afterwards.
	Watch(ctx context.Context) (<-chan Reading, error)
	PermissionChanges() <-chan PermissionState
}
