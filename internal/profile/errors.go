package profile

import "errors"

var (
	// ErrProfileNotFound is returned when a profile ID does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrDuplicateName is returned when another profile already uses the name.
	ErrDuplicateName = errors.New("profile name already in use")

	// ErrInvalidProfile is returned when a profile fails validation.
	ErrInvalidProfile = errors.New("invalid profile")
)
