package profile

import "errors"

// Domain errors for the profile package.
var (
	// ErrNoMatch is returned when no profile scores above the minimum
	// threshold for a device.
	ErrNoMatch = errors.New("profile: no matching profile")

	// ErrNoProtocol is returned when a matched profile declares no
	// usable protocol block.
	ErrNoProtocol = errors.New("profile: no protocol block")

	// ErrInvalidProfile is returned when a profile document fails
	// structural validation.
	ErrInvalidProfile = errors.New("profile: invalid document")
)
