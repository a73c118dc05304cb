package upnp

import "errors"

// Domain errors for the upnp package.
var (
	// ErrNoDeviceElement is returned when a description document has no
	// root <device> element. This is the one structural requirement the
	// parser does not relax.
	ErrNoDeviceElement = errors.New("upnp: description has no device element")

	// ErrEmptyLocation is returned when a description URL is empty.
	ErrEmptyLocation = errors.New("upnp: empty description location")

	// ErrFetchFailed is returned when a description or SCPD document
	// could not be retrieved from the device.
	ErrFetchFailed = errors.New("upnp: fetch failed")
)
