package discovery

import "errors"

// Domain errors for the discovery package.
var (
	// ErrInvalidNetwork is returned when a scan range cannot be parsed
	// as an IPv4 CIDR.
	ErrInvalidNetwork = errors.New("discovery: invalid network range")

	// ErrNetworkTooLarge is returned when a scan range enumerates more
	// hosts than the engine is willing to probe.
	ErrNetworkTooLarge = errors.New("discovery: network range too large")

	// ErrSocket is returned when the SSDP UDP socket cannot be created.
	ErrSocket = errors.New("discovery: udp socket")
)
