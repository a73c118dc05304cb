// Package discovery finds UPnP/DLNA devices on the local network.
//
// Two modes are supported:
//
//   - SSDP search: send an M-SEARCH multicast datagram to
//     239.255.255.250:1900 and collect responses within a timeout
//     window. SearchSSDP returns the raw responses; Discover follows
//     the LOCATION headers and parses full device descriptions.
//   - Network scan: enumerate the hosts of a CIDR range and probe each
//     candidate for a reachable description endpoint on the well-known
//     ports and paths media devices use.
//
// Both modes fan out one probe per candidate, bounded by the
// caller-supplied concurrency limit. A probe that times out is dropped
// silently; partial devices are never returned. Results are deduplicated
// by UDN (falling back to description location when a device omits one).
package discovery
