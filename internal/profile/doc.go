// Package profile loads declarative device profiles and matches them
// against discovered devices.
//
// A profile is a JSON document pairing match criteria (manufacturer,
// model, SSDP server header, service types...) with one or more
// per-protocol control blocks (upnp, ecp, samsung_wam, ...). Profiles
// describe how to talk to a family of devices; matching picks the best
// profile for a concrete device and resolves the control endpoints.
//
// The store is loaded once at startup and reloadable at runtime; the
// profile set is swapped atomically under a read-write lock so Score
// and Best can run concurrently with a reload.
//
// Profiles are data, never behaviour: the loader deserialises into a
// fixed struct, and protocol ids resolve to adapters through the
// explicit registry in internal/control.
package profile
