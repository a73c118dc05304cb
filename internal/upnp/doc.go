// Package upnp parses UPnP device descriptions and service control point
// descriptions (SCPD) into structured records.
//
// The package is a consumer of the standard UPnP XML schemas, not a
// producer: it reads `<root><device>...</device></root>` description
// documents and `<scpd>` action/state-variable inventories published by
// devices on the local network.
//
// # Tolerance
//
// All parsing goes through internal/xmlutil's staged-fallback parser.
// A missing root <device> element is a hard error; a malformed optional
// field (serial number, model number, a single broken <action>) is not.
// SCPD parsing records per-action and per-argument failures in
// SCPDDocument.ParsingErrors and keeps going; real devices ship
// slightly invalid SCPD and a partial inventory is still useful.
//
// # Key types
//
//   - Device: a discovered device with its flattened service set
//   - Service: one control endpoint (serviceType + controlURL)
//   - SCPDDocument: full action/argument/state-variable inventory
package upnp
