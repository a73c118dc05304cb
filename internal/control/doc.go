// Package control dispatches media commands to devices over their
// native wire protocols.
//
// The UPnP path renders SOAP 1.1 envelopes and understands SOAP faults
// embedded in otherwise successful HTTP responses. Vendor paths (Roku
// ECP, Samsung WAM) speak plain HTTP with vendor-specific encodings.
// Protocols that need a binary or WebSocket session (cast and friends)
// are registered as stubs that report not-implemented.
//
// Adapters resolve through an explicit registry keyed by protocol id;
// there is no reflection and no dynamic lookup. Errors are typed:
// TransportError for network failures, ProtocolFault for
// device-reported failures, and the ErrNotSupported and
// ErrNotImplemented sentinels for capability gaps.
package control
