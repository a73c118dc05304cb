// Package media is the protocol-agnostic control surface over
// discovered devices.
//
// Every call is stateless: resolve the device's control info through
// the profile matcher, dispatch to the protocol adapter, and normalize
// whatever came back into a uniform Result. Capability gaps
// (not-supported, not-implemented) are normal outcomes, not errors.
// Batch operations fan out one goroutine per device and isolate
// failures, so one unreachable device never affects its siblings.
package media
