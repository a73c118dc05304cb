// Package xmlutil provides tolerant XML parsing for device-generated documents.
//
// Embedded UPnP firmware routinely emits XML that violates the specification:
// stray control characters, undeclared namespace prefixes, truncated documents,
// duplicated declarations. Every XML entry point in upcast funnels through this
// package so those quirks are handled in exactly one place.
//
// # Parsing stages
//
// ParseWithFallbacks attempts three stages in order and returns the first
// structurally valid tree:
//
//  1. Strict parse of the raw bytes
//  2. Lenient parse after Sanitize + StripNamespaces
//  3. Partial extraction: token scan that keeps whatever parsed before the
//     first fatal decoder error
//
// Stage 3 exists because a truncated device description with an intact
// <device> block is still worth more than an error to the discovery engine.
//
// # Usage
//
//	root, err := xmlutil.ParseWithFallbacks(body)
//	if err != nil {
//	    return fmt.Errorf("parsing description: %w", err)
//	}
//	name := root.Find("device").ChildText("friendlyName")
package xmlutil
