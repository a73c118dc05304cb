// Package cache persists discovery results between runs.
//
// Records are keyed by device IP and carry the full parsed device
// description as JSON, gzip-compressed when the payload is large.
// Every read applies the configured TTL: an expired record behaves as
// not-found without being deleted, and CleanupExpired physically
// removes stale rows in bulk. A small key/value metadata table tracks
// auxiliary scan state such as the last scanned network.
//
// All operations run against short-lived connections from the shared
// pool; SQLite serialises writers, so the repository holds no
// in-process lock.
package cache
