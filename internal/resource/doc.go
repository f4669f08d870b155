// Package resource bounds the background work of snapshot shipping.
//
// A Controller combines two limits:
//
//   - Background slots: a weighted semaphore capping concurrent transfers.
//   - IO rate: a token bucket (bytes per second) applied through
//     AcquireIO or the Reader/Writer wrappers.
//
// A nil *Controller is valid and imposes no limits, so callers can thread
// an optional controller through without nil checks.
package resource
