// Package snapshot keeps the cached filesystem image that new sandboxes
// boot from.
//
// A Pipeline cold-provisions a sandbox (clone, install, variant
// substitution), snapshots it, and records the snapshot. A Cache returns the
// current snapshot while it has more than RefreshBefore of validity left and
// asks the Pipeline for a new one otherwise.
//
// The cache does not lock. Concurrent callers that all observe a stale
// snapshot each provision a new one; the extra snapshots are wasteful but
// harmless, since the newest record always wins.
package snapshot
