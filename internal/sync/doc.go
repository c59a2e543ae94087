// Package sync implements the synchronization engine that keeps the local
// trip store consistent with the remote backend.
//
// The engine runs one pass at a time through a small state machine
// (idle -> syncing -> idle or error):
//  1. Check network status; fail fast when offline.
//  2. Pull remote changes since the last successful sync and resolve
//     write-write conflicts against queued local changes (last-writer-wins,
//     remote wins ties).
//  3. Push queued local changes in batches, retrying each batch with
//     exponential backoff and pausing between batches to respect remote
//     rate limits.
//  4. Report a terminal result through completion and progress callbacks.
//
// Triggers arriving while a pass is in flight are coalesced: the in-flight
// pass picks up any newly queued changes on its push step, so a second
// concurrent pass is never started against the same store.
package sync
