// Package state persists durable workspace state: an atomically replaced
// JSON state file guarded by file locks, and an append-only transaction log
// recording one line per meaningful operation outcome.
package state
