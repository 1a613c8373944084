// Package batch fans git maintenance operations out across every workspace
// repository under a bounded worker pool: status, unified commits, upstream
// rebase sync, pushes, branch switches, and remote branch cleanup.
package batch
