// Package jobs holds the in-memory job registry: the lifecycle state machine
// (queued, processing, completed, failed, cancelled), progress updates,
// per-job event subscriptions, bounded retention and TTL pruning.
//
// The store performs no I/O. Output files, uploads and history rows belong to
// the workflow manager that drives the store.
package jobs
