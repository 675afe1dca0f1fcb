// Package daemon coordinates the long-running scribe process.
//
// It wires configuration, the history archive, the workflow manager, the HTTP
// API, and the optional watch folder into a single lifecycle with flock-based
// locking to prevent multiple instances sharing one state directory.
//
// Keep orchestration logic here: transcription and job semantics live in
// their own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
