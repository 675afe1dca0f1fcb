// Command scribe runs the transcription daemon and talks to it.
//
// `scribe serve` starts the daemon in the foreground. `scribe run` and
// `scribe batch` transcribe local files in-process without a daemon. The
// jobs, history, status and logs commands use the daemon's HTTP API at
// paths.api_bind.
package main
