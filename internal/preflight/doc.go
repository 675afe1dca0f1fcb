// Package preflight verifies the environment scribe needs before it accepts
// work: writable directories, the external binaries it shells out to, and
// the diarization sidecar when one is configured.
//
// The daemon runs these checks at startup and logs each result; the status
// endpoint and `scribe status` report the same results to operators.
package preflight
