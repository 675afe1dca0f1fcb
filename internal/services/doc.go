// Package services defines shared utilities consumed by the job runner and the
// external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper; KindOf turns any failure
//     into the stable kind stored on failed jobs.
//
// Subpackages wrap the external collaborators (WhisperX, the pyannote
// sidecar) behind small testable interfaces.
package services
