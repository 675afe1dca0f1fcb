// Package output renders assembled transcripts as plain text, JSON, SubRip and
// WebVTT, and manages the per-job files under the output directory.
//
// Render is pure. WriteAll writes each file atomically; RemoveAll is
// best-effort and reports what it could not delete.
package output
