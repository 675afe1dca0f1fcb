// Package progress turns free-form tool output into percentage updates.
//
// A Table holds phrase to percent milestones, loaded from configuration or
// DefaultTable. Monitor consumes a line stream (typically an external tool's
// stderr) and calls a Sink at most once per line.
package progress
