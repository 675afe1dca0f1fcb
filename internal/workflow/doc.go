// Package workflow runs transcription jobs.
//
// The Manager accepts submissions, records them as QUEUED jobs in the
// in-memory store, and admits at most jobs.max_concurrent of them at a time.
// Each admitted job is handed to the Runner, which validates the input,
// drives the transcription pipeline under a per-job timeout, aligns speakers,
// writes every output format, and records the terminal state. The Runner is
// the only place a failure becomes a FAILED job; nothing escapes Execute.
//
// Terminal jobs are archived in the history database and announced through
// the notification service. Both are best-effort and only logged on error.
// A background sweeper prunes terminal jobs once their retention expires.
package workflow
