// Package whisperx runs WhisperX speech recognition through uvx.
//
// This package handles:
//   - building the uvx/whisperx command line from configuration
//   - streaming tool output into the progress milestone monitor
//   - killing the tool's process group on timeout or cancellation
//   - tolerant parsing of the JSON output into transcript segments, and
//     speaker turns when WhisperX diarizes itself
//
// Process execution is abstracted behind Executor so tests can substitute a
// fake that writes canned output.
package whisperx
