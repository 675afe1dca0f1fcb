// Package transcription defines the collaborator contract the job runner
// depends on and its production implementation. Service extracts audio from
// video with ffmpeg, runs WhisperX, and obtains speaker turns either from a
// pyannote sidecar or from WhisperX's own diarization.
package transcription
