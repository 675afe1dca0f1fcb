// Package pyannote is an HTTP client for a pyannote speaker diarization
// sidecar exposing POST /diarize (multipart audio upload) and GET /health.
package pyannote
