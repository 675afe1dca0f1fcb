// Package media prepares uploaded files for transcription. Video containers
// are reduced to a mono 16 kHz PCM WAV with ffmpeg; audio inputs pass through.
package media
