// Package transcript holds the transcript data model and the two pure steps
// that turn raw recognizer and diarizer output into a speaker-attributed
// result: Align assigns each segment to the speaker with the largest summed
// overlap, and Assemble derives per-speaker statistics and run metadata.
package transcript
