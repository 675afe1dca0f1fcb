package transcript

// UnknownSpeaker labels segments that no diarization turn overlaps.
const UnknownSpeaker = "UNKNOWN"

// Segment is one recognized utterance. Times are seconds from the start of the
// media.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Duration returns End-Start, never negative.
func (s Segment) Duration() float64 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Turn is one diarization interval attributed to a speaker.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// AlignedSegment is a Segment with its attributed speaker.
type AlignedSegment struct {
	Segment
	Speaker string `json:"speaker"`
}

// SpeakerSummary aggregates the segments attributed to one speaker.
type SpeakerSummary struct {
	Speaker         string  `json:"speaker"`
	FirstAppearance float64 `json:"first_appearance"`
	TotalDuration   float64 `json:"total_duration"`
	SegmentCount    int     `json:"segment_count"`
	MeanConfidence  float64 `json:"mean_confidence"`
}

// Metadata describes the run that produced a Result.
type Metadata struct {
	TotalDuration      float64 `json:"total_duration"`
	Language           string  `json:"language"`
	Model              string  `json:"model"`
	DiarizationEnabled bool    `json:"diarization_enabled"`
	ProcessingTime     float64 `json:"processing_time"`
	FileSizeBytes      int64   `json:"file_size_bytes"`
	SpeakerCount       int     `json:"speaker_count"`
	WordCount          int     `json:"word_count"`
	MeanConfidence     float64 `json:"mean_confidence"`
}

// Result is the assembled transcript of a completed job. It is not mutated
// after it has been attached to a job.
type Result struct {
	Segments []AlignedSegment         `json:"segments"`
	Speakers map[string]SpeakerSummary `json:"speakers"`
	Metadata Metadata                 `json:"metadata"`
}

// SpeakerIDs returns the speaker labels ordered by first appearance.
func (r Result) SpeakerIDs() []string {
	ids := make([]string, 0, len(r.Speakers))
	for id := range r.Speakers {
		ids = append(ids, id)
	}
	sortSpeakers(ids, r.Speakers)
	return ids
}
