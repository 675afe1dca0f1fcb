package transcript

import (
	"sort"
	"strings"
	"time"
)

// RunInfo carries the run-level facts Assemble cannot derive from segments.
type RunInfo struct {
	Model          string
	Language       string
	Diarization    bool
	ProcessingTime time.Duration
	FileSizeBytes  int64
	// Duration is the media duration in seconds when known. Zero falls back
	// to the latest segment end.
	Duration float64
}

// Assemble builds per-speaker statistics and run metadata from aligned
// segments. It is a pure function of its inputs.
func Assemble(aligned []AlignedSegment, run RunInfo) Result {
	segments := make([]AlignedSegment, len(aligned))
	copy(segments, aligned)

	type accumulator struct {
		summary       SpeakerSummary
		confidenceSum float64
	}
	buckets := make(map[string]*accumulator)

	var (
		words         int
		confidenceSum float64
		lastEnd       float64
	)
	for _, seg := range segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = UnknownSpeaker
		}
		acc, ok := buckets[speaker]
		if !ok {
			acc = &accumulator{summary: SpeakerSummary{Speaker: speaker, FirstAppearance: seg.Start}}
			buckets[speaker] = acc
		}
		if seg.Start < acc.summary.FirstAppearance {
			acc.summary.FirstAppearance = seg.Start
		}
		acc.summary.TotalDuration += seg.Duration()
		acc.summary.SegmentCount++
		acc.confidenceSum += seg.Confidence

		words += len(strings.Fields(seg.Text))
		confidenceSum += seg.Confidence
		if seg.End > lastEnd {
			lastEnd = seg.End
		}
	}

	speakers := make(map[string]SpeakerSummary, len(buckets))
	for id, acc := range buckets {
		summary := acc.summary
		if summary.SegmentCount > 0 {
			summary.MeanConfidence = acc.confidenceSum / float64(summary.SegmentCount)
		}
		speakers[id] = summary
	}

	meta := Metadata{
		TotalDuration:      run.Duration,
		Language:           run.Language,
		Model:              run.Model,
		DiarizationEnabled: run.Diarization,
		ProcessingTime:     run.ProcessingTime.Seconds(),
		FileSizeBytes:      run.FileSizeBytes,
		SpeakerCount:       len(speakers),
		WordCount:          words,
	}
	if meta.TotalDuration <= 0 {
		meta.TotalDuration = lastEnd
	}
	if len(segments) > 0 {
		meta.MeanConfidence = confidenceSum / float64(len(segments))
	}

	return Result{Segments: segments, Speakers: speakers, Metadata: meta}
}

func sortSpeakers(ids []string, speakers map[string]SpeakerSummary) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := speakers[ids[i]], speakers[ids[j]]
		if a.FirstAppearance != b.FirstAppearance {
			return a.FirstAppearance < b.FirstAppearance
		}
		return ids[i] < ids[j]
	})
}
