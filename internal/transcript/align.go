package transcript

import (
	"sort"
)

// Align attributes each segment to the speaker whose turns overlap it the
// most. Overlap is summed per speaker across all of that speaker's turns.
// When two speakers tie on the maximum, the one whose earliest overlapping
// turn starts first wins, then the lexically smaller label, so the outcome
// never depends on the order turns were supplied in. Segments with no
// positive overlap are labelled UnknownSpeaker.
//
// The output has the same length and order as segments.
func Align(segments []Segment, turns []Turn) []AlignedSegment {
	out := make([]AlignedSegment, len(segments))
	if len(segments) == 0 {
		return out
	}

	sorted := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.End > t.Start {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		if sorted[i].End != sorted[j].End {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Speaker < sorted[j].Speaker
	})

	for i, seg := range segments {
		out[i] = AlignedSegment{Segment: seg, Speaker: attribute(seg, sorted)}
	}
	return out
}

type speakerOverlap struct {
	total        float64
	firstOverlap float64
}

func attribute(seg Segment, turns []Turn) string {
	if seg.End <= seg.Start || len(turns) == 0 {
		return UnknownSpeaker
	}
	// Turns starting at or after the segment end cannot overlap it.
	limit := sort.Search(len(turns), func(i int) bool { return turns[i].Start >= seg.End })

	overlaps := make(map[string]*speakerOverlap)
	for _, t := range turns[:limit] {
		ov := overlap(seg.Start, seg.End, t.Start, t.End)
		if ov <= 0 {
			continue
		}
		entry, ok := overlaps[t.Speaker]
		if !ok {
			// turns are sorted by start, so the first hit is the earliest.
			overlaps[t.Speaker] = &speakerOverlap{total: ov, firstOverlap: t.Start}
			continue
		}
		entry.total += ov
	}

	best := UnknownSpeaker
	var bestEntry *speakerOverlap
	for speaker, entry := range overlaps {
		if bestEntry == nil || better(speaker, entry, best, bestEntry) {
			best = speaker
			bestEntry = entry
		}
	}
	return best
}

func better(speaker string, entry *speakerOverlap, current string, currentEntry *speakerOverlap) bool {
	if entry.total != currentEntry.total {
		return entry.total > currentEntry.total
	}
	if entry.firstOverlap != currentEntry.firstOverlap {
		return entry.firstOverlap < currentEntry.firstOverlap
	}
	return speaker < current
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := max(aStart, bStart)
	end := min(aEnd, bEnd)
	if end <= start {
		return 0
	}
	return end - start
}
