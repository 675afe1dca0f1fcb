package whisperx

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"scribe/internal/transcript"
)

// Word is a single aligned word from WhisperX output.
type Word struct {
	Word    string   `json:"word"`
	Start   *float64 `json:"start"`
	End     *float64 `json:"end"`
	Score   *float64 `json:"score"`
	Speaker string   `json:"speaker"`
}

// Segment is a transcribed segment from WhisperX JSON output. Timing fields
// are pointers because WhisperX omits them for words it could not align.
type Segment struct {
	Text       string   `json:"text"`
	Start      *float64 `json:"start"`
	End        *float64 `json:"end"`
	AvgLogProb *float64 `json:"avg_logprob"`
	Speaker    string   `json:"speaker"`
	Words      []Word   `json:"words"`
}

// Document is the top-level WhisperX JSON payload.
type Document struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Transcript is the normalized recognizer output.
type Transcript struct {
	Segments []transcript.Segment
	Turns    []transcript.Turn
	Language string
}

// LoadFile reads and parses a WhisperX JSON file.
func LoadFile(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, err
	}
	return Parse(data)
}

// Parse decodes WhisperX JSON and normalizes it:
//   - text is NFC-normalized and trimmed; empty segments are dropped
//   - missing starts fall back to the first timed word, then the previous end
//   - missing ends fall back to the last timed word, then the start
//   - confidence is the mean word score, else exp(avg_logprob), clamped to [0,1]
//   - speaker labels on words (or segments) are merged into turns
func Parse(data []byte) (Transcript, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Transcript{}, fmt.Errorf("parse whisperx json: %w", err)
	}

	out := Transcript{
		Segments: make([]transcript.Segment, 0, len(doc.Segments)),
		Language: strings.TrimSpace(doc.Language),
	}
	var (
		prevEnd float64
		turns   turnBuilder
	)
	for _, seg := range doc.Segments {
		text := strings.TrimSpace(norm.NFC.String(seg.Text))
		if text == "" {
			continue
		}
		start, end := segmentBounds(seg, prevEnd)
		out.Segments = append(out.Segments, transcript.Segment{
			Start:      start,
			End:        end,
			Text:       text,
			Confidence: segmentConfidence(seg),
		})
		prevEnd = end

		labelled := false
		for _, w := range seg.Words {
			if w.Speaker == "" || w.Start == nil || w.End == nil {
				continue
			}
			labelled = true
			turns.add(*w.Start, *w.End, w.Speaker)
		}
		if !labelled && seg.Speaker != "" {
			turns.add(start, end, seg.Speaker)
		}
	}
	out.Turns = turns.finish()
	return out, nil
}

func segmentBounds(seg Segment, prevEnd float64) (float64, float64) {
	var firstWord, lastWord *float64
	for i := range seg.Words {
		if w := seg.Words[i]; w.Start != nil && firstWord == nil {
			firstWord = w.Start
		}
		if w := seg.Words[i]; w.End != nil {
			lastWord = w.End
		}
	}

	start := prevEnd
	switch {
	case validTime(seg.Start):
		start = *seg.Start
	case validTime(firstWord):
		start = *firstWord
	}
	end := start
	switch {
	case validTime(seg.End) && *seg.End >= start:
		end = *seg.End
	case validTime(lastWord) && *lastWord >= start:
		end = *lastWord
	}
	return start, end
}

func validTime(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) && *v >= 0
}

func segmentConfidence(seg Segment) float64 {
	var (
		sum   float64
		count int
	)
	for _, w := range seg.Words {
		if w.Score != nil && !math.IsNaN(*w.Score) {
			sum += *w.Score
			count++
		}
	}
	if count > 0 {
		return clamp01(sum / float64(count))
	}
	if seg.AvgLogProb != nil {
		return clamp01(math.Exp(*seg.AvgLogProb))
	}
	return 0
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// turnBuilder merges consecutive labelled spans of the same speaker.
type turnBuilder struct {
	turns []transcript.Turn
}

func (b *turnBuilder) add(start, end float64, speaker string) {
	if end < start {
		end = start
	}
	if n := len(b.turns); n > 0 && b.turns[n-1].Speaker == speaker && start >= b.turns[n-1].Start {
		if end > b.turns[n-1].End {
			b.turns[n-1].End = end
		}
		return
	}
	b.turns = append(b.turns, transcript.Turn{Start: start, End: end, Speaker: speaker})
}

func (b *turnBuilder) finish() []transcript.Turn {
	return b.turns
}
