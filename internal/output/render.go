package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"scribe/internal/transcript"
)

// Render serializes result in the requested format. Each format is an
// independent transform of result.
func Render(result transcript.Result, format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return renderText(result), nil
	case FormatJSON:
		return renderJSON(result)
	case FormatSRT:
		return renderSRT(result), nil
	case FormatVTT:
		return renderVTT(result), nil
	default:
		_, err := ParseFormat(string(format))
		return nil, err
	}
}

// Parse reconstructs a Result from its JSON rendering.
func Parse(data []byte) (transcript.Result, error) {
	var result transcript.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return transcript.Result{}, fmt.Errorf("decode transcript json: %w", err)
	}
	if result.Segments == nil {
		result.Segments = []transcript.AlignedSegment{}
	}
	if result.Speakers == nil {
		result.Speakers = map[string]transcript.SpeakerSummary{}
	}
	return result, nil
}

func renderText(result transcript.Result) []byte {
	var b bytes.Buffer
	for _, seg := range result.Segments {
		fmt.Fprintf(&b, "[%s]: %s\n", speakerLabel(seg), strings.TrimSpace(seg.Text))
	}
	return b.Bytes()
}

func renderJSON(result transcript.Result) ([]byte, error) {
	if result.Segments == nil {
		result.Segments = []transcript.AlignedSegment{}
	}
	if result.Speakers == nil {
		result.Speakers = map[string]transcript.SpeakerSummary{}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode transcript json: %w", err)
	}
	return append(data, '\n'), nil
}

func renderSRT(result transcript.Result) []byte {
	var b bytes.Buffer
	for i, seg := range result.Segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(seg.Start, ','), formatTimestamp(seg.End, ','))
		fmt.Fprintf(&b, "%s: %s\n\n", speakerLabel(seg), strings.TrimSpace(seg.Text))
	}
	return b.Bytes()
}

func renderVTT(result transcript.Result) []byte {
	var b bytes.Buffer
	b.WriteString("WEBVTT\n\n")
	for _, seg := range result.Segments {
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(seg.Start, '.'), formatTimestamp(seg.End, '.'))
		fmt.Fprintf(&b, "<v %s>%s\n\n", speakerLabel(seg), strings.TrimSpace(seg.Text))
	}
	return b.Bytes()
}

func speakerLabel(seg transcript.AlignedSegment) string {
	if seg.Speaker == "" {
		return transcript.UnknownSpeaker
	}
	return seg.Speaker
}

// maxTimestampSeconds keeps the millisecond count well inside int64.
const maxTimestampSeconds = 1e12

// formatTimestamp renders seconds as HH:MM:SS<sep>mmm, rounding to the nearest
// millisecond. Negative and NaN values clamp to zero; +Inf and values beyond
// maxTimestampSeconds clamp to that bound.
func formatTimestamp(seconds float64, sep byte) string {
	switch {
	case seconds < 0 || math.IsNaN(seconds):
		seconds = 0
	case seconds > maxTimestampSeconds:
		seconds = maxTimestampSeconds
	}
	totalMs := int64(math.Round(seconds * 1000))
	h := totalMs / 3_600_000
	m := (totalMs / 60_000) % 60
	s := (totalMs / 1000) % 60
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}
