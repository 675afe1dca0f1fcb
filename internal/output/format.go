package output

import (
	"fmt"
	"strings"

	"scribe/internal/services"
)

// Format identifies a transcript serialization.
type Format string

const (
	FormatText Format = "txt"
	FormatJSON Format = "json"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
)

// RequiredFormats are written for every completed job.
var RequiredFormats = []Format{FormatText, FormatJSON, FormatSRT}

// AllFormats lists every format the writer can produce.
var AllFormats = []Format{FormatText, FormatJSON, FormatSRT, FormatVTT}

// ParseFormat accepts a format tag with or without a leading dot.
func ParseFormat(value string) (Format, error) {
	normalized := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "."))
	for _, f := range AllFormats {
		if f == normalized {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: output format %q", services.ErrUnsupportedFormat, value)
}

// ParseFormats parses a list of tags, dropping duplicates.
func ParseFormats(values []string) ([]Format, error) {
	out := make([]Format, 0, len(values))
	seen := make(map[Format]struct{}, len(values))
	for _, v := range values {
		f, err := ParseFormat(v)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
