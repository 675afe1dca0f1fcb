package language

import (
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// englishNames accepts the English word forms users type on the CLI.
var englishNames = map[string]string{
	"portuguese": "pt",
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
}

// ToISO2 converts an ISO 639-1 or 639-2 code, a BCP 47 tag such as "pt-BR",
// or an English language name to its two-letter base code. Unrecognized input
// yields "".
func ToISO2(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if code, ok := englishNames[value]; ok {
		return code
	}
	tag, err := xlang.Parse(value)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == xlang.No {
		return ""
	}
	code := base.String()
	if len(code) != 2 {
		return ""
	}
	return code
}

// DisplayName returns the English name for a language code, "Unknown" for
// empty input, or the uppercased input when unrecognized.
func DisplayName(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "Unknown"
	}
	code := ToISO2(trimmed)
	if code == "" {
		return strings.ToUpper(trimmed)
	}
	name := display.English.Languages().Name(xlang.MustParse(code))
	if name == "" {
		return strings.ToUpper(code)
	}
	return name
}

// NormalizeList maps every entry through ToISO2, keeping unrecognized values
// lowercased, and drops blanks and duplicates while preserving order.
func NormalizeList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		code := ToISO2(v)
		if code == "" {
			code = strings.ToLower(strings.TrimSpace(v))
		}
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
