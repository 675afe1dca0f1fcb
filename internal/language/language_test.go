package language

import (
	"slices"
	"testing"
)

func TestToISO2(t *testing.T) {
	cases := map[string]string{
		"pt":         "pt",
		"PT-BR":      "pt",
		"por":        "pt",
		"Portuguese": "pt",
		"eng":        "en",
		"zh-Hant":    "zh",
		"":           "",
		"klingonese": "",
	}
	for in, want := range cases {
		if got := ToISO2(in); got != want {
			t.Errorf("ToISO2(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("pt"); got != "Portuguese" {
		t.Fatalf("expected Portuguese, got %q", got)
	}
	if got := DisplayName(""); got != "Unknown" {
		t.Fatalf("expected Unknown, got %q", got)
	}
	if got := DisplayName("zzzz"); got != "ZZZZ" {
		t.Fatalf("expected uppercased fallback, got %q", got)
	}
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"pt", "por", " EN ", "", "english", "xx-unknown!"})
	want := []string{"pt", "en", "xx-unknown!"}
	if !slices.Equal(got, want) {
		t.Fatalf("NormalizeList = %v, want %v", got, want)
	}
}
