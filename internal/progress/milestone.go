package progress

import (
	"strings"

	"golang.org/x/text/cases"

	"scribe/internal/config"
)

// Milestone maps a phrase found in tool output to a progress percentage.
type Milestone struct {
	Phrase  string
	Percent float64
}

// Table is an ordered milestone list. The first matching entry wins.
type Table struct {
	entries []entry
}

type entry struct {
	milestone Milestone
	folded    string
}

// fold case-folds s. Casers carry state, so each call builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// NewTable builds a table from milestones, skipping blank phrases.
func NewTable(milestones ...Milestone) Table {
	t := Table{entries: make([]entry, 0, len(milestones))}
	for _, m := range milestones {
		phrase := strings.TrimSpace(m.Phrase)
		if phrase == "" {
			continue
		}
		m.Phrase = phrase
		t.entries = append(t.entries, entry{milestone: m, folded: fold(phrase)})
	}
	return t
}

// DefaultTable returns the built-in English and Portuguese vocabulary.
func DefaultTable() Table {
	return NewTable(
		Milestone{Phrase: "model loading", Percent: 20},
		Milestone{Phrase: "carregando modelo", Percent: 20},
		Milestone{Phrase: "loading model", Percent: 20},
		Milestone{Phrase: "audio processing", Percent: 30},
		Milestone{Phrase: "processando áudio", Percent: 30},
		Milestone{Phrase: "performing voice activity detection", Percent: 30},
		Milestone{Phrase: "transcribing", Percent: 60},
		Milestone{Phrase: "transcrevendo", Percent: 60},
		Milestone{Phrase: "performing transcription", Percent: 60},
		Milestone{Phrase: "performing alignment", Percent: 70},
		Milestone{Phrase: "diarization", Percent: 80},
		Milestone{Phrase: "diarização", Percent: 80},
		Milestone{Phrase: "performing diarization", Percent: 80},
		Milestone{Phrase: "saving", Percent: 90},
		Milestone{Phrase: "salvando", Percent: 90},
	)
}

// Len reports the number of milestones.
func (t Table) Len() int { return len(t.entries) }

// Milestones returns a copy of the table entries in match order.
func (t Table) Milestones() []Milestone {
	out := make([]Milestone, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.milestone
	}
	return out
}

// Match returns the first milestone whose phrase occurs in line, comparing
// with Unicode case folding.
func (t Table) Match(line string) (Milestone, bool) {
	if len(t.entries) == 0 || strings.TrimSpace(line) == "" {
		return Milestone{}, false
	}
	folded := fold(line)
	for _, e := range t.entries {
		if strings.Contains(folded, e.folded) {
			return e.milestone, true
		}
	}
	return Milestone{}, false
}

// FromConfig builds the table configured under [progress]. An empty list
// selects DefaultTable.
func FromConfig(milestones []config.Milestone) Table {
	if len(milestones) == 0 {
		return DefaultTable()
	}
	converted := make([]Milestone, 0, len(milestones))
	for _, m := range milestones {
		converted = append(converted, Milestone{Phrase: m.Phrase, Percent: m.Percent})
	}
	return NewTable(converted...)
}
