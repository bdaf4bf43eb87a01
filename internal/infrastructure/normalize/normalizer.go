package normalize

import (
	"strings"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

const (
	// Shortest substring treated as a degenerate OCR loop when repeated.
	minRepeatUnit = 10
	maxRepeatUnit = 256
	// Collapsing can expose new adjacent repeats; a few passes reach a
	// fixpoint on any realistic OCR output.
	maxCollapsePasses = 4
)

// Normalizer strips boilerplate lines and collapses repeated-substring
// artifacts from extracted page text. Page structure is preserved.
type Normalizer struct {
	boilerplate []string
}

func New(boilerplatePatterns []string) *Normalizer {
	patterns := make([]string, 0, len(boilerplatePatterns))
	for _, p := range boilerplatePatterns {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, strings.ToLower(p))
		}
	}
	return &Normalizer{boilerplate: patterns}
}

func (n *Normalizer) CleanPages(pages []domain.PageText) []domain.PageText {
	out := make([]domain.PageText, 0, len(pages))
	for _, page := range pages {
		text := n.stripBoilerplate(page.Text)
		text = collapseRepeats(text)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, domain.PageText{PageNumber: page.PageNumber, Text: text})
	}
	return out
}

func (n *Normalizer) Fold(text string) string {
	return Fold(text)
}

func (n *Normalizer) stripBoilerplate(text string) string {
	if len(n.boilerplate) == 0 {
		return text
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if n.isBoilerplate(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (n *Normalizer) isBoilerplate(line string) bool {
	probe := strings.ToLower(line)
	for _, pattern := range n.boilerplate {
		if strings.Contains(probe, pattern) {
			return true
		}
	}
	return false
}

// collapseRepeats replaces any substring of minRepeatUnit runes or more that
// immediately repeats two or more times consecutively with one occurrence.
// Degenerate OCR output loops like this and would otherwise dominate both
// the lexical index and the chunk content handed to the embedder.
func collapseRepeats(text string) string {
	runes := []rune(text)
	for pass := 0; pass < maxCollapsePasses; pass++ {
		collapsed, changed := collapseRepeatsOnce(runes)
		if !changed {
			break
		}
		runes = collapsed
	}
	return string(runes)
}

func collapseRepeatsOnce(runes []rune) ([]rune, bool) {
	out := make([]rune, 0, len(runes))
	changed := false

	i := 0
	for i < len(runes) {
		unit := repeatUnitAt(runes, i)
		if unit == 0 {
			out = append(out, runes[i])
			i++
			continue
		}

		out = append(out, runes[i:i+unit]...)
		i += unit
		for i+unit <= len(runes) && equalRunes(runes[i:i+unit], out[len(out)-unit:]) {
			i += unit
			changed = true
		}
	}
	return out, changed
}

// repeatUnitAt returns the longest unit length whose occurrence at i is
// immediately followed by an identical occurrence, or 0 when there is none.
func repeatUnitAt(runes []rune, i int) int {
	maxUnit := (len(runes) - i) / 2
	if maxUnit > maxRepeatUnit {
		maxUnit = maxRepeatUnit
	}
	for unit := maxUnit; unit >= minRepeatUnit; unit-- {
		if equalRunes(runes[i:i+unit], runes[i+unit:i+2*unit]) {
			return unit
		}
	}
	return 0
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
