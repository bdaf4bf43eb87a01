package chunking

import (
	"strings"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

// Separator priority for the size-bounded stage: paragraph break, line
// break, sentence end, word boundary, hard cut.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter is the two-stage document chunker: a structural split on heading
// markers within each page, then a recursive size-bounded split with overlap.
// A chunk never spans a page boundary.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(pages []domain.PageText) []domain.ChunkDraft {
	var out []domain.ChunkDraft
	for _, page := range pages {
		for _, segment := range splitByHeadings(page.Text) {
			prefix := segment.headerContext()
			for _, piece := range s.splitRecursive(segment.text, separators) {
				piece = strings.TrimSpace(piece)
				if piece == "" {
					continue
				}
				out = append(out, domain.ChunkDraft{
					Content:    prefix + piece,
					PageNumber: page.PageNumber,
				})
			}
		}
	}
	return out
}

type headingSegment struct {
	h1, h2 string
	text   string
}

// headerContext prefixes a segment with up to two heading levels so a chunk
// keeps its structural location when read in isolation.
func (seg headingSegment) headerContext() string {
	var b strings.Builder
	if seg.h1 != "" {
		b.WriteString("# " + seg.h1 + "\n")
	}
	if seg.h2 != "" {
		b.WriteString("## " + seg.h2 + "\n")
	}
	return b.String()
}

// splitByHeadings cuts one page's text on markdown headings (levels 1-3) and
// tags every segment with the heading path that introduced it.
func splitByHeadings(text string) []headingSegment {
	var segments []headingSegment
	current := headingSegment{}
	var buf strings.Builder

	flush := func() {
		body := strings.TrimSpace(buf.String())
		buf.Reset()
		if body != "" {
			segment := current
			segment.text = body
			segments = append(segments, segment)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		level, title := headingLine(line)
		if level == 0 {
			buf.WriteString(line)
			buf.WriteString("\n")
			continue
		}
		flush()
		switch level {
		case 1:
			current.h1 = title
			current.h2 = ""
		case 2:
			current.h2 = title
		}
		// Level 3 starts a new segment but stays out of the prefix.
	}
	flush()

	return segments
}

func headingLine(line string) (level int, title string) {
	trimmed := strings.TrimSpace(line)
	for level = 0; level < len(trimmed) && trimmed[level] == '#'; level++ {
	}
	if level < 1 || level > 3 || level >= len(trimmed) || trimmed[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(trimmed[level:])
}

// splitRecursive bounds a segment to the chunk size, preferring the earliest
// separator in priority order that occurs in the text and falling back to a
// hard rune cut only when none fits.
func (s *Splitter) splitRecursive(text string, seps []string) []string {
	if runeLen(text) <= s.ChunkSize {
		return []string{text}
	}

	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		return s.hardCut(text)
	}

	pieces := splitKeepSeparator(text, sep)
	return s.mergePieces(pieces, rest)
}

func pickSeparator(text string, seps []string) (sep string, rest []string) {
	for i, candidate := range seps {
		if candidate == "" {
			return "", nil
		}
		if strings.Contains(text, candidate) {
			return candidate, seps[i+1:]
		}
	}
	return "", nil
}

// mergePieces greedily packs split pieces into chunks of at most ChunkSize
// runes, carrying an Overlap-rune tail between consecutive chunks. Oversized
// pieces recurse with the remaining lower-priority separators.
func (s *Splitter) mergePieces(pieces []string, rest []string) []string {
	var out []string
	var buf strings.Builder
	bufLen := 0

	emit := func() {
		chunk := buf.String()
		buf.Reset()
		bufLen = 0
		if strings.TrimSpace(chunk) == "" {
			return
		}
		out = append(out, chunk)
		tail := overlapTail(chunk, s.Overlap)
		buf.WriteString(tail)
		bufLen = runeLen(tail)
	}

	for _, piece := range pieces {
		pieceLen := runeLen(piece)
		if bufLen > 0 && bufLen+pieceLen > s.ChunkSize {
			emit()
			// The seeded overlap tail shrinks when the next piece would
			// not fit behind the full Overlap.
			if bufLen+pieceLen > s.ChunkSize {
				tail := overlapTail(buf.String(), s.ChunkSize-pieceLen)
				buf.Reset()
				buf.WriteString(tail)
				bufLen = runeLen(tail)
			}
		}
		if pieceLen > s.ChunkSize {
			if bufLen > 0 {
				out = append(out, buf.String())
				buf.Reset()
				bufLen = 0
			}
			if len(rest) == 0 {
				out = append(out, s.hardCut(piece)...)
				continue
			}
			out = append(out, s.splitRecursive(piece, rest)...)
			continue
		}
		buf.WriteString(piece)
		bufLen += pieceLen
	}
	if strings.TrimSpace(buf.String()) != "" {
		out = append(out, buf.String())
	}
	return out
}

func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func overlapTail(chunk string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= overlap {
		return chunk
	}
	return string(runes[len(runes)-overlap:])
}

func runeLen(s string) int {
	return len([]rune(s))
}
