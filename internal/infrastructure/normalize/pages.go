package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

// Extraction collaborators emit either of two page marker syntaxes; both are
// accepted here and canonicalized, so nothing past this boundary ever sees a
// marker line.
var pageMarkerRe = regexp.MustCompile(`^\s*(?:-{3}|={3})\s*PAGE\s+(\d+)\s*(?:-{3}|={3})\s*$`)

// ParsePages converts raw marker-delimited collaborator output into ordered
// page-tagged text. Text before the first marker belongs to page 1.
func ParsePages(raw string) []domain.PageText {
	var pages []domain.PageText
	current := 1
	var buf strings.Builder

	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text != "" {
			pages = append(pages, domain.PageText{PageNumber: current, Text: text})
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		if m := pageMarkerRe.FindStringSubmatch(line); m != nil {
			if page, err := strconv.Atoi(m[1]); err == nil && page >= 1 {
				flush()
				current = page
				continue
			}
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()

	return pages
}
