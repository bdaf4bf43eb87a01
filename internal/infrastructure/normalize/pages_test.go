package normalize

import "testing"

func TestParsePagesBothMarkerSyntaxes(t *testing.T) {
	raw := "--- PAGE 1 ---\nfirst page text\n=== PAGE 2 ===\nsecond page text\n"

	pages := ParsePages(raw)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].PageNumber != 1 || pages[0].Text != "first page text" {
		t.Fatalf("unexpected page 1: %+v", pages[0])
	}
	if pages[1].PageNumber != 2 || pages[1].Text != "second page text" {
		t.Fatalf("unexpected page 2: %+v", pages[1])
	}
}

func TestParsePagesTextBeforeFirstMarker(t *testing.T) {
	raw := "preamble text\n--- PAGE 3 ---\nbody\n"

	pages := ParsePages(raw)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].PageNumber != 1 || pages[0].Text != "preamble text" {
		t.Fatalf("text before first marker must land on page 1: %+v", pages[0])
	}
	if pages[1].PageNumber != 3 {
		t.Fatalf("expected page 3, got %+v", pages[1])
	}
}

func TestParsePagesSkipsEmptyPages(t *testing.T) {
	raw := "--- PAGE 1 ---\n\n--- PAGE 2 ---\ncontent\n"

	pages := ParsePages(raw)
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].PageNumber != 2 {
		t.Fatalf("expected page 2, got %+v", pages[0])
	}
}

func TestParsePagesMarkerLikeProseIsKept(t *testing.T) {
	raw := "see PAGE 5 for details\n-- PAGE 6 --\n"

	pages := ParsePages(raw)
	if len(pages) != 1 || pages[0].PageNumber != 1 {
		t.Fatalf("near-marker prose must stay in the text: %+v", pages)
	}
}

func TestParsePagesNoMarkers(t *testing.T) {
	pages := ParsePages("just one blob of text")
	if len(pages) != 1 || pages[0].PageNumber != 1 {
		t.Fatalf("expected single page 1, got %+v", pages)
	}
}
