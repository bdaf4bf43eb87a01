package normalize

import "testing"

func TestFoldStripsVietnameseDiacritics(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Phí Quản Lý", "phi quan ly"},
		{"Quỹ Đầu Tư Trái Phiếu", "quy dau tu trai phieu"},
		{"ĐIỀU LỆ QUỸ", "dieu le quy"},
		{"ngân hàng giám sát", "ngan hang giam sat"},
		{"", ""},
		{"already ascii 123", "already ascii 123"},
	}
	for _, tc := range cases {
		if got := Fold(tc.in); got != tc.want {
			t.Fatalf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFoldCollapsesWhitespace(t *testing.T) {
	if got := Fold("  Phí \n\t quản    lý  "); got != "phi quan ly" {
		t.Fatalf("Fold() = %q", got)
	}
}

// The same folding must hold whether the text arrives precomposed (NFC) or
// already decomposed (NFD): both forms of the same word are common in PDFs.
func TestFoldNormalizationFormInvariance(t *testing.T) {
	nfc := "Phí quản lý"    // precomposed
	nfd := "Phí quản lý" // combining marks
	if Fold(nfc) != Fold(nfd) {
		t.Fatalf("Fold(NFC) = %q, Fold(NFD) = %q", Fold(nfc), Fold(nfd))
	}
}

func TestFoldIsIdempotent(t *testing.T) {
	inputs := []string{"Phí Quản Lý", "Quỹ Đầu Tư", "plain text"}
	for _, in := range inputs {
		once := Fold(in)
		if twice := Fold(once); twice != once {
			t.Fatalf("Fold not idempotent on %q: %q vs %q", in, once, twice)
		}
	}
}
