package trie

import "testing"

func TestInsertAndContains(t *testing.T) {
	tr := New()
	tr.Insert("porn", "nsfw", 0.9)
	tr.Insert("порно", "nsfw", 1.0)
	tr.Insert("", "nsfw", 1.0)

	if !tr.Contains("porn") || !tr.Contains("порно") {
		t.Error("inserted words not found")
	}
	if tr.Contains("por") || tr.Contains("porno") || tr.Contains("") {
		t.Error("non-inserted words reported present")
	}
	if tr.Len() != 2 {
		t.Errorf("Len = %d, want 2", tr.Len())
	}
}

func TestInsert_LastWins(t *testing.T) {
	tr := New()
	tr.Insert("sex", "nsfw", 0.8)
	tr.Insert("sex", "adult", 0.5)

	m := tr.SearchText("sex")
	if len(m) != 1 {
		t.Fatalf("expected 1 match, got %d", len(m))
	}
	if m[0].Category != "adult" || m[0].Weight != 0.5 {
		t.Errorf("unexpected match %+v", m[0])
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestSearchText_AnchoredAtTokenStart(t *testing.T) {
	tr := New()
	tr.Insert("porn", "nsfw", 0.9)
	tr.Insert("port", "misc", 0.1)

	tests := []struct {
		text string
		want []string
	}{
		{"porn", []string{"porn"}},
		{"support", nil},
		{"superporndeal", nil},
		{"pornography is here", []string{"porn"}},
		{"the   port\tand\nporn", []string{"port", "porn"}},
		{"", nil},
	}
	for _, tc := range tests {
		got := tr.SearchText(tc.text)
		if len(got) != len(tc.want) {
			t.Errorf("SearchText(%q) = %v, want words %v", tc.text, got, tc.want)
			continue
		}
		for i := range got {
			if got[i].Word != tc.want[i] {
				t.Errorf("SearchText(%q)[%d] = %q, want %q", tc.text, i, got[i].Word, tc.want[i])
			}
		}
	}
}

func TestSearchText_EveryTerminalOnPath(t *testing.T) {
	tr := New()
	tr.Insert("ass", "nsfw", 0.6)
	tr.Insert("assault", "violence", 0.7)

	got := tr.SearchText("assaulted")
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
	if got[0].Word != "ass" || got[1].Word != "assault" {
		t.Errorf("unexpected order %v", got)
	}
}

func TestSearchText_ReturnsInsertedWordNotToken(t *testing.T) {
	tr := New()
	tr.Insert("nude", "nsfw", 0.9)

	got := tr.SearchText("nudes")
	if len(got) != 1 || got[0].Word != "nude" {
		t.Errorf("expected inserted keyword, got %v", got)
	}
}
