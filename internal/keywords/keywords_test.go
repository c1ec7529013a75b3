package keywords

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func newSeeded(t *testing.T) *Database {
	t.Helper()
	seed, err := Seed()
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return New(seed)
}

func TestAnalyzeText_SingleKeyword(t *testing.T) {
	db := New(Tables{"en": {"nsfw": {"porn": 0.9}}})

	w, kw := db.AnalyzeText("porn")
	if w != 0.9 {
		t.Errorf("weight = %v, want 0.9", w)
	}
	if !slices.Equal(kw, []string{"porn"}) {
		t.Errorf("keywords = %v, want [porn]", kw)
	}
}

func TestAnalyzeText_NoMatch(t *testing.T) {
	db := New(Tables{"en": {"nsfw": {"porn": 0.9}}})

	w, kw := db.AnalyzeText("support")
	if w != 0 || len(kw) != 0 {
		t.Errorf("AnalyzeText(support) = (%v, %v), want (0, [])", w, kw)
	}
}

func TestAnalyzeText_LowerCases(t *testing.T) {
	db := New(Tables{"en": {"nsfw": {"Porn": 0.9}}})

	w, kw := db.AnalyzeText("Free PORN here")
	if w != 0.9 || !slices.Equal(kw, []string{"porn"}) {
		t.Errorf("got (%v, %v)", w, kw)
	}
}

func TestAnalyze_MaxWeightAndCategories(t *testing.T) {
	db := New(Tables{
		"en": {
			"nsfw":  {"nude": 0.9, "chat": 0.2},
			"drugs": {"weed": 0.6},
		},
	})

	a := db.Analyze("chat about weed and nude pics")
	if a.MaxWeight != 0.9 {
		t.Errorf("MaxWeight = %v, want 0.9", a.MaxWeight)
	}
	if !slices.Equal(a.Keywords, []string{"chat", "weed", "nude"}) {
		t.Errorf("Keywords = %v", a.Keywords)
	}
	if !slices.Equal(a.Categories, []string{"nsfw", "drugs"}) {
		t.Errorf("Categories = %v", a.Categories)
	}
}

func TestSeed_MultiLanguage(t *testing.T) {
	db := newSeeded(t)

	tests := []struct {
		text string
		want string
	}{
		{"смотреть порно онлайн", "порно"},
		{"ficken", "ficken"},
		{"ポルノ動画", "ポルノ"},
		{"色情网站", "色情"},
		{"una orgia", "orgia"},
		{"调教视频", "调教"},
	}
	for _, tc := range tests {
		_, kw := db.AnalyzeText(tc.text)
		if !slices.Contains(kw, tc.want) {
			t.Errorf("AnalyzeText(%q) = %v, want to contain %q", tc.text, kw, tc.want)
		}
	}

	if db.Len() < 150 {
		t.Errorf("expected a populated seed, got %d keywords", db.Len())
	}
	if !slices.Equal(db.Languages(), []string{"de", "en", "es", "fr", "ja", "ru", "zh"}) {
		t.Errorf("Languages = %v", db.Languages())
	}
}

func TestSeed_LatinPrefixesDoNotMatchCommonWords(t *testing.T) {
	db := newSeeded(t)

	for _, text := range []string{"a small smile", "smart phone", "smoke alarm"} {
		score, kw := db.AnalyzeText(text)
		if score != 0 || len(kw) != 0 {
			t.Errorf("AnalyzeText(%q) = (%v, %v), want (0, [])", text, score, kw)
		}
	}
}

func TestSeed_CleanText(t *testing.T) {
	db := newSeeded(t)

	w, kw := db.AnalyzeText("the quarterly report is ready for review")
	if w != 0 || len(kw) != 0 {
		t.Errorf("clean text matched: (%v, %v)", w, kw)
	}
}

func TestNew_LaterSetWins(t *testing.T) {
	db := New(
		Tables{"en": {"nsfw": {"cam": 0.5}}},
		Tables{"en": {"nsfw": {"cam": 0.1}}},
	)
	w, _ := db.AnalyzeText("cam")
	if w != 0.1 {
		t.Errorf("weight = %v, want 0.1", w)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.yaml")
	if err := os.WriteFile(path, []byte("en:\n  gambling:\n    casino: 0.7\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tables, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	a := New(tables).Analyze("casino night")
	if a.MaxWeight != 0.7 || !slices.Equal(a.Categories, []string{"gambling"}) {
		t.Errorf("unexpected analysis %+v", a)
	}
}

func TestLoadFile_InvalidWeight(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("en:\n  nsfw:\n    x: 1.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for weight out of range")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
