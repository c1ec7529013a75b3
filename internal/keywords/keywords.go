// Package keywords scores text against multi-language keyword tables held in
// one shared trie.
package keywords

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/guardscan/internal/filter/trie"
)

// CategoryNSFW is the category for sexual content.
const CategoryNSFW = "nsfw"

//go:embed seed/keywords.yaml
var seedYAML []byte

// Tables maps language -> category -> keyword -> weight.
type Tables map[string]map[string]map[string]float64

// Analysis is the result of scanning text.
type Analysis struct {
	MaxWeight  float64
	Keywords   []string
	Categories []string
}

// Database scans text for weighted keywords. Read-only after New.
type Database struct {
	trie      *trie.Trie
	languages []string
}

// New builds a database from one or more table sets. Later sets win on
// duplicate keywords. Iteration is sorted so the result is deterministic.
func New(sets ...Tables) *Database {
	t := trie.New()
	langs := make(map[string]struct{})
	for _, tables := range sets {
		for _, lang := range sortedKeys(tables) {
			langs[lang] = struct{}{}
			for _, category := range sortedKeys(tables[lang]) {
				words := tables[lang][category]
				for _, word := range sortedKeys(words) {
					t.Insert(strings.ToLower(word), category, words[word])
				}
			}
		}
	}
	languages := make([]string, 0, len(langs))
	for l := range langs {
		languages = append(languages, l)
	}
	slices.Sort(languages)
	return &Database{trie: t, languages: languages}
}

// Seed returns the built-in keyword tables.
func Seed() (Tables, error) {
	return parse(seedYAML)
}

// LoadFile reads keyword tables from a YAML file.
func LoadFile(path string) (Tables, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read keywords %s: %w", path, err)
	}
	t, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("keywords %s: %w", path, err)
	}
	return t, nil
}

func parse(data []byte) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}
	for lang, cats := range t {
		for cat, words := range cats {
			for w, weight := range words {
				if weight < 0 || weight > 1 {
					return nil, fmt.Errorf("keyword %s/%s/%q: weight %v out of [0,1]", lang, cat, w, weight)
				}
			}
		}
	}
	return t, nil
}

// AnalyzeText lower-cases text and returns the highest matched weight and the
// matched keywords in order of appearance, or (0, nil) when nothing matches.
func (d *Database) AnalyzeText(text string) (float64, []string) {
	a := d.Analyze(text)
	return a.MaxWeight, a.Keywords
}

// Analyze is AnalyzeText plus the distinct matched categories.
func (d *Database) Analyze(text string) Analysis {
	matches := d.trie.SearchText(strings.ToLower(text))
	if len(matches) == 0 {
		return Analysis{}
	}
	a := Analysis{Keywords: make([]string, 0, len(matches))}
	for _, m := range matches {
		if m.Weight > a.MaxWeight {
			a.MaxWeight = m.Weight
		}
		a.Keywords = append(a.Keywords, m.Word)
		if !slices.Contains(a.Categories, m.Category) {
			a.Categories = append(a.Categories, m.Category)
		}
	}
	return a
}

// Len returns the number of distinct keywords.
func (d *Database) Len() int { return d.trie.Len() }

// Languages returns the loaded languages, sorted.
func (d *Database) Languages() []string { return slices.Clone(d.languages) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
