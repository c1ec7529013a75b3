// Package trie is a rune-keyed prefix tree whose terminal nodes carry a
// category and a weight. Build it once, then share it read-only.
package trie

import "strings"

// Match is a keyword found in text.
type Match struct {
	Word     string
	Category string
	Weight   float64
}

type node struct {
	children map[rune]*node
	terminal bool
	word     string
	category string
	weight   float64
}

// Trie is a prefix tree. Insert is not safe for concurrent use;
// lookups are safe once building is done.
type Trie struct {
	root  *node
	words int
}

// New creates an empty trie.
func New() *Trie {
	return &Trie{root: &node{}}
}

// Insert adds word with its category and weight. Re-inserting a word
// overwrites its category and weight. Empty words are ignored.
func (t *Trie) Insert(word, category string, weight float64) {
	if word == "" {
		return
	}
	n := t.root
	for _, r := range word {
		child, ok := n.children[r]
		if !ok {
			if n.children == nil {
				n.children = make(map[rune]*node)
			}
			child = &node{}
			n.children[r] = child
		}
		n = child
	}
	if !n.terminal {
		t.words++
	}
	n.terminal = true
	n.word = word
	n.category = category
	n.weight = weight
}

// Contains reports whether word was inserted.
func (t *Trie) Contains(word string) bool {
	n := t.root
	for _, r := range word {
		child, ok := n.children[r]
		if !ok {
			return false
		}
		n = child
	}
	return n.terminal
}

// Len returns the number of distinct words.
func (t *Trie) Len() int { return t.words }

// SearchText splits text on whitespace and walks the trie from the first rune
// of each token, recording every terminal node passed on the way. Keywords that
// start mid-token are not found.
func (t *Trie) SearchText(text string) []Match {
	var matches []Match
	for _, token := range strings.Fields(text) {
		n := t.root
		for _, r := range token {
			child, ok := n.children[r]
			if !ok {
				break
			}
			n = child
			if n.terminal {
				matches = append(matches, Match{Word: n.word, Category: n.category, Weight: n.weight})
			}
		}
	}
	return matches
}
