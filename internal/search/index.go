// Package search provides a small, deterministic, concurrency-safe in-memory
// matcher used by the dashboard's free-text refund filter.
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with caseless matching
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic results in document order
//
// A document matches when every query token is a substring of at least one
// of its tokens, so partial order numbers and email fragments match.
// Results carry the fraction of document tokens hit as a score.
package search

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Document is one searchable record.
type Document struct {
	ID     string
	Fields []string
}

// Result is a matching document with its score in (0, 1].
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	Match(query string) []Result
}

type doc struct {
	id     string
	tokens []string
}

type index struct {
	docs []doc
}

// NewIndex builds an Index over docs. Documents without tokens never match.
func NewIndex(docs []Document) Index {
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		toks := tokenize(strings.Join(d.Fields, " "))
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, tokens: toks})
	}
	return &index{docs: out}
}

// Match returns the documents matching every token of q, in build order.
// A blank query matches nothing.
func (i *index) Match(q string) []Result {
	qTokens := tokenize(q)
	if len(qTokens) == 0 || len(i.docs) == 0 {
		return nil
	}
	var out []Result
	for _, d := range i.docs {
		hit := map[int]struct{}{}
		all := true
		for _, qt := range qTokens {
			found := false
			for j, dt := range d.tokens {
				if strings.Contains(dt, qt) {
					hit[j] = struct{}{}
					found = true
				}
			}
			if !found {
				all = false
				break
			}
		}
		if !all {
			continue
		}
		out = append(out, Result{ID: d.id, Score: float64(len(hit)) / float64(len(d.tokens))})
	}
	return out
}

// IDs returns the ids of rs.
func IDs(rs []Result) map[string]struct{} {
	out := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		out[r.ID] = struct{}{}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokenize returns the distinct case-folded words of s in first-seen order.
func tokenize(s string) []string {
	s = cases.Fold().String(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
