// Package search provides a small, deterministic, concurrency-safe in-memory
// keyword index. It backs the tool search of the operation catalog: each
// document is an operation described by a few short fields (name,
// description, category, keywords) and queries are what a user types into
// the editor's search box.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (ties keep insertion order)
//
// A query token matches a document token when it is equal to it or, for
// tokens of at least minPrefixRunes, a prefix of it ("comb" finds
// "combine"). Scoring is Jaccard similarity over matched tokens:
// score = |Q ∩ D| / |Q ∪ D|.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Doc is one searchable item. Fields are tokenized together.
type Doc struct {
	ID     string
	Fields []string
}

// Result is a ranked document id with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords      map[string]struct{}
	maxDocs        int
	minPrefixRunes int
}

func defaultConfig() config {
	return config{
		stopwords:      defaultStopwords,
		maxDocs:        0,
		minPrefixRunes: 3,
	}
}

var defaultStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {}, "pdf": {}, "my": {}, "into": {},
}

// WithStopwords replaces the default stop words. An empty list disables
// stop-word removal.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		c.stopwords = m
	}
}

// WithMaxDocs caps the number of indexed documents.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// WithMinPrefixRunes sets the shortest query token allowed to prefix-match.
// 0 disables prefix matching.
func WithMinPrefixRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minPrefixRunes = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index over docs. Documents without tokens are skipped.
func NewIndex(docs []Doc, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		toks := tokenize(strings.Join(d.Fields, " "), cfg.stopwords)
		if d.ID == "" || len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, tokens: toks})
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: out}
}

// TopK returns up to k best-matching documents. k <= 0 returns every match.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		id    string
		score float64
		pos   int
	}
	var buf []scored
	for pos, d := range i.docs {
		over := i.matches(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + len(d.tokens) - over)
		buf = append(buf, scored{id: d.id, score: float64(over) / union, pos: pos})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		return buf[a].pos < buf[b].pos
	})

	if k <= 0 || k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for j := 0; j < k; j++ {
		out[j] = Result{ID: buf[j].id, Score: buf[j].score}
	}
	return out
}

// matches counts query tokens found in d, exactly or by prefix.
func (i *index) matches(q, d map[string]struct{}) int {
	n := 0
	for qt := range q {
		if _, ok := d[qt]; ok {
			n++
			continue
		}
		if i.cfg.minPrefixRunes == 0 || utf8.RuneCountInString(qt) < i.cfg.minPrefixRunes {
			continue
		}
		for dt := range d {
			if strings.HasPrefix(dt, qt) {
				n++
				break
			}
		}
	}
	return n
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
