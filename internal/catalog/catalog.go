// Package catalog loads the curated vocabulary catalog. The catalog is
// read once at process start from an embedded JSON artifact (optionally
// overridden by a file path) and is immutable afterwards; its stable
// ordering defines lesson progression.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/futenglish/coach/domain/entities"
)

//go:embed catalog.json
var defaultCatalog []byte

// Catalog is the immutable vocabulary list plus the lookup indexes the
// language tagger needs. Safe for concurrent reads.
type Catalog struct {
	entries   []entities.VocabularyEntry
	terms     map[string]int // lowercased word/phrase -> token count
	examples  map[string]struct{}
	maxPhrase int
}

// Load reads the catalog from path, or from the embedded artifact when
// path is empty.
func Load(path string, logger *zap.Logger) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
		data = fileData
		logger.Info("Loading vocabulary catalog from file", zap.String("path", path))
	}

	var entries []entities.VocabularyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c, err := New(entries)
	if err != nil {
		return nil, err
	}

	logger.Info("Vocabulary catalog loaded", zap.Int("entries", c.Len()))
	return c, nil
}

// New builds a catalog from in-memory entries
func New(entries []entities.VocabularyEntry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one entry")
	}

	c := &Catalog{
		entries:  entries,
		terms:    make(map[string]int, len(entries)),
		examples: make(map[string]struct{}, len(entries)),
	}

	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %d invalid: %w", i, err)
		}
		term := strings.ToLower(entries[i].Word)
		n := len(strings.Fields(term))
		c.terms[term] = n
		if n > c.maxPhrase {
			c.maxPhrase = n
		}
		c.examples[normalizeSentence(entries[i].ExampleSentence)] = struct{}{}
		for _, line := range entries[i].PositionContext {
			c.examples[normalizeSentence(line)] = struct{}{}
		}
	}

	return c, nil
}

// Len returns the number of catalog entries
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entry returns the entry at the given lesson index
func (c *Catalog) Entry(index int) (entities.VocabularyEntry, bool) {
	if index < 0 || index >= len(c.entries) {
		return entities.VocabularyEntry{}, false
	}
	return c.entries[index], true
}

// Entries returns the full ordered entry list
func (c *Catalog) Entries() []entities.VocabularyEntry {
	return c.entries
}

// MatchTerm reports the longest catalog word or phrase starting at
// tokens[0], returned as its token count. Zero means no match.
// Matching is case-insensitive.
func (c *Catalog) MatchTerm(tokens []string) int {
	limit := c.maxPhrase
	if len(tokens) < limit {
		limit = len(tokens)
	}
	for n := limit; n >= 1; n-- {
		candidate := strings.ToLower(strings.Join(tokens[:n], " "))
		if c.terms[candidate] == n {
			return n
		}
	}
	return 0
}

// IsExampleSentence reports whether the quoted text matches a catalog
// example sentence or position-context line.
func (c *Catalog) IsExampleSentence(text string) bool {
	_, ok := c.examples[normalizeSentence(text)]
	return ok
}

// MaxPhraseTokens returns the token count of the longest catalog phrase
func (c *Catalog) MaxPhraseTokens() int {
	return c.maxPhrase
}

func normalizeSentence(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".!?")
}
