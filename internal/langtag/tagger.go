// Package langtag partitions composed reply text into language-tagged
// spans for dual-voice synthesis. The partition is lossless: the
// concatenation of all spans' text equals the reply exactly, spans are
// ordered by offset, non-overlapping and contiguous.
package langtag

import (
	"regexp"

	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/internal/catalog"
)

var (
	// Word tokens: letters optionally followed by letters, digits,
	// apostrophes or hyphens. Byte offsets come straight from the regexp.
	tokenPattern = regexp.MustCompile(`[\p{L}][\p{L}\p{N}'’-]*`)
	// Explicit target-language marker: double-quoted runs.
	quotePattern = regexp.MustCompile(`"[^"\n]+"`)
)

// Tagger labels reply text against the vocabulary catalog
type Tagger struct {
	catalog *catalog.Catalog
}

// New creates a tagger over the loaded catalog
func New(cat *catalog.Catalog) *Tagger {
	return &Tagger{catalog: cat}
}

// Tag partitions text into language spans. Word tokens matching a
// catalog word or phrase (case-insensitive, longest match) are target;
// quoted runs matching a catalog example sentence are target as a whole;
// everything else is native. Separators inherit the label of the
// preceding word run and adjacent same-label runs merge into one span.
func (t *Tagger) Tag(text string) []entities.LanguageSpan {
	if text == "" {
		return nil
	}

	// Unassigned bytes inherit a neighbor's label after token labeling.
	labels := make([]entities.Language, len(text))

	// Quoted example sentences are target in full, quote marks included.
	for _, region := range quotePattern.FindAllStringIndex(text, -1) {
		inner := text[region[0]+1 : region[1]-1]
		if t.catalog.IsExampleSentence(inner) {
			fill(labels, region[0], region[1], entities.LanguageTarget)
		}
	}

	tokens := tokenPattern.FindAllStringIndex(text, -1)
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = text[tok[0]:tok[1]]
	}

	for i := 0; i < len(tokens); {
		if labels[tokens[i][0]] == entities.LanguageTarget {
			i++
			continue
		}
		if n := t.catalog.MatchTerm(words[i:]); n > 0 {
			fill(labels, tokens[i][0], tokens[i+n-1][1], entities.LanguageTarget)
			i += n
			continue
		}
		fill(labels, tokens[i][0], tokens[i][1], entities.LanguageNative)
		i++
	}

	// Separators take the preceding run's label; a leading separator
	// takes the first run's label. A reply with no word tokens at all is
	// a single native span.
	if first := firstAssigned(labels); first > 0 {
		fill(labels, 0, first, labels[first])
	}
	last := entities.LanguageNative
	for i := 0; i < len(labels); i++ {
		if labels[i] == "" {
			labels[i] = last
		} else {
			last = labels[i]
		}
	}

	return merge(text, labels)
}

func firstAssigned(labels []entities.Language) int {
	for i, l := range labels {
		if l != "" {
			return i
		}
	}
	return 0
}

func fill(labels []entities.Language, start, end int, lang entities.Language) {
	for i := start; i < end; i++ {
		labels[i] = lang
	}
}

func merge(text string, labels []entities.Language) []entities.LanguageSpan {
	var spans []entities.LanguageSpan
	start := 0
	for i := 1; i <= len(text); i++ {
		if i == len(text) || labels[i] != labels[start] {
			spans = append(spans, entities.LanguageSpan{
				Text:        text[start:i],
				Language:    labels[start],
				StartOffset: start,
				EndOffset:   i,
			})
			start = i
		}
	}
	return spans
}
