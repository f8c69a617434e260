package entities

import "errors"

// VocabularyEntry is a single curated vocabulary item. Entries are
// immutable and loaded once at process start; their order in the catalog
// defines lesson progression.
type VocabularyEntry struct {
	Word               string            `json:"word"`
	Translation        string            `json:"translation"`
	Pronunciation      string            `json:"pronunciation,omitempty"`
	Explanation        string            `json:"explanation,omitempty"`
	ExampleSentence    string            `json:"example_sentence"`
	ExampleTranslation string            `json:"example_translation,omitempty"`
	Tip                string            `json:"tip,omitempty"`
	PositionContext    map[string]string `json:"position_context,omitempty"`
}

// Validate checks the fields every catalog entry must carry
func (e *VocabularyEntry) Validate() error {
	if e.Word == "" {
		return errors.New("word is required")
	}
	if e.Translation == "" {
		return errors.New("translation is required")
	}
	if e.ExampleSentence == "" {
		return errors.New("example sentence is required")
	}
	return nil
}

// ContextFor returns the example line tailored to the user's playing
// position, falling back to the generic example sentence.
func (e *VocabularyEntry) ContextFor(position string) string {
	if line, ok := e.PositionContext[position]; ok && line != "" {
		return line
	}
	return e.ExampleSentence
}
