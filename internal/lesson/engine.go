// Package lesson implements deterministic vocabulary delivery: one
// catalog entry per triggering intent, rendered through a fixed template
// and advancing the session's lesson index.
package lesson

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
	"github.com/futenglish/coach/internal/catalog"
)

// ErrLessonsExhausted signals that every catalog entry has been
// delivered. Recoverable: the composer redirects to free chat.
var ErrLessonsExhausted = errors.New("vocabulary catalog exhausted")

// Greetings rotate deterministically with the lesson index.
var greetings = []string{
	"Opa, %s! Vamos aprender uma palavra importante!",
	"E aí, %s! Bora para mais uma palavra de futebol!",
	"Beleza, %s! Hoje temos uma palavra massa!",
	"Fala, %s! Preparado para mais vocabulário?",
}

// Engine delivers lessons and advances progression through the store
type Engine struct {
	catalog *catalog.Catalog
	store   repositories.SessionStore
	logger  *zap.Logger
}

// NewEngine creates a lesson engine over the loaded catalog
func NewEngine(cat *catalog.Catalog, store repositories.SessionStore, logger *zap.Logger) *Engine {
	return &Engine{catalog: cat, store: store, logger: logger}
}

// Deliver renders the entry at the session's lesson index and advances
// the index by one, clamped at the catalog length. Beyond the last entry
// it returns ErrLessonsExhausted without touching the session.
func (e *Engine) Deliver(session *entities.UserSession) (string, error) {
	index := session.LessonIndex
	entry, ok := e.catalog.Entry(index)
	if !ok {
		e.logger.Info("Lessons exhausted",
			zap.String("userID", session.ID),
			zap.Int("lessonIndex", index))
		return "", ErrLessonsExhausted
	}

	text := render(entry, session, index)

	e.store.Update(session.ID, func(s *entities.UserSession) {
		// Guard against double advancement when the same unit of work is
		// retried; the index only ever moves forward.
		if s.LessonIndex == index && s.LessonIndex < e.catalog.Len() {
			s.LessonIndex++
		}
		s.State = entities.StateLessonActive
	})

	e.logger.Info("Lesson delivered",
		zap.String("userID", session.ID),
		zap.Int("lesson", index+1),
		zap.String("word", entry.Word))

	return text, nil
}

// Remaining reports how many lessons the session has left
func (e *Engine) Remaining(session *entities.UserSession) int {
	left := e.catalog.Len() - session.LessonIndex
	if left < 0 {
		return 0
	}
	return left
}

func render(entry entities.VocabularyEntry, session *entities.UserSession, index int) string {
	var b strings.Builder

	fmt.Fprintf(&b, greetings[index%len(greetings)], session.Name)
	fmt.Fprintf(&b, "\nLição %d: a palavra de hoje é \"%s\".\n", index+1, entry.Word)
	fmt.Fprintf(&b, "Em português: %s.", entry.Translation)
	if entry.Explanation != "" {
		fmt.Fprintf(&b, " %s", entry.Explanation)
	}
	if entry.Pronunciation != "" {
		fmt.Fprintf(&b, "\nFala assim: %s.", entry.Pronunciation)
	}

	example := entry.ContextFor(session.Position)
	fmt.Fprintf(&b, "\nExemplo: \"%s\"", example)
	if entry.ExampleTranslation != "" && example == entry.ExampleSentence {
		fmt.Fprintf(&b, "\nOu seja: %s", entry.ExampleTranslation)
	}
	if entry.Tip != "" {
		fmt.Fprintf(&b, "\nDica: %s", entry.Tip)
	}
	fmt.Fprintf(&b, "\nÓtimo, %s! É só pedir a próxima!", session.Name)

	return b.String()
}
