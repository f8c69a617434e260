// Package intent maps an incoming message plus the current session state
// to a closed set of intent variants. Classification is a pure function:
// an ordered rule table evaluated first-match-wins, most specific rule
// first, with no side effects. It is testable independent of any backend.
package intent

import (
	"strings"

	"github.com/futenglish/coach/domain/entities"
)

// Kind enumerates the closed set of intent variants
type Kind string

const (
	NeedsOnboarding Kind = "needs_onboarding"
	StartLesson     Kind = "start_lesson"
	ContinueLesson  Kind = "continue_lesson"
	RepeatAudio     Kind = "repeat_audio"
	Progress        Kind = "progress"
	Help            Kind = "help"
	FreeChat        Kind = "free_chat"
)

// Intent is the classification result. MissingField is set only for
// NeedsOnboarding.
type Intent struct {
	Kind         Kind
	MissingField entities.ProfileField
}

// Trigger keyword sets, matched case-insensitively as substrings of the
// message. Order inside a set does not matter; rule order does.
var (
	lessonTriggers = []string{
		"próxima", "proxima", "próximo", "proximo", "next",
		"lição", "licao", "lesson", "nova palavra", "continuar", "avançar", "avancar",
	}
	repeatTriggers = []string{
		"áudio", "audio", "repetir", "repeat", "som", "tocar de novo", "quero ouvir",
	}
	progressTriggers = []string{
		"progresso", "progress", "estatísticas", "estatisticas", "stats", "como estou",
	}
	helpTriggers = []string{
		"ajuda", "help", "comandos", "como funciona", "o que posso fazer",
	}
)

// Classify applies the rule table:
//
//  1. Any missing profile field wins over everything: the reply must
//     drive onboarding before lessons or free chat.
//  2. Lesson trigger keywords start or continue the lesson progression.
//  3. Repeat-audio, progress and help command phrases.
//  4. Everything else is free chat.
func Classify(message string, session *entities.UserSession) Intent {
	if field := session.MissingProfileField(); field != "" {
		return Intent{Kind: NeedsOnboarding, MissingField: field}
	}

	lower := strings.ToLower(strings.TrimSpace(message))

	if matchesAny(lower, lessonTriggers) {
		if session.LessonIndex == 0 {
			return Intent{Kind: StartLesson}
		}
		return Intent{Kind: ContinueLesson}
	}
	if matchesAny(lower, repeatTriggers) {
		return Intent{Kind: RepeatAudio}
	}
	if matchesAny(lower, progressTriggers) {
		return Intent{Kind: Progress}
	}
	if matchesAny(lower, helpTriggers) {
		return Intent{Kind: Help}
	}

	return Intent{Kind: FreeChat}
}

func matchesAny(message string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(message, t) {
			return true
		}
	}
	return false
}
