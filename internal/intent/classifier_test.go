package intent

import (
	"testing"

	"github.com/futenglish/coach/domain/entities"
)

func completeSession() *entities.UserSession {
	s := entities.NewUserSession("user-1")
	s.Name = "Pedro"
	s.Position = "Atacante"
	s.Level = entities.LevelIntermediate
	return s
}

func TestClassifyOnboardingWinsOverEverything(t *testing.T) {
	s := entities.NewUserSession("user-1")

	// Even an explicit lesson request cannot skip onboarding.
	it := Classify("próxima lição", s)
	if it.Kind != NeedsOnboarding {
		t.Errorf("Expected onboarding for incomplete profile, got %q", it.Kind)
	}
	if it.MissingField != entities.FieldName {
		t.Errorf("Expected missing field name, got %q", it.MissingField)
	}

	s.Name = "Pedro"
	it = Classify("ajuda", s)
	if it.Kind != NeedsOnboarding || it.MissingField != entities.FieldPosition {
		t.Errorf("Expected onboarding/position, got %q/%q", it.Kind, it.MissingField)
	}
}

func TestClassifyLessonTriggers(t *testing.T) {
	s := completeSession()

	for _, msg := range []string{"próxima", "proxima licao", "quero a next lesson", "Nova palavra, por favor"} {
		it := Classify(msg, s)
		if it.Kind != StartLesson {
			t.Errorf("Classify(%q) = %q, expected start_lesson at index 0", msg, it.Kind)
		}
	}

	s.LessonIndex = 3
	if it := Classify("próxima", s); it.Kind != ContinueLesson {
		t.Errorf("Expected continue_lesson with progress underway, got %q", it.Kind)
	}
}

func TestClassifyCommandPhrases(t *testing.T) {
	s := completeSession()

	cases := []struct {
		message string
		want    Kind
	}{
		{"repetir áudio", RepeatAudio},
		{"toca o audio de novo", RepeatAudio},
		{"meu progresso", Progress},
		{"como estou indo?", Progress},
		{"ajuda", Help},
		{"quais comandos tem?", Help},
		{"qual seu time do coração?", FreeChat},
		{"", FreeChat},
	}

	for _, tc := range cases {
		if it := Classify(tc.message, s); it.Kind != tc.want {
			t.Errorf("Classify(%q) = %q, expected %q", tc.message, it.Kind, tc.want)
		}
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	s := completeSession()

	// A message matching several trigger sets resolves by rule order:
	// lesson before repeat before progress before help.
	if it := Classify("próxima lição com áudio e progresso, ajuda!", s); it.Kind != StartLesson {
		t.Errorf("Expected lesson rule to win, got %q", it.Kind)
	}
	if it := Classify("repetir áudio do meu progresso, ajuda", s); it.Kind != RepeatAudio {
		t.Errorf("Expected repeat rule to win over progress and help, got %q", it.Kind)
	}
}

func TestClassifyIsPure(t *testing.T) {
	s := completeSession()
	s.LessonIndex = 2

	state := s.State
	Classify("próxima lição", s)
	if s.LessonIndex != 2 || s.State != state {
		t.Error("Expected Classify to leave the session untouched")
	}
}
