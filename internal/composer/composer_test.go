package composer

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"

	"github.com/futenglish/coach/adapters/llm"
	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/internal/catalog"
	"github.com/futenglish/coach/internal/intent"
	"github.com/futenglish/coach/internal/lesson"
	"github.com/futenglish/coach/internal/store"
)

type fixture struct {
	composer *Composer
	store    *store.MemoryStore
	catalog  *catalog.Catalog
	mock     *llm.MockGenerator
}

func newFixture(t *testing.T, mock *llm.MockGenerator) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cat, err := catalog.Load("", logger)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	st := store.NewMemoryStore(logger)
	lessons := lesson.NewEngine(cat, st, logger)
	return &fixture{
		composer: New(st, lessons, mock, 200*time.Millisecond, logger),
		store:    st,
		catalog:  cat,
		mock:     mock,
	}
}

// sendMessage mirrors the engine's unit of work: classify against the
// current session, compose, then append both turns.
func (f *fixture) sendMessage(t *testing.T, userID, message string) string {
	t.Helper()
	sess := f.store.Get(userID)
	it := intent.Classify(message, sess)
	reply := f.composer.Compose(context.Background(), sess, message, it)
	if reply == "" {
		t.Fatalf("Compose returned an empty reply for %q", message)
	}
	f.store.Update(userID, func(s *entities.UserSession) {
		s.AddTurn(entities.RoleUser, message)
		s.AddTurn(entities.RoleCoach, reply)
		s.LastReply = reply
	})
	return reply
}

func TestOnboardingFlow(t *testing.T) {
	f := newFixture(t, &llm.MockGenerator{})

	// First contact gets the welcome prompt, whatever the message says.
	reply := f.sendMessage(t, "user-1", "oi")
	if !strings.Contains(reply, "Qual é o seu nome?") {
		t.Fatalf("Expected welcome asking for the name, got %q", reply)
	}

	// A greeting is not accepted as a name.
	reply = f.sendMessage(t, "user-1", "olá")
	if !strings.Contains(reply, "Qual é o seu nome?") {
		t.Fatalf("Expected name re-prompt after a greeting, got %q", reply)
	}

	reply = f.sendMessage(t, "user-1", "Pedro")
	if !strings.Contains(reply, "Prazer, Pedro!") {
		t.Fatalf("Expected name acknowledgment, got %q", reply)
	}
	if !strings.Contains(reply, "1. Goleiro") {
		t.Errorf("Expected numbered position options, got %q", reply)
	}

	// Position by number.
	reply = f.sendMessage(t, "user-1", "1")
	if !strings.Contains(reply, "Goleiro") || !strings.Contains(reply, "nível de inglês") {
		t.Fatalf("Expected level prompt after position, got %q", reply)
	}

	// Level by name.
	reply = f.sendMessage(t, "user-1", "iniciante")
	if !strings.Contains(reply, "Perfeito, Pedro!") {
		t.Fatalf("Expected profile completion, got %q", reply)
	}

	sess := f.store.Get("user-1")
	if sess.Name != "Pedro" || sess.Position != "Goleiro" || sess.Level != entities.LevelBeginner {
		t.Errorf("Expected complete profile, got %+v", sess)
	}
	if sess.State != entities.StateProfileComplete {
		t.Errorf("Expected profile_complete state, got %q", sess.State)
	}
}

func TestOnboardingRejectsUnknownPosition(t *testing.T) {
	f := newFixture(t, &llm.MockGenerator{})

	f.sendMessage(t, "user-1", "oi")
	f.sendMessage(t, "user-1", "Pedro")

	reply := f.sendMessage(t, "user-1", "astronauta")
	if !strings.Contains(reply, "Escolha uma das opções") {
		t.Errorf("Expected position re-prompt, got %q", reply)
	}
	if f.store.Get("user-1").Position != "" {
		t.Error("Expected position to remain unset after an invalid answer")
	}
}

func onboarded(f *fixture, t *testing.T, userID string) {
	t.Helper()
	f.sendMessage(t, userID, "oi")
	f.sendMessage(t, userID, "Pedro")
	f.sendMessage(t, userID, "6")
	f.sendMessage(t, userID, "2")
}

func TestLessonDelivery(t *testing.T) {
	f := newFixture(t, &llm.MockGenerator{})
	onboarded(f, t, "user-1")

	reply := f.sendMessage(t, "user-1", "próxima lição")
	if !strings.Contains(reply, "Lição 1") {
		t.Fatalf("Expected first lesson, got %q", reply)
	}

	reply = f.sendMessage(t, "user-1", "próxima")
	if !strings.Contains(reply, "Lição 2") {
		t.Fatalf("Expected second lesson, got %q", reply)
	}
}

func TestLessonsExhaustedDegradesToFreeChat(t *testing.T) {
	f := newFixture(t, &llm.MockGenerator{Reply: "Bora falar de tática então!"})
	onboarded(f, t, "user-1")

	f.store.Update("user-1", func(s *entities.UserSession) {
		s.LessonIndex = f.catalog.Len()
	})

	reply := f.sendMessage(t, "user-1", "próxima lição")
	if !strings.Contains(reply, "Parabéns, Pedro!") {
		t.Errorf("Expected congratulations on completion, got %q", reply)
	}
	if !strings.Contains(reply, "Bora falar de tática então!") {
		t.Errorf("Expected generative continuation, got %q", reply)
	}
}

func TestFreeChatUsesGenerator(t *testing.T) {
	f := newFixture(t, &llm.MockGenerator{Reply: "O Maracanã é um estádio lendário!"})
	onboarded(f, t, "user-1")

	reply := f.sendMessage(t, "user-1", "me fala do Maracanã")
	if reply != "O Maracanã é um estádio lendário!" {
		t.Fatalf("Expected generator reply, got %q", reply)
	}

	if got := f.store.Get("user-1").State; got != entities.StateFreeChat {
		t.Errorf("Expected free_chat state after a generative reply, got %q", got)
	}

	last := f.mock.Calls[len(f.mock.Calls)-1]
	if last.Name != "Pedro" || last.Message != "me fala do Maracanã" {
		t.Errorf("Expected profile and message in the prompt, got %+v", last)
	}
	if len(last.History) == 0 {
		t.Error("Expected the history window in the prompt")
	}
}

func TestFreeChatTimeoutFallsBack(t *testing.T) {
	mock := &llm.MockGenerator{
		Delay: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	f := newFixture(t, mock)
	onboarded(f, t, "user-1")

	stateBefore := f.store.Get("user-1").State

	start := time.Now()
	reply := f.sendMessage(t, "user-1", "qual o melhor time do mundo?")
	elapsed := time.Since(start)

	if !strings.Contains(reply, "Pedro") {
		t.Errorf("Expected personalized scripted fallback, got %q", reply)
	}
	if elapsed > time.Second {
		t.Errorf("Expected fallback within the timeout budget, took %v", elapsed)
	}
	if got := f.store.Get("user-1").State; got != stateBefore {
		t.Errorf("Expected state unchanged on fallback, got %q", got)
	}
}

func TestRepeatAudio(t *testing.T) {
	f := newFixture(t, &llm.MockGenerator{})
	onboarded(f, t, "user-1")

	// A profile with no reply yet has nothing to repeat.
	fresh := f.store.Update("user-2", func(s *entities.UserSession) {
		s.Name = "Ana"
		s.Position = "Lateral"
		s.Level = entities.LevelAdvanced
		s.State = entities.StateProfileComplete
	})
	reply := f.composer.Compose(context.Background(), fresh, "repetir áudio", intent.Intent{Kind: intent.RepeatAudio})
	if !strings.Contains(reply, "Não tenho nada para repetir") {
		t.Errorf("Expected nothing-to-repeat reply, got %q", reply)
	}

	lessonReply := f.sendMessage(t, "user-1", "próxima lição")
	if repeat := f.sendMessage(t, "user-1", "repetir áudio"); repeat != lessonReply {
		t.Errorf("Expected the last reply verbatim, got %q", repeat)
	}
}

func TestProgressAndHelp(t *testing.T) {
	f := newFixture(t, &llm.MockGenerator{})
	onboarded(f, t, "user-1")
	f.sendMessage(t, "user-1", "próxima lição")

	progress := f.sendMessage(t, "user-1", "meu progresso")
	if !strings.Contains(progress, "Lições completadas: 1") {
		t.Errorf("Expected lesson count in the progress report, got %q", progress)
	}
	if !strings.Contains(progress, "Atacante") {
		t.Errorf("Expected position in the progress report, got %q", progress)
	}

	help := f.sendMessage(t, "user-1", "ajuda")
	if !strings.Contains(help, "Comandos do Professor Bola Gringa") {
		t.Errorf("Expected the command list, got %q", help)
	}
}

func TestFilterReplyTruncatesOnRuneBoundary(t *testing.T) {
	// 2100 two-byte runes overflow the limit; the cut lands mid-rune
	// unless it backs up to a boundary.
	long := strings.Repeat("ã", 2100)

	got := filterReply(long)
	if !utf8.ValidString(got) {
		t.Fatal("Expected valid UTF-8 after truncation")
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected the ellipsis suffix, got tail %q", got[len(got)-8:])
	}
	if len(got) > 4000 {
		t.Errorf("Expected at most 4000 bytes, got %d", len(got))
	}
}
