package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/futenglish/coach/adapters/llm"
	"github.com/futenglish/coach/adapters/tts"
	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
	"github.com/futenglish/coach/internal/catalog"
	"github.com/futenglish/coach/internal/composer"
	"github.com/futenglish/coach/internal/langtag"
	"github.com/futenglish/coach/internal/lesson"
	"github.com/futenglish/coach/internal/speech"
	"github.com/futenglish/coach/internal/store"
)

type recordingArchive struct {
	mu    sync.Mutex
	turns map[string][]entities.Turn
	done  chan struct{}
}

func newRecordingArchive() *recordingArchive {
	return &recordingArchive{
		turns: make(map[string][]entities.Turn),
		done:  make(chan struct{}, 64),
	}
}

func (a *recordingArchive) ArchiveTurns(ctx context.Context, userID string, turns []entities.Turn) error {
	a.mu.Lock()
	a.turns[userID] = append(a.turns[userID], turns...)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *recordingArchive) turnsFor(userID string) []entities.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]entities.Turn(nil), a.turns[userID]...)
}

func newTestEngine(t *testing.T, generator repositories.Generator, arch repositories.TranscriptArchive) (*Engine, *store.MemoryStore) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cat, err := catalog.Load("", logger)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	st := store.NewMemoryStore(logger)
	lessons := lesson.NewEngine(cat, st, logger)
	comp := composer.New(st, lessons, generator, 200*time.Millisecond, logger)
	pipeline := speech.NewPipeline(&tts.MockSynthesizer{}, map[entities.Language]repositories.Voice{
		entities.LanguageNative: {ID: "voice-pt", Locale: "pt-BR"},
		entities.LanguageTarget: {ID: "voice-en", Locale: "en-US"},
	}, speech.PipelineConfig{
		Timeout:     100 * time.Millisecond,
		MaxRetries:  0,
		BackoffBase: time.Millisecond,
	}, logger)
	return New(st, comp, langtag.New(cat), pipeline, arch, logger), st
}

func onboard(t *testing.T, eng *Engine, userID string) {
	t.Helper()
	for _, msg := range []string{"oi", "Pedro", "6", "2"} {
		if _, err := eng.HandleMessage(context.Background(), userID, msg); err != nil {
			t.Errorf("Onboarding message %q failed: %v", msg, err)
			return
		}
	}
}

func TestHandleMessageFullTurn(t *testing.T) {
	eng, st := newTestEngine(t, &llm.MockGenerator{}, nil)
	onboard(t, eng, "user-1")

	bundle, err := eng.HandleMessage(context.Background(), "user-1", "próxima lição")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if !strings.Contains(bundle.Text, "Lição 1") {
		t.Errorf("Expected the first lesson, got %q", bundle.Text)
	}
	if !bundle.HasAudio() {
		t.Fatal("Expected assembled audio with the reply")
	}
	if string(bundle.Audio[0:4]) != "RIFF" {
		t.Error("Expected WAV-wrapped audio")
	}

	sess := st.Get("user-1")
	if sess.LastReply != bundle.Text {
		t.Error("Expected the reply recorded for repeat")
	}
	last := sess.History[len(sess.History)-1]
	if last.Role != entities.RoleCoach || last.Text != bundle.Text {
		t.Errorf("Expected the coach turn appended last, got %+v", last)
	}
	prev := sess.History[len(sess.History)-2]
	if prev.Role != entities.RoleUser || prev.Text != "próxima lição" {
		t.Errorf("Expected the user turn before the coach turn, got %+v", prev)
	}
}

func TestSameUserMessagesAreSerialized(t *testing.T) {
	eng, st := newTestEngine(t, &llm.MockGenerator{}, nil)
	onboard(t, eng, "user-1")

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.HandleMessage(context.Background(), "user-1", "próxima lição"); err != nil {
				t.Errorf("HandleMessage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Serialized processing delivers exactly one lesson per message,
	// with no index lost to interleaving.
	if got := st.Get("user-1").LessonIndex; got != n {
		t.Errorf("Expected lesson index %d after %d serialized requests, got %d", n, n, got)
	}
}

func TestDistinctUsersProgressIndependently(t *testing.T) {
	eng, st := newTestEngine(t, &llm.MockGenerator{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i)
			onboard(t, eng, userID)
			for j := 0; j <= i; j++ {
				if _, err := eng.HandleMessage(context.Background(), userID, "próxima"); err != nil {
					t.Errorf("HandleMessage failed for %s: %v", userID, err)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		userID := fmt.Sprintf("user-%d", i)
		if got := st.Get(userID).LessonIndex; got != i+1 {
			t.Errorf("Expected %s at lesson index %d, got %d", userID, i+1, got)
		}
	}
}

func TestRateLimit(t *testing.T) {
	eng, _ := newTestEngine(t, &llm.MockGenerator{}, nil)
	onboard(t, eng, "user-1")

	var limited bool
	for i := 0; i < entities.RateLimitPerMinute+2; i++ {
		bundle, err := eng.HandleMessage(context.Background(), "user-1", "ajuda")
		if err != nil {
			t.Fatalf("HandleMessage failed: %v", err)
		}
		if bundle.Text == rateLimitReply {
			limited = true
			if bundle.HasAudio() {
				t.Error("Expected no audio on the rate-limit reply")
			}
		}
	}
	if !limited {
		t.Error("Expected the rate limit to trigger inside the burst")
	}
}

func TestArchiveReceivesTurnPairs(t *testing.T) {
	arch := newRecordingArchive()
	eng, _ := newTestEngine(t, &llm.MockGenerator{}, arch)

	if _, err := eng.HandleMessage(context.Background(), "user-1", "oi"); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	select {
	case <-arch.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the archive write to happen in the background")
	}

	turns := arch.turnsFor("user-1")
	if len(turns) != 2 {
		t.Fatalf("Expected the user/coach turn pair archived, got %d turns", len(turns))
	}
	if turns[0].Role != entities.RoleUser || turns[1].Role != entities.RoleCoach {
		t.Errorf("Expected user then coach turns, got %q then %q", turns[0].Role, turns[1].Role)
	}
}

func TestReset(t *testing.T) {
	eng, st := newTestEngine(t, &llm.MockGenerator{}, nil)
	onboard(t, eng, "user-1")

	eng.Reset("user-1")
	if got := st.Get("user-1").State; got != entities.StateOnboarding {
		t.Errorf("Expected a fresh session after reset, got state %q", got)
	}
}

func TestLaneRetirementDoesNotLoseMessages(t *testing.T) {
	eng, _ := newTestEngine(t, &llm.MockGenerator{}, nil)
	onboard(t, eng, "user-1")

	if eng.lanes.active() == 0 {
		t.Fatal("Expected an active lane after traffic")
	}

	// New messages keep working however the lane lifecycle behaves.
	for i := 0; i < 3; i++ {
		if _, err := eng.HandleMessage(context.Background(), "user-1", "ajuda"); err != nil {
			t.Fatalf("HandleMessage failed: %v", err)
		}
	}
}
