package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/futenglish/coach/adapters/tts"
	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
)

func testVoices() map[entities.Language]repositories.Voice {
	return map[entities.Language]repositories.Voice{
		entities.LanguageNative: {ID: "voice-pt", Locale: "pt-BR"},
		entities.LanguageTarget: {ID: "voice-en", Locale: "en-US"},
	}
}

func fastConfig() PipelineConfig {
	return PipelineConfig{
		Timeout:     100 * time.Millisecond,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	}
}

func TestRenderSelectsVoicePerLanguage(t *testing.T) {
	mock := &tts.MockSynthesizer{}
	p := NewPipeline(mock, testVoices(), fastConfig(), zaptest.NewLogger(t))

	spans := []entities.LanguageSpan{
		{Text: "A palavra de hoje é ", Language: entities.LanguageNative},
		{Text: "goalkeeper", Language: entities.LanguageTarget},
		{Text: ", que significa goleiro.", Language: entities.LanguageNative},
	}

	segments := p.Render(context.Background(), spans)
	if len(segments) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(segments))
	}
	if segments[0].VoiceID != "voice-pt" || segments[1].VoiceID != "voice-en" || segments[2].VoiceID != "voice-pt" {
		t.Errorf("Expected per-language voices, got %q/%q/%q",
			segments[0].VoiceID, segments[1].VoiceID, segments[2].VoiceID)
	}
	for i, seg := range segments {
		if len(seg.Bytes) == 0 {
			t.Errorf("Expected audio bytes in segment %d", i)
		}
	}
}

func TestRenderRetriesThenSucceeds(t *testing.T) {
	mock := &tts.MockSynthesizer{
		Err:       errors.New("transient backend failure"),
		FailFirst: 2,
	}
	p := NewPipeline(mock, testVoices(), fastConfig(), zaptest.NewLogger(t))

	spans := []entities.LanguageSpan{{Text: "goalkeeper", Language: entities.LanguageTarget}}
	segments := p.Render(context.Background(), spans)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	if len(segments[0].Bytes) == 0 {
		t.Error("Expected the third attempt to succeed")
	}
	if mock.Calls() != 3 {
		t.Errorf("Expected 3 synthesis attempts, got %d", mock.Calls())
	}
}

func TestRenderPersistentFailureDegradesSpan(t *testing.T) {
	mock := &tts.MockSynthesizer{Err: repositories.ErrService}
	p := NewPipeline(mock, testVoices(), fastConfig(), zaptest.NewLogger(t))

	spans := []entities.LanguageSpan{
		{Text: "Tudo certo por aqui.", Language: entities.LanguageNative},
		{Text: "goalkeeper", Language: entities.LanguageTarget},
	}
	segments := p.Render(context.Background(), spans)

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if seg.Bytes != nil {
			t.Errorf("Expected nil bytes for failed segment %d", i)
		}
	}
	// 1 initial + 2 retries per span.
	if mock.Calls() != 6 {
		t.Errorf("Expected 6 synthesis attempts, got %d", mock.Calls())
	}
}

func TestRenderSkipsSpansEmptyAfterCleaning(t *testing.T) {
	mock := &tts.MockSynthesizer{}
	p := NewPipeline(mock, testVoices(), fastConfig(), zaptest.NewLogger(t))

	spans := []entities.LanguageSpan{
		{Text: "⚽🔥", Language: entities.LanguageNative},
		{Text: "Bora treinar!", Language: entities.LanguageNative},
	}
	segments := p.Render(context.Background(), spans)

	if len(segments) != 1 {
		t.Fatalf("Expected the emoji-only span skipped, got %d segments", len(segments))
	}
}
