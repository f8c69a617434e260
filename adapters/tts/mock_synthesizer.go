package tts

import (
	"context"

	"github.com/futenglish/coach/domain/repositories"
)

// MockSynthesizer is a canned SpeechSynthesizer for development and
// tests. It emits two bytes of PCM per input rune unless overridden.
type MockSynthesizer struct {
	// Audio overrides the generated bytes when non-nil.
	Audio []byte
	// Err, when set, is returned instead of audio.
	Err error
	// FailFirst makes the first N calls fail with Err before succeeding,
	// which exercises retry paths.
	FailFirst int

	calls int
}

var _ repositories.SpeechSynthesizer = (*MockSynthesizer)(nil)

// Synthesize returns deterministic fake PCM for the given text.
func (m *MockSynthesizer) Synthesize(ctx context.Context, text string, voice repositories.Voice) ([]byte, error) {
	m.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil && (m.FailFirst == 0 || m.calls <= m.FailFirst) {
		return nil, m.Err
	}
	if m.Audio != nil {
		return m.Audio, nil
	}
	audio := make([]byte, 0, len(text)*2)
	for _, r := range text {
		audio = append(audio, byte(r), byte(r>>8))
	}
	return audio, nil
}

// Calls reports how many times Synthesize was invoked.
func (m *MockSynthesizer) Calls() int {
	return m.calls
}
