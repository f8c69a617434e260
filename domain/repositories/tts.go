package repositories

import "context"

// Voice binds a synthesis voice to a locale
type Voice struct {
	ID     string `json:"id"`
	Locale string `json:"locale"` // e.g. "pt-BR", "en-US"
}

// SpeechSynthesizer abstracts the external speech synthesis service.
// Implementations return raw PCM 16-bit LE mono audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}
