// Package speech renders language-tagged spans to audio through the
// external synthesis service and assembles the segments into a single
// deliverable stream. Failures degrade: a failed span loses its audio
// only, and an all-fail reply degrades to text-only.
package speech

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
)

// Pipeline defaults.
const (
	DefaultSynthesisTimeout = 5 * time.Second
	DefaultMaxRetries       = 2
	DefaultBackoffBase      = 300 * time.Millisecond
)

// PipelineConfig tunes per-span synthesis behavior
type PipelineConfig struct {
	// Timeout bounds one synthesis call.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per retry.
	BackoffBase time.Duration
}

// Pipeline synthesizes each span with the voice bound to its language
type Pipeline struct {
	synthesizer repositories.SpeechSynthesizer
	voices      map[entities.Language]repositories.Voice
	config      PipelineConfig
	logger      *zap.Logger
}

// NewPipeline creates a synthesis pipeline. Zero config fields select
// the defaults.
func NewPipeline(
	synthesizer repositories.SpeechSynthesizer,
	voices map[entities.Language]repositories.Voice,
	config PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if config.Timeout <= 0 {
		config.Timeout = DefaultSynthesisTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = DefaultBackoffBase
	}
	return &Pipeline{
		synthesizer: synthesizer,
		voices:      voices,
		config:      config,
		logger:      logger,
	}
}

// Render synthesizes every span in order. Segments keep span order; a
// segment with nil bytes marks a span whose synthesis failed after
// retries. Spans whose text is empty after cleaning produce no segment.
func (p *Pipeline) Render(ctx context.Context, spans []entities.LanguageSpan) []entities.AudioSegment {
	segments := make([]entities.AudioSegment, 0, len(spans))

	for _, span := range spans {
		text := CleanForSynthesis(span.Text)
		if text == "" {
			continue
		}

		voice := p.voices[span.Language]
		audio := p.synthesizeWithRetry(ctx, text, voice)
		if audio == nil {
			p.logger.Warn("Span dropped from audio after retries",
				zap.String("language", string(span.Language)),
				zap.String("voiceID", voice.ID),
				zap.Int("textLength", len(text)))
		}

		segments = append(segments, entities.AudioSegment{
			Bytes:    audio,
			Language: span.Language,
			VoiceID:  voice.ID,
		})
	}

	return segments
}

// synthesizeWithRetry runs up to 1+MaxRetries attempts with exponential
// backoff. Returns nil on persistent failure; the caller degrades the
// span to text-only.
func (p *Pipeline) synthesizeWithRetry(ctx context.Context, text string, voice repositories.Voice) []byte {
	backoff := p.config.BackoffBase

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		audio, err := p.synthesizer.Synthesize(callCtx, text, voice)
		cancel()

		if err == nil && len(audio) > 0 {
			return audio
		}

		p.logger.Warn("Synthesis attempt failed",
			zap.Int("attempt", attempt+1),
			zap.String("voiceID", voice.ID),
			zap.Error(err))

		if attempt == p.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return nil
}
