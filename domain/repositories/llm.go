package repositories

import (
	"context"
	"errors"

	"github.com/futenglish/coach/domain/entities"
)

// ErrTimeout is returned by external collaborators when a call exceeded
// its budget. ErrService covers every other backend failure. Both are
// recovered locally; neither ever reaches the transport layer.
var (
	ErrTimeout = errors.New("external service call timed out")
	ErrService = errors.New("external service call failed")
)

// PromptContext carries everything the generative backend needs to
// answer in character: the user profile, the bounded history window and
// the current message.
type PromptContext struct {
	Name     string
	Position string
	Level    entities.Level
	History  []entities.Turn
	Message  string
}

// Generator abstracts the generative backend used for free-form replies
type Generator interface {
	// Generate returns the model's reply text. Failures are reported as
	// ErrTimeout or ErrService (possibly wrapped).
	Generate(ctx context.Context, prompt PromptContext) (string, error)
}
