package llm

import (
	"context"
	"fmt"

	"github.com/futenglish/coach/domain/repositories"
)

// MockGenerator is a canned Generator for development and tests.
type MockGenerator struct {
	// Reply overrides the default canned response when non-empty.
	Reply string
	// Err, when set, is returned instead of a reply.
	Err error
	// Delay lets tests simulate a slow backend.
	Delay func(ctx context.Context) error

	// Calls records every prompt received, in order.
	Calls []repositories.PromptContext
}

var _ repositories.Generator = (*MockGenerator)(nil)

// Generate returns the canned reply, honoring Delay and Err.
func (m *MockGenerator) Generate(ctx context.Context, prompt repositories.PromptContext) (string, error) {
	m.Calls = append(m.Calls, prompt)

	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", repositories.ErrTimeout, err)
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return fmt.Sprintf("Boa, %s! Continue praticando que o inglês vem junto com a bola.", promptName(prompt)), nil
}

func promptName(prompt repositories.PromptContext) string {
	if prompt.Name != "" {
		return prompt.Name
	}
	return "craque"
}
