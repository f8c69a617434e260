package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
)

const (
	defaultModel           = "gemini-2.0-flash"
	defaultTemperature     = 0.7
	defaultTopP            = 0.9
	defaultTopK            = 40
	defaultMaxOutputTokens = 256
)

// systemPersona keeps generated replies inside the coach character: it
// answers in Portuguese only, short, and always steers back to football.
const systemPersona = `Você é o Professor Bola Gringa, especialista em ensinar inglês através do futebol para brasileiros.

REGRAS IMPORTANTES:
- FALE APENAS EM PORTUGUÊS na sua resposta
- NUNCA pronuncie palavras em inglês
- Se mencionar palavra inglesa, diga "essa palavra em inglês" ou "em inglês isso é"
- Seja animado, positivo e encorajador
- Use referências do futebol brasileiro e internacional
- Máximo 3 frases por resposta
- Conecte com a posição do jogador quando relevante

CONTEXTO DO USUÁRIO:
- Nome: %s
- Posição: %s
- Nível: %s

Se a pergunta não for sobre futebol, redirecione gentilmente para o tema mantendo a persona.`

// GeminiConfig holds the tunables for the Gemini backend.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	return nil
}

// NewGeminiConfigFromEnv builds a GeminiConfig from environment variables
func NewGeminiConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_MODEL"),
	}
}

// GeminiGenerator implements the Generator interface using Google's Gemini API
type GeminiGenerator struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

var _ repositories.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a Gemini-backed reply generator
func NewGeminiGenerator(config GeminiConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	if config.Model == "" {
		config.Model = defaultModel
		logger.Info("Using default model", zap.String("model", config.Model))
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	if config.TopP == 0 {
		config.TopP = defaultTopP
	}
	if config.TopK == 0 {
		config.TopK = defaultTopK
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaultMaxOutputTokens
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Generate sends the profile, history window and current message to the
// model and returns its reply text. The caller owns the deadline.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt repositories.PromptContext) (string, error) {
	contents := g.buildContents(prompt)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.config.Temperature),
		TopP:            genai.Ptr(g.config.TopP),
		TopK:            genai.Ptr(g.config.TopK),
		MaxOutputTokens: int32(g.config.MaxOutputTokens),
	}

	response, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, config)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("Gemini call exceeded deadline", zap.Error(err))
			return "", fmt.Errorf("%w: %v", repositories.ErrTimeout, err)
		}
		g.logger.Error("Gemini call failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", repositories.ErrService, err)
	}

	text := extractText(response)
	if text == "" {
		g.logger.Warn("Gemini returned no usable content")
		return "", fmt.Errorf("%w: empty response", repositories.ErrService)
	}

	g.logger.Info("Generated reply",
		zap.String("model", g.config.Model),
		zap.Int("reply_length", len(text)))

	return text, nil
}

// buildContents assembles persona, bounded history and the current turn
// into the Gemini content list. The persona rides as the leading user
// message because the coach profile changes per call.
func (g *GeminiGenerator) buildContents(prompt repositories.PromptContext) []*genai.Content {
	persona := fmt.Sprintf(systemPersona, orDefault(prompt.Name, "Amigo"),
		orDefault(prompt.Position, "Jogador"), levelLabel(prompt.Level))

	contents := []*genai.Content{genai.NewContentFromText(persona, genai.RoleUser)}

	for _, turn := range prompt.History {
		var role genai.Role = genai.RoleUser
		if turn.Role == entities.RoleCoach {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	contents = append(contents, genai.NewContentFromText(prompt.Message, genai.RoleUser))
	return contents
}

func extractText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func levelLabel(level entities.Level) string {
	switch level {
	case entities.LevelBeginner:
		return "Iniciante"
	case entities.LevelAdvanced:
		return "Avançado"
	default:
		return "Intermediário"
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
