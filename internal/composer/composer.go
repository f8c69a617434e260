// Package composer implements hybrid composition: each classified
// intent is mapped to exactly one strategy, either deterministic
// (onboarding, lessons, scripted commands) or generative (free chat with
// a scripted fallback). Every strategy terminates in reply text; no
// strategy ever fails the interaction.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
	"github.com/futenglish/coach/internal/intent"
	"github.com/futenglish/coach/internal/lesson"
)

// DefaultGenerateTimeout is the budget for one generative backend call.
const DefaultGenerateTimeout = 3 * time.Second

// Onboarding option lists, as presented to the user.
var (
	Positions = []string{
		"Goleiro", "Zagueiro", "Lateral", "Volante", "Meio-campo", "Atacante",
		"Não jogo, só assisto",
	}
	levelNames = map[entities.Level]string{
		entities.LevelBeginner:     "Iniciante",
		entities.LevelIntermediate: "Intermediário",
		entities.LevelAdvanced:     "Avançado",
	}
	levelOrder = []entities.Level{
		entities.LevelBeginner, entities.LevelIntermediate, entities.LevelAdvanced,
	}
)

var fallbackReplies = []string{
	"Rapaz, deu um branco aqui! Mas fala aí sobre futebol que eu te respondo!",
	"Opa! Travei legal agora! Conta pra mim: qual seu time do coração?",
	"Eita! Deu ruim no sistema! Mas bora falar de futebol mesmo assim!",
}

// Composer picks and runs one strategy per intent
type Composer struct {
	store      repositories.SessionStore
	lessons    *lesson.Engine
	generator  repositories.Generator
	genTimeout time.Duration
	logger     *zap.Logger
}

// New creates a composer. genTimeout zero selects the default budget.
func New(
	store repositories.SessionStore,
	lessons *lesson.Engine,
	generator repositories.Generator,
	genTimeout time.Duration,
	logger *zap.Logger,
) *Composer {
	if genTimeout <= 0 {
		genTimeout = DefaultGenerateTimeout
	}
	return &Composer{
		store:      store,
		lessons:    lessons,
		generator:  generator,
		genTimeout: genTimeout,
		logger:     logger,
	}
}

// Compose produces the reply text for a classified message. The session
// argument is the state before this message; mutations go through the
// store.
func (c *Composer) Compose(ctx context.Context, session *entities.UserSession, message string, it intent.Intent) string {
	switch it.Kind {
	case intent.NeedsOnboarding:
		return c.onboard(session, message, it.MissingField)
	case intent.StartLesson, intent.ContinueLesson:
		return c.deliverLesson(ctx, session, message)
	case intent.RepeatAudio:
		return c.repeatLast(session)
	case intent.Progress:
		return c.progressReport(session)
	case intent.Help:
		return helpText
	default:
		return c.freeChat(ctx, session, message)
	}
}

// deliverLesson runs the deterministic lesson strategy, degrading to
// free-chat behavior once the catalog is exhausted.
func (c *Composer) deliverLesson(ctx context.Context, session *entities.UserSession, message string) string {
	text, err := c.lessons.Deliver(session)
	if err == nil {
		return text
	}
	if !errors.Is(err, lesson.ErrLessonsExhausted) {
		// Deliver has no other failure mode today; keep the reply flowing
		// regardless.
		c.logger.Error("Lesson delivery failed", zap.Error(err))
	}
	return fmt.Sprintf("Parabéns, %s! Você completou todas as %d lições! 🎉\n%s",
		session.Name, c.lessons.Remaining(session)+session.LessonIndex, c.freeChat(ctx, session, message))
}

// freeChat calls the generative backend inside the timeout budget and
// answers with a scripted football line when the backend misbehaves. The
// user always receives a reply.
func (c *Composer) freeChat(ctx context.Context, session *entities.UserSession, message string) string {
	ctx, cancel := context.WithTimeout(ctx, c.genTimeout)
	defer cancel()

	prompt := repositories.PromptContext{
		Name:     session.Name,
		Position: session.Position,
		Level:    session.Level,
		History:  session.History,
		Message:  message,
	}

	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("Generative backend unavailable, using scripted fallback",
			zap.String("userID", session.ID),
			zap.Error(err))
		return c.fallback(session)
	}

	c.store.Update(session.ID, func(s *entities.UserSession) {
		s.State = entities.StateFreeChat
	})

	return filterReply(text)
}

func (c *Composer) fallback(session *entities.UserSession) string {
	line := fallbackReplies[int(time.Now().UnixNano())%len(fallbackReplies)]
	if session.Name != "" {
		return fmt.Sprintf("%s Segura aí, %s!", line, session.Name)
	}
	return line
}

// repeatLast re-serves the last composed reply so the pipeline can
// synthesize it again.
func (c *Composer) repeatLast(session *entities.UserSession) string {
	if session.LastReply == "" {
		return fmt.Sprintf("Não tenho nada para repetir ainda, %s! Pede a próxima lição!", session.Name)
	}
	return session.LastReply
}

func (c *Composer) progressReport(session *entities.UserSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Estatísticas do %s:\n\n", session.Name)
	fmt.Fprintf(&b, "⭐ Nível: %s\n", levelNames[session.Level])
	fmt.Fprintf(&b, "📚 Lições completadas: %d\n", session.LessonIndex)
	fmt.Fprintf(&b, "⚽ Posição: %s\n", session.Position)
	fmt.Fprintf(&b, "\nContinue assim, %s! Você tá voando! 🚀", session.Name)
	return b.String()
}

const helpText = `🎯 Comandos do Professor Bola Gringa:

"próxima" - próxima lição
"áudio" - repetir o último áudio
"progresso" - ver suas estatísticas
"ajuda" - esta lista

💬 Dica: você também pode conversar comigo livremente sobre futebol!`

// onboard collects the profile one field at a time, in the fixed order
// name, position, level. The first contact gets the welcome prompt; each
// later message is treated as the answer to the current missing field.
func (c *Composer) onboard(session *entities.UserSession, message string, field entities.ProfileField) string {
	if !hasCoachTurn(session) {
		return welcomeText
	}

	answer := strings.TrimSpace(message)

	switch field {
	case entities.FieldName:
		if len([]rune(answer)) < 2 || isGreeting(answer) {
			return "Preciso saber seu nome de verdade para personalizar as lições!\nQual é o seu nome?"
		}
		c.store.Update(session.ID, func(s *entities.UserSession) { s.Name = answer })
		return fmt.Sprintf("Prazer, %s! 🤝\nQual posição você joga (ou gosta de assistir)?\n\n%s\n\nDigite o número ou o nome:",
			answer, numberedOptions(Positions))

	case entities.FieldPosition:
		position, ok := parsePosition(answer)
		if !ok {
			return fmt.Sprintf("Escolha uma das opções:\n\n%s", numberedOptions(Positions))
		}
		c.store.Update(session.ID, func(s *entities.UserSession) { s.Position = position })
		return fmt.Sprintf("Legal! %s é uma posição importante! ⚽\nQual seu nível de inglês?\n\n%s\n\nDigite o número ou o nome:",
			position, numberedOptions(levelOptions()))

	case entities.FieldLevel:
		level, ok := parseLevel(answer)
		if !ok {
			return fmt.Sprintf("Escolha uma das opções:\n\n%s", numberedOptions(levelOptions()))
		}
		updated := c.store.Update(session.ID, func(s *entities.UserSession) {
			s.Level = level
			s.State = entities.StateProfileComplete
		})
		return fmt.Sprintf("Perfeito, %s! 🎉\nSeu perfil: %s, %s, nível %s.\nAgora vamos aprender inglês com futebol! Pede a primeira lição quando quiser!",
			updated.Name, updated.Name, updated.Position, levelNames[level])
	}

	return welcomeText
}

const welcomeText = `🔥 Eaí, futuro craque! Sou o Professor Bola Gringa! ⚽

Vou te ensinar inglês usando o que você mais ama: FUTEBOL!

Vamos começar se conhecendo melhor. Qual é o seu nome?`

func hasCoachTurn(session *entities.UserSession) bool {
	for _, turn := range session.History {
		if turn.Role == entities.RoleCoach {
			return true
		}
	}
	return false
}

func isGreeting(message string) bool {
	switch strings.ToLower(message) {
	case "oi", "olá", "ola", "hey", "hello", "hi", "eai", "eaí":
		return true
	}
	return false
}

func numberedOptions(options []string) string {
	lines := make([]string, len(options))
	for i, opt := range options {
		lines[i] = fmt.Sprintf("%d. %s", i+1, opt)
	}
	return strings.Join(lines, "\n")
}

func levelOptions() []string {
	options := make([]string, len(levelOrder))
	for i, lvl := range levelOrder {
		options[i] = levelNames[lvl]
	}
	return options
}

func parsePosition(input string) (string, bool) {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(Positions) {
		return Positions[n-1], true
	}
	lower := strings.ToLower(input)
	for _, pos := range Positions {
		posLower := strings.ToLower(pos)
		if strings.Contains(lower, posLower) || strings.Contains(posLower, lower) {
			return pos, true
		}
	}
	return "", false
}

func parseLevel(input string) (entities.Level, bool) {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(levelOrder) {
		return levelOrder[n-1], true
	}
	lower := strings.ToLower(input)
	for lvl, name := range levelNames {
		if strings.Contains(lower, strings.ToLower(name)) || strings.Contains(lower, string(lvl)) {
			return lvl, true
		}
	}
	return "", false
}

// filterReply bounds the generative text and trims excess blank lines,
// mirroring the limits of the chat transports.
func filterReply(text string) string {
	const maxReplyLength = 4000

	text = strings.TrimSpace(text)
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	if len(text) > maxReplyLength {
		// Back up to a rune boundary so the cut never splits an
		// accented character in half.
		cut := maxReplyLength - 3
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}
