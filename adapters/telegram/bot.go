// Package telegram runs the long-polling Telegram transport. It maps
// chat commands to engine intents and delivers each reply as text plus
// a voice note built from the assembled narration.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/futenglish/coach/internal/engine"
)

// replyTimeout bounds one full reply: generation plus synthesis.
const replyTimeout = 30 * time.Second

// commandText maps slash commands onto the plain phrases the intent
// classifier already understands.
var commandText = map[string]string{
	"proxima":   "próxima lição",
	"licao":     "próxima lição",
	"audio":     "repetir áudio",
	"progresso": "meu progresso",
	"ajuda":     "ajuda",
}

// busyReply goes out when a chat floods its queue faster than replies
// can be produced.
const busyReply = "Calma, craque! Ainda estou respondendo suas mensagens anteriores. ⚽"

// Bot wraps the Telegram Bot API client.
type Bot struct {
	api     *tgbotapi.BotAPI
	engine  *engine.Engine
	workers *chatWorkers
	logger  *zap.Logger
}

// New creates the Telegram transport.
func New(token string, eng *engine.Engine, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	b := &Bot{
		api:    api,
		engine: eng,
		logger: logger,
	}
	b.workers = newChatWorkers(b.handleMessage, logger)
	return b, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30

	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegram bot stopped")
			return
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			// One worker per chat keeps replies in arrival order.
			if !b.workers.dispatch(ctx, update.Message) {
				b.send(tgbotapi.NewMessage(update.Message.Chat.ID, busyReply))
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := "tg:" + strconv.FormatInt(message.From.ID, 10)
	chatID := message.Chat.ID

	text := message.Text
	if message.IsCommand() {
		switch cmd := message.Command(); cmd {
		case "start":
			// A fresh /start always restarts onboarding.
			b.engine.Reset(userID)
			text = "oi"
		default:
			mapped, ok := commandText[cmd]
			if !ok {
				b.send(tgbotapi.NewMessage(chatID, "Não conheço esse comando. Manda /ajuda pra ver o que eu sei fazer! ⚽"))
				return
			}
			text = mapped
		}
	}

	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	bundle, err := b.engine.HandleMessage(ctx, userID, text)
	if err != nil {
		b.logger.Error("Failed to handle Telegram message",
			zap.String("user_id", userID),
			zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, "Deu um nó na rede aqui! Tenta de novo em instantes. ⚽"))
		return
	}

	b.send(tgbotapi.NewMessage(chatID, bundle.Text))

	if bundle.HasAudio() {
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{
			Name:  "resposta.wav",
			Bytes: bundle.Audio,
		})
		audio.Title = "Professor Bola Gringa"
		b.send(audio)
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Error("Failed to send Telegram message", zap.Error(err))
	}
}
