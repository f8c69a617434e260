// Package engine ties the conversation pipeline together: rate
// limiting, intent classification, reply composition, language tagging,
// speech synthesis and transcript archival. Messages from the same user
// are processed strictly in arrival order on a dedicated lane; distinct
// users run concurrently.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
	"github.com/futenglish/coach/internal/composer"
	"github.com/futenglish/coach/internal/intent"
	"github.com/futenglish/coach/internal/langtag"
	"github.com/futenglish/coach/internal/speech"
)

const (
	// laneBuffer bounds how many messages a single user can have queued.
	laneBuffer = 16
	// laneIdleTimeout is how long a lane worker lingers without traffic
	// before shutting down. Lanes are cheap to recreate.
	laneIdleTimeout = 5 * time.Minute
	// archiveTimeout bounds the background transcript write.
	archiveTimeout = 10 * time.Second
)

// ErrBusy is returned when a user's lane is full. The transport layer
// translates it into a polite retry message.
var ErrBusy = errors.New("too many pending messages for user")

const rateLimitReply = "⏱️ Calma, craque! Muitas mensagens de uma vez. Respira fundo e tenta de novo em um minutinho. ⚽"

// Engine processes one user message end to end and returns the bundled
// text plus assembled audio.
type Engine struct {
	store    repositories.SessionStore
	composer *composer.Composer
	tagger   *langtag.Tagger
	pipeline *speech.Pipeline
	archive  repositories.TranscriptArchive
	logger   *zap.Logger

	lanes *laneGroup
}

// New creates the conversation engine. archive may be nil when no
// transcript store is configured.
func New(
	store repositories.SessionStore,
	comp *composer.Composer,
	tagger *langtag.Tagger,
	pipeline *speech.Pipeline,
	archive repositories.TranscriptArchive,
	logger *zap.Logger,
) *Engine {
	e := &Engine{
		store:    store,
		composer: comp,
		tagger:   tagger,
		pipeline: pipeline,
		archive:  archive,
		logger:   logger,
	}
	e.lanes = newLaneGroup(e.process, logger)
	return e
}

// HandleMessage enqueues the message on the user's lane and waits for
// the reply. Calls for the same user are answered in arrival order.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) (entities.ReplyBundle, error) {
	return e.lanes.submit(ctx, userID, text)
}

// EvictIdle drops sessions idle for longer than ttl and reports how
// many were removed.
func (e *Engine) EvictIdle(ttl time.Duration) int {
	return e.store.EvictIdle(ttl)
}

// Reset discards the user's session so the next message restarts
// onboarding.
func (e *Engine) Reset(userID string) {
	e.store.Delete(userID)
}

// process runs on the user's lane goroutine, one message at a time.
func (e *Engine) process(ctx context.Context, userID, text string) (entities.ReplyBundle, error) {
	start := time.Now()

	var allowed bool
	session := e.store.Update(userID, func(s *entities.UserSession) {
		allowed = s.RecordMessage(time.Now())
	})
	if !allowed {
		e.logger.Warn("Rate limit hit", zap.String("user_id", userID))
		return entities.ReplyBundle{Text: rateLimitReply}, nil
	}

	it := intent.Classify(text, session)
	replyText := e.composer.Compose(ctx, session, text, it)

	var userTurn, coachTurn entities.Turn
	e.store.Update(userID, func(s *entities.UserSession) {
		s.AddTurn(entities.RoleUser, text)
		userTurn = s.History[len(s.History)-1]
		s.AddTurn(entities.RoleCoach, replyText)
		coachTurn = s.History[len(s.History)-1]
		s.LastReply = replyText
	})

	spans := e.tagger.Tag(replyText)
	segments := e.pipeline.Render(ctx, spans)
	audio := speech.Assemble(segments)

	e.archiveAsync(userID, []entities.Turn{userTurn, coachTurn})

	e.logger.Info("Processed message",
		zap.String("user_id", userID),
		zap.String("intent", string(it.Kind)),
		zap.Int("spans", len(spans)),
		zap.Bool("has_audio", audio != nil),
		zap.Duration("elapsed", time.Since(start)))

	return entities.ReplyBundle{Text: replyText, Audio: audio}, nil
}

// archiveAsync writes the turn pair in the background so a slow archive
// never delays the reply.
func (e *Engine) archiveAsync(userID string, turns []entities.Turn) {
	if e.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := e.archive.ArchiveTurns(ctx, userID, turns); err != nil {
			e.logger.Warn("Failed to archive turns",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}()
}
