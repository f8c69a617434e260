package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	// chatQueueBuffer bounds messages waiting per chat.
	chatQueueBuffer = 16

	// chatIdleTimeout retires a chat's worker after this much silence.
	chatIdleTimeout = 5 * time.Minute
)

// chatWorkers owns one goroutine per active chat. Each worker drains
// its queue in FIFO order, so the reply to a message is always sent
// before the reply to the next message from the same chat.
type chatWorkers struct {
	mu      sync.Mutex
	queues  map[int64]*chatQueue
	process func(ctx context.Context, message *tgbotapi.Message)
	logger  *zap.Logger
}

type chatQueue struct {
	jobs   chan *tgbotapi.Message
	closed bool
}

func newChatWorkers(process func(ctx context.Context, message *tgbotapi.Message), logger *zap.Logger) *chatWorkers {
	return &chatWorkers{
		queues:  make(map[int64]*chatQueue),
		process: process,
		logger:  logger,
	}
}

// dispatch queues the message on its chat's worker. It reports false
// when the queue is full. The send happens under the lock so a queue
// can never retire between lookup and delivery.
func (w *chatWorkers) dispatch(ctx context.Context, message *tgbotapi.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	chatID := message.Chat.ID
	q, ok := w.queues[chatID]
	if !ok || q.closed {
		q = &chatQueue{jobs: make(chan *tgbotapi.Message, chatQueueBuffer)}
		w.queues[chatID] = q
		go w.run(ctx, chatID, q)
	}

	select {
	case q.jobs <- message:
		return true
	default:
		return false
	}
}

// run answers queued messages one at a time until the chat sits idle
// long enough to retire, or ctx is cancelled.
func (w *chatWorkers) run(ctx context.Context, chatID int64, q *chatQueue) {
	idle := time.NewTimer(chatIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			w.retire(chatID, q, true)
			return
		case message := <-q.jobs:
			w.process(ctx, message)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(chatIdleTimeout)
		case <-idle.C:
			if w.retire(chatID, q, false) {
				return
			}
			idle.Reset(chatIdleTimeout)
		}
	}
}

// retire removes the queue from the map unless a message slipped in
// while the timer fired. force retires regardless, for shutdown.
func (w *chatWorkers) retire(chatID int64, q *chatQueue, force bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !force && len(q.jobs) > 0 {
		return false
	}
	q.closed = true
	delete(w.queues, chatID)
	w.logger.Debug("Retired idle chat worker", zap.Int64("chat_id", chatID))
	return true
}

// active reports how many chat workers currently exist.
func (w *chatWorkers) active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queues)
}
