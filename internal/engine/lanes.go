package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/futenglish/coach/domain/entities"
)

type processFunc func(ctx context.Context, userID, text string) (entities.ReplyBundle, error)

type job struct {
	ctx    context.Context
	userID string
	text   string
	result chan outcome
}

type outcome struct {
	bundle entities.ReplyBundle
	err    error
}

// laneGroup owns one worker goroutine per active user. A lane drains its
// queue in FIFO order, so two messages from the same user can never
// interleave; lanes for different users run independently.
type laneGroup struct {
	mu      sync.Mutex
	lanes   map[string]*lane
	process processFunc
	logger  *zap.Logger
}

type lane struct {
	jobs   chan job
	closed bool
}

func newLaneGroup(process processFunc, logger *zap.Logger) *laneGroup {
	return &laneGroup{
		lanes:   make(map[string]*lane),
		process: process,
		logger:  logger,
	}
}

// submit places the message on the user's lane and blocks until the
// worker answers or ctx is done.
func (g *laneGroup) submit(ctx context.Context, userID, text string) (entities.ReplyBundle, error) {
	j := job{ctx: ctx, userID: userID, text: text, result: make(chan outcome, 1)}

	if err := g.enqueue(userID, j); err != nil {
		return entities.ReplyBundle{}, err
	}

	select {
	case out := <-j.result:
		return out.bundle, out.err
	case <-ctx.Done():
		// The worker will still process the job; the caller just stops
		// waiting for it.
		return entities.ReplyBundle{}, ctx.Err()
	}
}

// enqueue finds or starts the user's lane and queues the job. The send
// happens under the lock so a lane can never shut down between lookup
// and delivery.
func (g *laneGroup) enqueue(userID string, j job) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.lanes[userID]
	if !ok || l.closed {
		l = &lane{jobs: make(chan job, laneBuffer)}
		g.lanes[userID] = l
		go g.run(userID, l)
	}

	select {
	case l.jobs <- j:
		return nil
	default:
		return ErrBusy
	}
}

// run drains the lane until it sits idle long enough to retire.
func (g *laneGroup) run(userID string, l *lane) {
	idle := time.NewTimer(laneIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case j := <-l.jobs:
			bundle, err := g.process(j.ctx, j.userID, j.text)
			j.result <- outcome{bundle: bundle, err: err}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(laneIdleTimeout)
		case <-idle.C:
			if g.retire(userID, l) {
				return
			}
			idle.Reset(laneIdleTimeout)
		}
	}
}

// retire removes the lane from the map unless a job slipped in while
// the timer fired.
func (g *laneGroup) retire(userID string, l *lane) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(l.jobs) > 0 {
		return false
	}
	l.closed = true
	delete(g.lanes, userID)
	g.logger.Debug("Retired idle lane", zap.String("user_id", userID))
	return true
}

// active reports how many lanes currently exist, for tests and metrics.
func (g *laneGroup) active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lanes)
}
