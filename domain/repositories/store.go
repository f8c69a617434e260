package repositories

import (
	"context"
	"time"

	"github.com/futenglish/coach/domain/entities"
)

// SessionStore owns all UserSession state. Get creates a fresh session
// with defaults when absent and never fails. Update applies a pure
// mutation and persists it; all mutations for a given user are
// serialized by the store. Returned sessions are copies.
type SessionStore interface {
	Get(userID string) *entities.UserSession
	Update(userID string, mutate func(*entities.UserSession)) *entities.UserSession
	Delete(userID string) bool
	EvictIdle(ttl time.Duration) int
}

// TranscriptArchive persists finished conversation turns for later
// review. Archival is best-effort: failures are logged by the caller and
// never affect reply delivery. Audio is never archived.
type TranscriptArchive interface {
	ArchiveTurns(ctx context.Context, userID string, turns []entities.Turn) error
}
