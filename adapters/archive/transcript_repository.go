package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
)

// TranscriptRepository persists completed conversation turns. Writes
// happen off the reply path, so a slow or absent archive never delays a
// user-visible response.
type TranscriptRepository struct {
	collection *mongo.Collection
}

var _ repositories.TranscriptArchive = (*TranscriptRepository)(nil)

// NewTranscriptRepository creates a new MongoDB transcript repository
func NewTranscriptRepository(db *mongo.Database) *TranscriptRepository {
	return &TranscriptRepository{
		collection: db.Collection("transcripts"),
	}
}

// ArchiveTurns implements repositories.TranscriptArchive
func (r *TranscriptRepository) ArchiveTurns(ctx context.Context, userID string, turns []entities.Turn) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if len(turns) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		docs = append(docs, bson.M{
			"user_id":     userID,
			"turn_id":     turn.ID,
			"role":        turn.Role,
			"text":        turn.Text,
			"timestamp":   turn.Timestamp,
			"archived_at": time.Now(),
		})
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to archive turns for user %s: %w", userID, err)
	}

	return nil
}
