package entities

import (
	"time"

	"github.com/google/uuid"
)

// Level represents the user's self-reported English proficiency
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// SessionState represents where in the coaching flow a session is
type SessionState string

const (
	StateOnboarding      SessionState = "onboarding"
	StateProfileComplete SessionState = "profile_complete"
	StateLessonActive    SessionState = "lesson_active"
	StateFreeChat        SessionState = "free_chat"
)

// ProfileField identifies a single onboarding question
type ProfileField string

const (
	FieldName     ProfileField = "name"
	FieldPosition ProfileField = "position"
	FieldLevel    ProfileField = "level"
)

// TurnRole represents the sender of a conversation turn
type TurnRole string

const (
	RoleUser  TurnRole = "user"
	RoleCoach TurnRole = "coach"
)

// HistoryWindow is the bound on the per-session turn history.
// Oldest turns are evicted first once the window is full.
const HistoryWindow = 20

// RateLimitPerMinute is the maximum number of user messages accepted
// inside a one-minute sliding window before the coach asks for a breather.
const RateLimitPerMinute = 10

// Turn is a single message in the conversation. Immutable once appended.
type Turn struct {
	ID        string    `json:"id" bson:"id"`
	Role      TurnRole  `json:"role" bson:"role"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// UserSession holds the per-user conversational state. It is owned
// exclusively by the session store and must only be mutated through the
// store's Update operation.
type UserSession struct {
	ID           string       `json:"id" bson:"_id"`
	Name         string       `json:"name" bson:"name"`
	Position     string       `json:"position" bson:"position"`
	Level        Level        `json:"level" bson:"level"`
	State        SessionState `json:"state" bson:"state"`
	LessonIndex  int          `json:"lesson_index" bson:"lesson_index"`
	History      []Turn       `json:"history" bson:"history"`
	LastReply    string       `json:"last_reply" bson:"last_reply"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	LastActiveAt time.Time    `json:"last_active_at" bson:"last_active_at"`

	// MessageTimes backs the sliding-window rate limiter.
	MessageTimes []time.Time `json:"-" bson:"-"`
}

// NewUserSession creates a fresh session with onboarding defaults
func NewUserSession(userID string) *UserSession {
	now := time.Now()
	return &UserSession{
		ID:           userID,
		State:        StateOnboarding,
		LessonIndex:  0,
		History:      make([]Turn, 0, HistoryWindow),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// ProfileComplete reports whether all three onboarding fields are set
func (s *UserSession) ProfileComplete() bool {
	return s.Name != "" && s.Position != "" && s.Level != ""
}

// MissingProfileField returns the first unset onboarding field, in the
// fixed onboarding order name, position, level. Empty when complete.
func (s *UserSession) MissingProfileField() ProfileField {
	switch {
	case s.Name == "":
		return FieldName
	case s.Position == "":
		return FieldPosition
	case s.Level == "":
		return FieldLevel
	default:
		return ""
	}
}

// AddTurn appends a turn to the history, evicting the oldest turn once
// the window is full.
func (s *UserSession) AddTurn(role TurnRole, text string) {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.History = append(s.History, turn)
	if len(s.History) > HistoryWindow {
		s.History = s.History[len(s.History)-HistoryWindow:]
	}
	s.LastActiveAt = turn.Timestamp
}

// RecordMessage registers an incoming message timestamp and reports
// whether the message fits inside the per-minute rate limit. Rejected
// messages still count toward the window.
func (s *UserSession) RecordMessage(now time.Time) bool {
	cutoff := now.Add(-time.Minute)
	kept := s.MessageTimes[:0]
	for _, ts := range s.MessageTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.MessageTimes = append(kept, now)
	return len(s.MessageTimes) <= RateLimitPerMinute
}

// Idle reports whether the session has seen no activity for the given duration
func (s *UserSession) Idle(ttl time.Duration) bool {
	return time.Since(s.LastActiveAt) > ttl
}

// Clone returns a deep copy so callers can read session data without
// holding the store's per-user serialization scope.
func (s *UserSession) Clone() *UserSession {
	cp := *s
	cp.History = append([]Turn(nil), s.History...)
	cp.MessageTimes = append([]time.Time(nil), s.MessageTimes...)
	return &cp
}
