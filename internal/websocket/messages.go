package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeChat  MessageType = "chat"
	MessageTypeReply MessageType = "reply"
	MessageTypeReset MessageType = "reset"
	MessageTypePing  MessageType = "ping"
	MessageTypePong  MessageType = "pong"
	MessageTypeError MessageType = "error"
)

// maxChatTextLength bounds a single user message.
const maxChatTextLength = 2000

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// ChatMessage is an incoming text message from the learner
type ChatMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// ReplyMessage carries the coach's answer: the mixed-language text plus
// the assembled narration as base64 WAV. Audio is empty when synthesis
// failed for every span.
type ReplyMessage struct {
	BaseMessage
	Text             string `json:"text"`
	Audio            string `json:"audio,omitempty"` // base64 WAV
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
}

// PingMessage represents a connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ParseIncoming decodes and validates a client message. Only chat,
// reset and ping arrive from clients.
func ParseIncoming(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid message format: %w", err)
	}

	switch base.Type {
	case MessageTypeChat:
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid chat message: %w", err)
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, fmt.Errorf("chat message text is required")
		}
		if len(msg.Text) > maxChatTextLength {
			return nil, fmt.Errorf("chat message exceeds %d bytes", maxChatTextLength)
		}
		return &msg, nil
	case MessageTypeReset:
		return &base, nil
	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil
	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// NewReplyMessage builds an outgoing reply envelope.
func NewReplyMessage(text, audioBase64 string, elapsed time.Duration) *ReplyMessage {
	return &ReplyMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeReply,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Text:             text,
		Audio:            audioBase64,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// NewErrorMessage builds an outgoing error envelope.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
	}
}
