package websocket

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseIncomingChat(t *testing.T) {
	parsed, err := ParseIncoming([]byte(`{"type":"chat","text":"próxima lição"}`))
	if err != nil {
		t.Fatalf("ParseIncoming failed: %v", err)
	}
	msg, ok := parsed.(*ChatMessage)
	if !ok {
		t.Fatalf("Expected *ChatMessage, got %T", parsed)
	}
	if msg.Text != "próxima lição" {
		t.Errorf("Expected text preserved, got %q", msg.Text)
	}
}

func TestParseIncomingRejectsBadChat(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty text", `{"type":"chat","text":""}`},
		{"whitespace text", `{"type":"chat","text":"   "}`},
		{"missing text", `{"type":"chat"}`},
		{"oversized text", `{"type":"chat","text":"` + strings.Repeat("a", maxChatTextLength+1) + `"}`},
		{"unknown type", `{"type":"listening_start"}`},
		{"not json", `próxima`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseIncoming([]byte(tc.raw)); err == nil {
				t.Errorf("Expected ParseIncoming to reject %s", tc.name)
			}
		})
	}
}

func TestParseIncomingResetAndPing(t *testing.T) {
	parsed, err := ParseIncoming([]byte(`{"type":"reset"}`))
	if err != nil {
		t.Fatalf("ParseIncoming reset failed: %v", err)
	}
	if base, ok := parsed.(*BaseMessage); !ok || base.Type != MessageTypeReset {
		t.Errorf("Expected reset base message, got %T", parsed)
	}

	parsed, err = ParseIncoming([]byte(`{"type":"ping","data":"x"}`))
	if err != nil {
		t.Fatalf("ParseIncoming ping failed: %v", err)
	}
	if ping, ok := parsed.(*PingMessage); !ok || ping.Data != "x" {
		t.Errorf("Expected ping message, got %T", parsed)
	}
}

func TestNewReplyMessage(t *testing.T) {
	reply := NewReplyMessage("Boa, Pedro!", "UklGRg==", 1500*time.Millisecond)

	payload, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["type"] != "reply" {
		t.Errorf("Expected type reply, got %v", decoded["type"])
	}
	if decoded["text"] != "Boa, Pedro!" {
		t.Errorf("Expected text, got %v", decoded["text"])
	}
	if decoded["audio"] != "UklGRg==" {
		t.Errorf("Expected audio payload, got %v", decoded["audio"])
	}
	if decoded["processing_time_ms"] != float64(1500) {
		t.Errorf("Expected processing time 1500, got %v", decoded["processing_time_ms"])
	}
}

func TestReplyMessageOmitsEmptyAudio(t *testing.T) {
	payload, err := json.Marshal(NewReplyMessage("texto", "", time.Millisecond))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(payload), `"audio"`) {
		t.Errorf("Expected audio field omitted when empty, got %s", payload)
	}
}
