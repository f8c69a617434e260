package entities

// Language labels a span of reply text for voice selection
type Language string

const (
	// LanguageNative is the coaching language (pt-BR narration).
	LanguageNative Language = "native"
	// LanguageTarget is the language being taught (en-US vocabulary).
	LanguageTarget Language = "target"
)

// LanguageSpan is a maximal contiguous run of reply text tagged with a
// single language. Spans fully partition the reply text: ordered by
// offset, non-overlapping, no gaps.
type LanguageSpan struct {
	Text        string   `json:"text"`
	Language    Language `json:"language"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
}

// AudioSegment is the synthesized audio for one span. Bytes is nil when
// synthesis failed for the span; the span's text is still delivered.
type AudioSegment struct {
	Bytes    []byte   `json:"-"`
	Language Language `json:"language"`
	VoiceID  string   `json:"voice_id"`
}

// ReplyBundle is the result handed to the transport collaborator.
// Audio is nil when every synthesis call failed; Text is never empty.
type ReplyBundle struct {
	Text  string `json:"text"`
	Audio []byte `json:"audio,omitempty"`
}

// HasAudio reports whether an assembled audio stream accompanies the text
func (b *ReplyBundle) HasAudio() bool {
	return len(b.Audio) > 0
}
