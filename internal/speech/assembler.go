package speech

import (
	"bytes"
	"encoding/binary"

	"github.com/futenglish/coach/domain/entities"
)

// Audio parameters shared with the synthesis adapter: PCM 16-bit LE,
// mono, 24 kHz.
const (
	SampleRate     = 24000
	Channels       = 1
	BytesPerSample = 2

	// switchGapMs is the silence inserted at each language switch to aid
	// listening comprehension.
	switchGapMs = 300
)

// Assemble concatenates successful audio segments in original span
// order, inserting a short silence at each language switch, and wraps
// the result in a WAV container. Returns nil when no segment carries
// audio; the reply then degrades to text-only.
func Assemble(segments []entities.AudioSegment) []byte {
	var pcm bytes.Buffer
	var lastLanguage entities.Language
	wrote := false

	for _, seg := range segments {
		if len(seg.Bytes) == 0 {
			continue
		}
		if wrote && seg.Language != lastLanguage {
			pcm.Write(silence(switchGapMs))
		}
		pcm.Write(seg.Bytes)
		lastLanguage = seg.Language
		wrote = true
	}

	if !wrote {
		return nil
	}
	return pcmToWAV(pcm.Bytes(), SampleRate, Channels, BytesPerSample)
}

// silence returns ms milliseconds of PCM silence
func silence(ms int) []byte {
	return make([]byte, SampleRate*Channels*BytesPerSample*ms/1000)
}

// pcmToWAV wraps raw PCM data in a 44-byte WAV header
func pcmToWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	dataLen := len(pcm)
	fileLen := 36 + dataLen

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fileLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}
