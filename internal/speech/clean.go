package speech

import (
	"regexp"
	"strings"
)

var (
	markdownPattern   = regexp.MustCompile("\\*\\*|\\*|`|__")
	repeatedBang      = regexp.MustCompile(`!{2,}`)
	repeatedQuestion  = regexp.MustCompile(`\?{2,}`)
	repeatedPeriod    = regexp.MustCompile(`\.{2,}`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// CleanForSynthesis strips emojis, markdown markers, quote marks and
// excess punctuation so the synthesis service reads plain prose.
func CleanForSynthesis(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isEmoji(r) {
			continue
		}
		if r == '"' || r == '“' || r == '”' {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	cleaned := markdownPattern.ReplaceAllString(b.String(), "")
	cleaned = repeatedBang.ReplaceAllString(cleaned, "!")
	cleaned = repeatedQuestion.ReplaceAllString(cleaned, "?")
	cleaned = repeatedPeriod.ReplaceAllString(cleaned, ".")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, transport, supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators (flags)
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	}
	return false
}
