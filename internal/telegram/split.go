package telegram

import "unicode/utf8"

// MaxMessageChars is the chunk size used for outgoing text, below Telegram's 4096 limit.
const MaxMessageChars = 4000

// SplitMessage cuts text into chunks of at most limit characters without
// breaking multi-byte runes.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageChars
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		end, count := 0, 0
		for end < len(text) && count < limit {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			count++
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}
