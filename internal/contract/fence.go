package contract

import "strings"

const fence = "```"

// StripFence returns the body of the first fenced code block in text, or the
// trimmed text when there is no fence. Only a fence that opens a line counts,
// so backticks inside a JSON string are left alone. A language tag after the
// opening fence is dropped and a missing closing fence keeps the remainder.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	start := lineFenceIndex(trimmed)
	if start < 0 {
		return trimmed
	}

	// A stray trailing fence after a bare payload is not an opening fence.
	if before := strings.TrimSpace(trimmed[:start]); strings.HasPrefix(before, "{") || strings.HasPrefix(before, "[") {
		return before
	}

	body := dropLanguageTag(trimmed[start+len(fence):])
	if end := lineFenceIndex(body); end >= 0 {
		body = body[:end]
	} else if rest := strings.TrimRight(body, " \t\r\n"); strings.HasSuffix(rest, fence) {
		body = strings.TrimSuffix(rest, fence)
	}
	return strings.TrimSpace(body)
}

// lineFenceIndex returns the offset of the first fence that is preceded only
// by spaces or tabs on its line, or -1.
func lineFenceIndex(text string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], fence)
		if i < 0 {
			return -1
		}
		at := offset + i
		lineStart := strings.LastIndexByte(text[:at], '\n') + 1
		if strings.TrimLeft(text[lineStart:at], " \t") == "" {
			return at
		}
		offset = at + len(fence)
	}
}

func dropLanguageTag(body string) string {
	end := 0
	for end < len(body) && isTagByte(body[end]) {
		end++
	}
	if end == 0 {
		return body
	}
	rest := body[end:]
	if rest == "" {
		return rest
	}
	switch rest[0] {
	case '\n', '\r', ' ', '\t', '{', '[':
		return rest
	}
	return body
}

func isTagByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_' || b == '-' || b == '+'
}
