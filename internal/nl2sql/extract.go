package nl2sql

import "strings"

const fence = "```"

// Extract returns the trimmed body of the first fenced code block in text,
// dropping an optional language tag on the opening fence. Text without a
// complete fence is returned trimmed. Extract(Extract(x)) == Extract(x).
func Extract(text string) string {
	trimmed := strings.TrimSpace(text)
	open := strings.Index(trimmed, fence)
	if open < 0 {
		return trimmed
	}
	body := trimmed[open+len(fence):]
	closing := strings.Index(body, fence)
	if closing < 0 {
		return trimmed
	}
	body = body[:closing]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 && isLanguageTag(body[:newline]) {
		body = body[newline+1:]
	} else if newline < 0 && len(body) > 4 && strings.EqualFold(body[:4], "sql ") {
		body = body[4:]
	}
	inner := strings.TrimSpace(body)
	if strings.Contains(inner, fence) {
		return trimmed
	}
	return inner
}

// isLanguageTag accepts the info string of an opening fence, such as "sql"
// or "postgresql". An empty tag is accepted too.
func isLanguageTag(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) > 20 {
		return false
	}
	switch strings.ToLower(line) {
	case "select", "with":
		return false
	}
	for _, r := range line {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '+') {
			return false
		}
	}
	return true
}
