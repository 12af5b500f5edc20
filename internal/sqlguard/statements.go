package sqlguard

import "strings"

// splitFirstStatement returns the text before the first top-level semicolon
// and whether anything other than whitespace, comments or further semicolons
// follows it. Semicolons inside string literals, quoted identifiers, dollar
// quoted bodies and comments are not separators. Unterminated quotes or
// comments swallow the rest of the input, which the database then rejects.
//
// Dialects disagree on backslash escapes inside string literals, so the text
// is scanned both ways and a second statement under either reading counts.
func splitFirstStatement(text string) (string, bool) {
	statement, extra := splitWith(text, false)
	if extra {
		return statement, true
	}
	_, extra = splitWith(text, true)
	return statement, extra
}

func splitWith(text string, backslashEscapes bool) (string, bool) {
	end := scan(text, true, backslashEscapes)
	if end < 0 {
		return text, false
	}
	rest := text[end+1:]
	return text[:end], scan(rest, false, backslashEscapes) >= 0
}

// scan walks text. With stopAtSemicolon it returns the index of the first
// top-level semicolon. Without it, it returns the index of the first
// top-level byte that is neither whitespace nor a semicolon. It returns -1
// when there is no such position.
func scan(text string, stopAtSemicolon, backslashEscapes bool) int {
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			if !stopAtSemicolon {
				return i
			}
			i = skipQuoted(text, i, c, backslashEscapes)
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			i = skipLineComment(text, i)
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			i = skipBlockComment(text, i)
		case c == '$':
			if !stopAtSemicolon {
				return i
			}
			i = skipDollarQuoted(text, i)
		case c == ';':
			if stopAtSemicolon {
				return i
			}
			i++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++
		default:
			if !stopAtSemicolon {
				return i
			}
			i++
		}
	}
	return -1
}

// skipQuoted treats a doubled quote as an escaped quote.
func skipQuoted(text string, start int, quote byte, backslashEscapes bool) int {
	i := start + 1
	for i < len(text) {
		switch text[i] {
		case '\\':
			if backslashEscapes && quote == '\'' {
				i += 2
				continue
			}
		case quote:
			if i+1 < len(text) && text[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(text)
}

func skipLineComment(text string, start int) int {
	if idx := strings.IndexByte(text[start:], '\n'); idx >= 0 {
		return start + idx + 1
	}
	return len(text)
}

// skipBlockComment follows PostgreSQL and allows nested block comments.
func skipBlockComment(text string, start int) int {
	depth := 0
	i := start
	for i+1 < len(text) {
		switch {
		case text[i] == '/' && text[i+1] == '*':
			depth++
			i += 2
		case text[i] == '*' && text[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return len(text)
}

// skipDollarQuoted skips $tag$...$tag$ bodies. A lone $ (positional
// parameter such as $1) is skipped as a single byte.
func skipDollarQuoted(text string, start int) int {
	end := start + 1
	for end < len(text) && isTagByte(text[end]) {
		end++
	}
	if end >= len(text) || text[end] != '$' {
		return start + 1
	}
	if end > start+1 && text[start+1] >= '0' && text[start+1] <= '9' {
		return start + 1
	}
	tag := text[start : end+1]
	closing := strings.Index(text[end+1:], tag)
	if closing < 0 {
		return len(text)
	}
	return end + 1 + closing + len(tag)
}

func isTagByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}
