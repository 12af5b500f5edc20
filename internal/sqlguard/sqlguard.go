// Package sqlguard enforces the read-only policy on generated SQL. It is a
// guard, not a parser: it checks the leading keyword, a deny-list of mutating
// keywords and the statement count.
package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultDenyList holds the keywords that can never appear in an accepted
// query, as whole tokens, anywhere in the text.
var DefaultDenyList = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate", "grant", "revoke",
}

// Validated is SQL that passed the guard. The zero value holds no query and
// only Validator can build a non-zero one.
type Validated struct {
	sql string
}

func (v Validated) SQL() string {
	return v.sql
}

func (v Validated) IsZero() bool {
	return v.sql == ""
}

func (v Validated) String() string {
	return v.sql
}

type Verdict struct {
	Allowed bool
	Reason  string
	Query   Validated
}

type Validator struct {
	deny map[string]struct{}
}

// NewValidator builds a validator over DefaultDenyList plus extra keywords.
// The default list cannot be shrunk.
func NewValidator(extraDeny ...string) *Validator {
	deny := make(map[string]struct{}, len(DefaultDenyList)+len(extraDeny))
	for _, word := range DefaultDenyList {
		deny[word] = struct{}{}
	}
	for _, word := range extraDeny {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			deny[word] = struct{}{}
		}
	}
	return &Validator{deny: deny}
}

// Validate never panics; a rejection is reported through the verdict.
func (v *Validator) Validate(sqlText string) (verdict Verdict) {
	defer func() {
		if recovered := recover(); recovered != nil {
			verdict = reject(fmt.Sprintf("query could not be checked: %v", recovered))
		}
	}()

	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return reject("query is empty")
	}
	normalized := strings.ToLower(trimmed)
	if !startsWithWord(normalized, "select") {
		return reject("only SELECT queries are allowed")
	}
	for _, token := range tokens(normalized) {
		if _, denied := v.deny[token]; denied {
			return reject(fmt.Sprintf("query contains forbidden keyword %q", token))
		}
	}
	statement, extra := splitFirstStatement(trimmed)
	if extra {
		return reject("query contains more than one statement")
	}
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return reject("query is empty")
	}
	return Verdict{Allowed: true, Query: Validated{sql: statement}}
}

func reject(reason string) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}

func startsWithWord(text, word string) bool {
	if !strings.HasPrefix(text, word) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(text[len(word):])
	return next == utf8.RuneError || !(isTokenRune(next) || next == '_')
}

// tokens splits on every non-alphanumeric rune, underscore included, so a
// deny word inside an identifier such as x_drop is still found.
func tokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isTokenRune(r)
	})
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
