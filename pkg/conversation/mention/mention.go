// Copyright 2024-2026 Aiku AI

// Package mention extracts @-mention tokens from post and reply bodies.
package mention

import (
	"unicode"
	"unicode/utf8"
)

// Token is a mention found in a body. Start and End are byte offsets of the
// name (without the leading '@') in the original text, End exclusive.
type Token struct {
	Text  string
	Start int
	End   int
}

// isTerminator reports whether r ends a mention outright.
func isTerminator(r rune) bool {
	return r == '@' || r == ',' || r == '\n' || r == '\r'
}

// scanName consumes a display name starting at start. It returns the end of
// the name (trailing whitespace excluded) and the offset where scanning for
// the next '@' should resume. A name may contain single whitespace characters
// between words; a run of two or more ends it, as does leading whitespace.
func scanName(body string, start int) (end, next int) {
	end = start
	gap := false
	i := start
	for i < len(body) {
		r, size := utf8.DecodeRuneInString(body[i:])
		switch {
		case isTerminator(r):
			return end, i
		case unicode.IsSpace(r):
			if gap || i == start {
				return end, i
			}
			gap = true
		default:
			gap = false
			end = i + size
		}
		i += size
	}
	return end, i
}

// Extract returns the mentions in body in left-to-right order. Duplicates are
// kept; spans never overlap. An '@' inside an e-mail address still starts a
// token, it just won't resolve to anyone.
func Extract(body string) []Token {
	var tokens []Token
	i := 0
	for i < len(body) {
		if body[i] != '@' {
			i++
			continue
		}
		start := i + 1
		end, next := scanName(body, start)
		if end > start {
			tokens = append(tokens, Token{Text: body[start:end], Start: start, End: end})
		}
		i = next
	}
	return tokens
}

// Names returns only the texts of the mentions in body.
func Names(body string) []string {
	tokens := Extract(body)
	if len(tokens) == 0 {
		return nil
	}
	names := make([]string, len(tokens))
	for i, tok := range tokens {
		names[i] = tok.Text
	}
	return names
}
