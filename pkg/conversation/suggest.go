// Copyright 2024-2026 Aiku AI

package conversation

import (
	"strings"
)

// Suggestion is a directory entry offered while the user types a mention.
// Start is the offset of the '@' and End the cursor; selecting the
// suggestion replaces text[Start:End].
type Suggestion struct {
	Identity
	Start int `json:"start"`
	End   int `json:"end"`
}

// clampCursor keeps a cursor offset within the bounds of text.
func clampCursor(text string, cursor int) int {
	if cursor < 0 {
		return 0
	}
	if cursor > len(text) {
		return len(text)
	}
	return cursor
}

// MentionAt locates the in-progress mention the cursor is in. It returns the
// offset of its '@' and the search term typed so far. ok is false when the
// cursor is not inside an unterminated mention.
func MentionAt(text string, cursor int) (atIndex int, term string, ok bool) {
	cursor = clampCursor(text, cursor)
	atIndex = strings.LastIndexByte(text[:cursor], '@')
	if atIndex < 0 {
		return -1, "", false
	}
	term = text[atIndex+1 : cursor]
	if strings.ContainsAny(term, ",\n\r") {
		return -1, "", false
	}
	return atIndex, term, true
}

// Suggest returns the identities whose display name contains the mention
// term under the cursor, case-insensitively, in directory order. An empty
// result means suggestions should be hidden. It does no I/O.
func Suggest(text string, cursor int, dir *Directory) []Suggestion {
	atIndex, term, ok := MentionAt(text, cursor)
	if !ok || term == "" || dir.Len() == 0 {
		return nil
	}
	end := clampCursor(text, cursor)
	needle := strings.ToLower(term)
	var out []Suggestion
	for i, name := range dir.folded {
		if strings.Contains(name, needle) {
			out = append(out, Suggestion{
				Identity: dir.identities[i],
				Start:    atIndex,
				End:      end,
			})
		}
	}
	return out
}

// ApplySuggestion replaces text[atIndex:cursor] with "@<displayName> " and
// returns the new text and a cursor placed right after the inserted space.
func ApplySuggestion(text string, atIndex, cursor int, displayName string) (string, int) {
	cursor = clampCursor(text, cursor)
	atIndex = clampCursor(text, atIndex)
	if atIndex > cursor {
		atIndex = cursor
	}
	before := text[:atIndex]
	after := text[cursor:]
	inserted := "@" + displayName + " "
	return before + inserted + after, len(before) + len(inserted)
}
