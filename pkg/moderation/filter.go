package moderation

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Denylist answers, for a batch of raw tokens, which ones are banned.
// The production implementation is a Redis set; tests use an in-memory map.
type Denylist interface {
	Denylisted(ctx context.Context, words []string) ([]bool, error)
}

// Mask replaces every denylisted token of body with same-length asterisks.
// Tokens are the raw whitespace-split words, matched whole and
// case-sensitively: a banned word embedded inside a longer word is left
// untouched. Splitting on a single space keeps the original spacing intact.
func Mask(ctx context.Context, dl Denylist, body string) (string, error) {
	words := strings.Split(body, " ")
	banned, err := dl.Denylisted(ctx, words)
	if err != nil {
		return "", err
	}
	for i, word := range words {
		if i < len(banned) && banned[i] {
			words[i] = strings.Repeat("*", utf8.RuneCountInString(word))
		}
	}
	return strings.Join(words, " "), nil
}
