// Package identity derives logins from staff names and resolves collisions
// against the account store.
package identity

import (
	"context"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExistsFunc reports whether a login is already taken.
type ExistsFunc func(ctx context.Context, login string) (bool, error)

// DeriveLogin builds the candidate login: the lower-cased first letter of the
// given name followed by the lower-cased family name without whitespace.
// Both names are expected to be non-empty after trimming.
func DeriveLogin(givenName, familyName string) string {
	first, _ := utf8.DecodeRuneInString(strings.TrimSpace(givenName))

	var b strings.Builder
	if first != utf8.RuneError {
		b.WriteString(strings.ToLower(string(first)))
	}
	for _, r := range familyName {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteString(strings.ToLower(string(r)))
	}
	return b.String()
}

// ResolveUniqueLogin returns candidate when it is free, otherwise the first
// free candidate1, candidate2, ... The loop stops on a lookup error or when
// ctx is done.
func ResolveUniqueLogin(ctx context.Context, candidate string, exists ExistsFunc) (string, error) {
	login := candidate
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		taken, err := exists(ctx, login)
		if err != nil {
			return "", err
		}
		if !taken {
			return login, nil
		}

		login = candidate + strconv.Itoa(n)
	}
}
