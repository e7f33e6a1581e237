// Package identity implements the normalization and classification rules the
// coordination core applies to summonerName everywhere it appears: the
// session registry, the special-users allowlist, and the synthetic-player
// detector used to keep bots out of directed delivery and out of the
// cast_vote identity confirmation.
package identity

import (
	"regexp"
	"strings"
)

// Normalize trims surrounding whitespace and lowercases a summonerName so
// the session registry, outbox keys, and special-users list all key off the
// same canonical form regardless of how a client capitalized it.
func Normalize(summonerName string) string {
	return strings.ToLower(strings.TrimSpace(summonerName))
}

var botNumberSuffix = regexp.MustCompile(`^bot\d+$`)

// IsBot reports whether a normalized summonerName looks like a synthetic
// fill participant rather than a real client session. Bots never hold a
// gateway session, so the broadcaster skips them as delivery targets and the
// router skips the cast_vote identity confirmation for them.
func IsBot(normalizedName string) bool {
	if normalizedName == "" {
		return false
	}
	if strings.HasPrefix(normalizedName, "bot") && botNumberSuffix.MatchString(normalizedName) {
		return true
	}
	if strings.HasSuffix(normalizedName, "_bot") {
		return true
	}
	if strings.Contains(normalizedName, "bot_") {
		return true
	}
	return false
}
