package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/identity"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "summoner", identity.Normalize("  Summoner  "))
	assert.Equal(t, "summoner", identity.Normalize("SUMMONER"))
	assert.Equal(t, "", identity.Normalize("   "))
}

func TestIsBot(t *testing.T) {
	cases := map[string]bool{
		"bot1":       true,
		"bot42":      true,
		"bot":        false,
		"fill_bot":   true,
		"filler_bot": true,
		"bot_filler": true,
		"summoner1":  false,
		"":           false,
	}
	for input, want := range cases {
		assert.Equalf(t, want, identity.IsBot(input), "IsBot(%q)", input)
	}
}
