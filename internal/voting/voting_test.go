package voting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/store"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/voting"
)

func TestWinnerTeamFromExternal(t *testing.T) {
	blue, err := voting.WinnerTeamFromExternal(100)
	require.NoError(t, err)
	assert.Equal(t, 1, blue)

	red, err := voting.WinnerTeamFromExternal(200)
	require.NoError(t, err)
	assert.Equal(t, 2, red)

	_, err = voting.WinnerTeamFromExternal(7)
	require.Error(t, err)
}

func TestComputeDelta_EvenMatchWinnerGainsHalfK(t *testing.T) {
	delta := voting.ComputeDelta(1000, 1000, true)
	assert.Equal(t, 16, delta)

	delta = voting.ComputeDelta(1000, 1000, false)
	assert.Equal(t, -16, delta)
}

func TestComputeDelta_UnderdogWinGainsMore(t *testing.T) {
	favoriteWin := voting.ComputeDelta(1200, 1000, true)
	underdogWin := voting.ComputeDelta(1000, 1200, true)
	assert.Less(t, favoriteWin, underdogWin)
}

func TestComputeMatchDeltas_SymmetricAroundZero(t *testing.T) {
	team1 := []store.Player{{SummonerName: "a", MMR: 1000}, {SummonerName: "b", MMR: 1000}}
	team2 := []store.Player{{SummonerName: "c", MMR: 1000}, {SummonerName: "d", MMR: 1000}}

	deltas := voting.ComputeMatchDeltas(team1, team2, 1)
	require.Len(t, deltas, 4)

	total := 0
	for _, d := range deltas {
		total += d.Delta
	}
	assert.InDelta(t, 0, total, 1)
}

func TestIsPrivileged(t *testing.T) {
	special := []string{"admin1", "admin2"}
	assert.True(t, voting.IsPrivileged("admin1", special))
	assert.False(t, voting.IsPrivileged("regular", special))
}

func TestTally_CastVote_LinksAtThreshold(t *testing.T) {
	tally := voting.NewTally("match-1")

	for i, voter := range []string{"p1", "p2", "p3", "p4"} {
		linked, _ := tally.CastVote(voter, "game-abc", false)
		assert.Falsef(t, linked, "vote %d should not yet link", i)
	}

	linked, reason := tally.CastVote("p5", "game-abc", false)
	assert.True(t, linked)
	assert.Equal(t, voting.ReasonThreshold, reason)
	assert.True(t, tally.Linked())
	assert.Equal(t, "game-abc", tally.LinkedGameID)
}

func TestTally_CastVote_PrivilegedLinksImmediately(t *testing.T) {
	tally := voting.NewTally("match-1")
	linked, reason := tally.CastVote("admin", "game-xyz", true)
	assert.True(t, linked)
	assert.Equal(t, voting.ReasonPrivilegedVote, reason)
}

func TestTally_CastVote_OverwritesPriorVoteFromSamePlayer(t *testing.T) {
	tally := voting.NewTally("match-1")
	tally.CastVote("p1", "game-a", false)
	tally.CastVote("p1", "game-b", false)

	counts := tally.Counts()
	assert.Equal(t, 0, counts["game-a"])
	assert.Equal(t, 1, counts["game-b"])
}

func TestTally_CastVote_IgnoredAfterLinked(t *testing.T) {
	tally := voting.NewTally("match-1")
	tally.CastVote("admin", "game-a", true)
	linked, reason := tally.CastVote("p2", "game-b", false)
	assert.False(t, linked)
	assert.Empty(t, reason)
	assert.Equal(t, "game-a", tally.LinkedGameID)
}

func TestFinalizeMatch_AppliesDeltasAndMarksCompleted(t *testing.T) {
	db := newFakeStore()
	db.matches["match-1"] = &store.Match{ID: "match-1", Status: "voting"}
	db.matchPlayers["match-1"] = []store.MatchPlayer{
		{MatchID: "match-1", SummonerName: "p1", Team: 1},
		{MatchID: "match-1", SummonerName: "p2", Team: 2},
	}
	db.players["p1"] = &store.Player{SummonerName: "p1", MMR: 1000}
	db.players["p2"] = &store.Player{SummonerName: "p2", MMR: 1000}

	match, deltas, err := voting.FinalizeMatch(context.Background(), db, "match-1", "ext-1", 1)
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	assert.Equal(t, "completed", match.Status)
	require.NotNil(t, match.WinnerTeam)
	assert.Equal(t, 1, *match.WinnerTeam)
	require.NotNil(t, match.LinkedExternalGameID)
	assert.Equal(t, "ext-1", *match.LinkedExternalGameID)

	assert.Equal(t, 1, db.players["p1"].Wins)
	assert.Equal(t, 1, db.players["p2"].Losses)

	// MMR is the external-rank-derived base rating and must not move;
	// only CustomLP (and the PeakMMR it drives) reflects the result.
	assert.Equal(t, 1000, db.players["p1"].MMR)
	assert.Equal(t, 1000, db.players["p2"].MMR)
	assert.Positive(t, db.players["p1"].CustomLP)
	assert.Negative(t, db.players["p2"].CustomLP)
	assert.Equal(t, 1000+db.players["p1"].CustomLP, db.players["p1"].PeakMMR)
}

func TestFinalizeMatch_UnknownMatchReturnsError(t *testing.T) {
	db := newFakeStore()
	_, _, err := voting.FinalizeMatch(context.Background(), db, "missing", "ext-1", 1)
	require.Error(t, err)
}

// fakeStore is a minimal in-memory store.Store implementation used only to
// exercise voting.FinalizeMatch's read/compute/write sequence without a
// real database.
type fakeStore struct {
	matches      map[string]*store.Match
	matchPlayers map[string][]store.MatchPlayer
	players      map[string]*store.Player
	votes        map[string][]store.Vote
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches:      make(map[string]*store.Match),
		matchPlayers: make(map[string][]store.MatchPlayer),
		players:      make(map[string]*store.Player),
		votes:        make(map[string][]store.Vote),
	}
}

func (f *fakeStore) GetPlayer(_ context.Context, summonerName string) (*store.Player, error) {
	return f.players[summonerName], nil
}

func (f *fakeStore) UpsertPlayer(_ context.Context, p *store.Player) error {
	cp := *p
	f.players[p.SummonerName] = &cp
	return nil
}

func (f *fakeStore) ListPlayers(_ context.Context) ([]store.Player, error) {
	out := make([]store.Player, 0, len(f.players))
	for _, p := range f.players {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) CreateMatch(_ context.Context, m *store.Match) error {
	f.matches[m.ID] = m
	return nil
}

func (f *fakeStore) UpdateMatch(_ context.Context, m *store.Match) error {
	f.matches[m.ID] = m
	return nil
}

func (f *fakeStore) GetMatch(_ context.Context, matchID string) (*store.Match, error) {
	return f.matches[matchID], nil
}

func (f *fakeStore) AddMatchPlayer(_ context.Context, mp *store.MatchPlayer) error {
	f.matchPlayers[mp.MatchID] = append(f.matchPlayers[mp.MatchID], *mp)
	return nil
}

func (f *fakeStore) GetMatchPlayers(_ context.Context, matchID string) ([]store.MatchPlayer, error) {
	return f.matchPlayers[matchID], nil
}

func (f *fakeStore) UpsertVote(_ context.Context, v *store.Vote) error {
	f.votes[v.MatchID] = append(f.votes[v.MatchID], *v)
	return nil
}

func (f *fakeStore) GetVotes(_ context.Context, matchID string) ([]store.Vote, error) {
	return f.votes[matchID], nil
}

func (f *fakeStore) ListMatches(_ context.Context, limit int) ([]store.Match, error) {
	return nil, nil
}

func (f *fakeStore) ListMatchesWithPlayers(_ context.Context, limit int) ([]store.MatchWithPlayers, error) {
	return nil, nil
}

func (f *fakeStore) GetLeaderboard(_ context.Context, startDate, endDate *time.Time) ([]store.LeaderboardEntry, error) {
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Ping(_ context.Context) error { return nil }
