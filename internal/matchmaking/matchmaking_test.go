package matchmaking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/matchmaking"
)

func TestJoinQueue_IsIdempotentPerPlayer(t *testing.T) {
	p := matchmaking.NewPool()
	p.JoinQueue(matchmaking.QueueEntry{PlayerID: "p1", Region: "na", MMR: 1000, JoinedAt: 1})
	p.JoinQueue(matchmaking.QueueEntry{PlayerID: "p1", Region: "na", MMR: 1100, JoinedAt: 2})

	snap := p.Snapshot("na")
	require.Len(t, snap, 1)
	assert.Equal(t, 1100, snap[0].MMR)
}

func TestLeaveQueue_RemovesPlayerAndReportsPresence(t *testing.T) {
	p := matchmaking.NewPool()
	p.JoinQueue(matchmaking.QueueEntry{PlayerID: "p1", Region: "na", JoinedAt: 1})

	assert.True(t, p.LeaveQueue("na", "p1"))
	assert.False(t, p.LeaveQueue("na", "p1"))
	assert.False(t, p.IsQueued("na", "p1"))
}

func TestSnapshot_OrdersByJoinedAtAscending(t *testing.T) {
	p := matchmaking.NewPool()
	p.JoinQueue(matchmaking.QueueEntry{PlayerID: "late", Region: "na", JoinedAt: 5})
	p.JoinQueue(matchmaking.QueueEntry{PlayerID: "early", Region: "na", JoinedAt: 1})

	snap := p.Snapshot("na")
	require.Len(t, snap, 2)
	assert.Equal(t, "early", snap[0].PlayerID)
	assert.Equal(t, "late", snap[1].PlayerID)
}

func laneFillingTenPlayers() []matchmaking.QueueEntry {
	lanes := []string{"top", "jungle", "mid", "bot", "support"}
	var entries []matchmaking.QueueEntry
	n := 0
	for _, lane := range lanes {
		for i := 0; i < 2; i++ {
			n++
			entries = append(entries, matchmaking.QueueEntry{
				PlayerID:    lane + string(rune('a'+i)),
				Region:      "na",
				PrimaryLane: lane,
				MMR:         1000,
				JoinedAt:    int64(n),
			})
		}
	}
	return entries
}

func TestTryFormCohort_RequiresTenPlayers(t *testing.T) {
	p := matchmaking.NewPool()
	p.JoinQueue(matchmaking.QueueEntry{PlayerID: "solo", Region: "na", PrimaryLane: "top", JoinedAt: 1})

	_, ok := p.TryFormCohort("na")
	assert.False(t, ok)
}

func TestTryFormCohort_FormsTwoBalancedFiveLaneTeams(t *testing.T) {
	p := matchmaking.NewPool()
	for _, e := range laneFillingTenPlayers() {
		p.JoinQueue(e)
	}

	proposal, ok := p.TryFormCohort("na")
	require.True(t, ok)

	assert.Equal(t, 1000, proposal.Team1.AvgMMR)
	assert.Equal(t, 1000, proposal.Team2.AvgMMR)

	seen := make(map[string]bool)
	for _, pl := range proposal.Team1.Players {
		seen[pl.PlayerID] = true
	}
	for _, pl := range proposal.Team2.Players {
		assert.False(t, seen[pl.PlayerID], "player %s on both teams", pl.PlayerID)
	}

	assert.Empty(t, p.Snapshot("na"))
}

func TestTryFormCohort_AutofillsWhenLaneStarved(t *testing.T) {
	p := matchmaking.NewPool()
	n := int64(0)
	// Nine players all primary top, one jungle: nothing requires top's
	// slots be filled by top-preference players only up to 2; the rest
	// autofill other lanes.
	for i := 0; i < 9; i++ {
		n++
		p.JoinQueue(matchmaking.QueueEntry{PlayerID: "p" + string(rune('a'+i)), Region: "na", PrimaryLane: "top", MMR: 1000, JoinedAt: n})
	}
	n++
	p.JoinQueue(matchmaking.QueueEntry{PlayerID: "jungler", Region: "na", PrimaryLane: "jungle", MMR: 1000, JoinedAt: n})

	proposal, ok := p.TryFormCohort("na")
	require.True(t, ok)
	assert.NotNil(t, proposal)
}

func TestTryFormCohort_BalancesMMRAcrossTeams(t *testing.T) {
	p := matchmaking.NewPool()
	lanes := []string{"top", "jungle", "mid", "bot", "support"}
	n := int64(0)
	for _, lane := range lanes {
		n++
		p.JoinQueue(matchmaking.QueueEntry{PlayerID: lane + "_high", Region: "na", PrimaryLane: lane, MMR: 2000, JoinedAt: n})
		n++
		p.JoinQueue(matchmaking.QueueEntry{PlayerID: lane + "_low", Region: "na", PrimaryLane: lane, MMR: 1000, JoinedAt: n})
	}

	proposal, ok := p.TryFormCohort("na")
	require.True(t, ok)
	// Five lane pairs, each split high/low, can't cancel perfectly (an odd
	// number of +-1000 contributions), but the bounded search must still
	// find the closest achievable split.
	assert.InDelta(t, proposal.Team1.AvgMMR, proposal.Team2.AvgMMR, 200)
}

func TestTryFormCohort_RegionsAreIndependent(t *testing.T) {
	p := matchmaking.NewPool()
	for _, e := range laneFillingTenPlayers() {
		p.JoinQueue(e)
	}

	_, ok := p.TryFormCohort("eu")
	assert.False(t, ok)
}
