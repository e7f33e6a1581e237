package draft_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/draft"
)

func fiveLaneTeam(name string, prefix string) draft.TeamSnapshot {
	lanes := []string{"top", "jungle", "mid", "bot", "support"}
	team := draft.TeamSnapshot{Name: name, AverageMMR: 1000}
	for i, lane := range lanes {
		team.Players = append(team.Players, draft.Player{
			SummonerName: prefix + lane,
			PlayerID:     prefix + lane,
			MMR:          1000,
			AssignedLane: lane,
		})
	}
	return team
}

func newTestState() *draft.State {
	blue := fiveLaneTeam("Blue", "blue_")
	red := fiveLaneTeam("Red", "red_")
	return draft.NewState("match-1", blue, red)
}

func TestProcessAction_FirstStepIsBlueBan(t *testing.T) {
	s := newTestState()
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, "blue_top", snap.CurrentPlayer)
	assert.Equal(t, string(draft.TeamBlue), snap.CurrentTeam)
	assert.Equal(t, string(draft.ActionBan), snap.CurrentActionType)
}

func TestProcessAction_WrongActorRejected(t *testing.T) {
	s := newTestState()
	err := s.ProcessAction(0, "1", "Annie", "red_top")
	require.Error(t, err)
	var rej *draft.ErrRejected
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "not_expected_player", rej.Reason)
}

func TestProcessAction_WrongIndexRejected(t *testing.T) {
	s := newTestState()
	err := s.ProcessAction(1, "1", "Annie", "blue_top")
	require.Error(t, err)
	var rej *draft.ErrRejected
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "wrong_index", rej.Reason)
}

func TestProcessAction_DuplicateChampionRejected(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.ProcessAction(0, "1", "Annie", "blue_top"))
	err := s.ProcessAction(1, "1", "Annie", "red_top")
	require.Error(t, err)
	var rej *draft.ErrRejected
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "champion_already_taken", rej.Reason)
}

func TestProcessAction_AdvancesIndexAndActor(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.ProcessAction(0, "1", "Annie", "blue_top"))
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, "red_top", snap.CurrentPlayer)
}

func TestFullDraft_CompletesAllTwentySteps(t *testing.T) {
	s := newTestState()
	champID := 1
	for i := 0; i < 20; i++ {
		actor := s.Snapshot().CurrentPlayer
		require.NoError(t, s.ProcessAction(i, itoa(champID), "Champ"+itoa(champID), actor))
		champID++
	}
	snap := s.Snapshot()
	assert.Equal(t, 20, snap.CurrentIndex)
	assert.Equal(t, "complete", snap.CurrentPhase)
}

func TestProcessAction_AfterCompletionRejected(t *testing.T) {
	s := newTestState()
	champID := 1
	for i := 0; i < 20; i++ {
		actor := s.Snapshot().CurrentPlayer
		require.NoError(t, s.ProcessAction(i, itoa(champID), "Champ"+itoa(champID), actor))
		champID++
	}
	err := s.ProcessAction(19, "999", "Extra", "blue_support")
	require.Error(t, err)
	var rej *draft.ErrRejected
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "draft_already_complete", rej.Reason)
}

func TestResolveTimeout_UsesDeclaredPreferenceFirst(t *testing.T) {
	s := newTestState()
	err := s.ResolveTimeout([]string{"64"}, map[string]string{"64": "LeeSin"})
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, "64", snap.Teams.Blue.Players[0].Actions[0].ChampionID)
}

func TestResolveTimeout_FallsBackToFillerList(t *testing.T) {
	s := newTestState()
	err := s.ResolveTimeout(nil, nil)
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Equal(t, "1", snap.Teams.Blue.Players[0].Actions[0].ChampionID)
}

func TestConfirmDraft_RejectsBeforeDraftComplete(t *testing.T) {
	s := newTestState()
	_, err := s.ConfirmDraft("blue_top")
	require.Error(t, err)
}

func TestConfirmDraft_ReturnsTrueOnceAllTenConfirm(t *testing.T) {
	s := newTestState()
	champID := 1
	for i := 0; i < 20; i++ {
		actor := s.Snapshot().CurrentPlayer
		require.NoError(t, s.ProcessAction(i, itoa(champID), "Champ"+itoa(champID), actor))
		champID++
	}

	names := append(append([]string{}, playerNames(s.Blue)...), playerNames(s.Red)...)
	for i, name := range names {
		done, err := s.ConfirmDraft(name)
		require.NoError(t, err)
		if i < len(names)-1 {
			assert.False(t, done)
		} else {
			assert.True(t, done)
		}
	}
}

func playerNames(team draft.TeamSnapshot) []string {
	out := make([]string, 0, len(team.Players))
	for _, p := range team.Players {
		out = append(out, p.SummonerName)
	}
	return out
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append([]byte{digits[n%10]}, out...)
		n /= 10
	}
	return string(out)
}
