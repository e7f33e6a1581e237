package acceptance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/acceptance"
)

func tenPlayers() []string {
	return []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"}
}

func TestAccept_UnknownPlayerRejected(t *testing.T) {
	s := acceptance.NewState("m1", tenPlayers())
	_, err := s.Accept("intruder")
	require.Error(t, err)
}

func TestAccept_IsIdempotent(t *testing.T) {
	s := acceptance.NewState("m1", tenPlayers())
	_, err := s.Accept("p1")
	require.NoError(t, err)
	_, err = s.Accept("p1")
	require.NoError(t, err)

	accepted, total := s.Progress()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 10, total)
}

func TestAccept_ReturnsTrueOnceEveryoneAccepted(t *testing.T) {
	s := acceptance.NewState("m1", tenPlayers())
	players := tenPlayers()
	for i, p := range players {
		all, err := s.Accept(p)
		require.NoError(t, err)
		if i < len(players)-1 {
			assert.False(t, all)
		} else {
			assert.True(t, all)
		}
	}
}

func TestDecline_UnknownPlayerRejected(t *testing.T) {
	s := acceptance.NewState("m1", tenPlayers())
	err := s.Decline("intruder")
	require.Error(t, err)
}

func TestTimedOutPlayers_OnlyNonAccepters(t *testing.T) {
	s := acceptance.NewState("m1", tenPlayers())
	s.Accept("p1")
	s.Accept("p2")

	timedOut := s.TimedOutPlayers()
	assert.Len(t, timedOut, 8)
	assert.NotContains(t, timedOut, "p1")
	assert.NotContains(t, timedOut, "p2")
}

func TestNonDecliningPlayers_ExcludesDecliners(t *testing.T) {
	s := acceptance.NewState("m1", tenPlayers())
	require.NoError(t, s.Decline("p3"))

	nonDecliners := s.NonDecliningPlayers()
	assert.Len(t, nonDecliners, 9)
	assert.NotContains(t, nonDecliners, "p3")
}

func TestDeclineBackoff_IncrementsPerPlayer(t *testing.T) {
	b := acceptance.NewDeclineBackoff()
	assert.Equal(t, 1, b.Record("p1"))
	assert.Equal(t, 2, b.Record("p1"))
	assert.Equal(t, 1, b.Record("p2"))
	assert.Equal(t, 2, b.Count("p1"))
	assert.Equal(t, 0, b.Count("unseen"))
}
