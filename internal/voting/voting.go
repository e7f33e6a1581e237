// Package voting implements post-game vote aggregation and ELO-style rating
// (C12): tallying externalGameId votes per match, the 5-vote and
// privileged-voter linking rules, and the LP delta formula. Grounded on the
// teacher's leaderboard/stat-update pass in internal/store/sqlite.go
// (UpsertPlayer after a match result) generalized from Dota's win/loss-only
// update to the spec's rating-delta formula.
package voting

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/store"
)

// K is the ELO K-factor from spec §3.
const K = 32.0

// linkThreshold is the vote count needed for non-privileged linking.
const linkThreshold = 5

// blue/red external team identifiers as reported by the game client.
const (
	externalTeamBlue = 100
	externalTeamRed  = 200
)

// ExternalGamePayload is the subset of a fetched external match record this
// package needs: which external team won.
type ExternalGamePayload struct {
	WinningExternalTeam int // 100 or 200
}

// GameClientFetcher fetches a participant's external match history entry by
// id, via any participant's gateway connection (conceptually C5's RPC
// bridge). Implemented by the coordinator using rpcbridge.Bridge.
type GameClientFetcher interface {
	FetchExternalGame(ctx context.Context, anyParticipant, externalGameID string) (*ExternalGamePayload, error)
}

// LinkReason distinguishes why a match linked, surfaced in the
// match_linked broadcast per spec §6.
type LinkReason string

const (
	ReasonThreshold      LinkReason = "vote_threshold"
	ReasonPrivilegedVote LinkReason = "privileged_voter"
)

// Tally is one match's in-progress vote state, owned by that match's actor.
type Tally struct {
	MatchID        string
	votesByPlayer  map[string]string // summonerName -> externalGameId
	countsByGameID map[string]int
	linked         bool
	LinkedGameID   string
	LinkReason     LinkReason
}

// NewTally starts empty vote tracking for a match.
func NewTally(matchID string) *Tally {
	return &Tally{
		MatchID:        matchID,
		votesByPlayer:  make(map[string]string),
		countsByGameID: make(map[string]int),
	}
}

// Counts returns a snapshot of externalGameId -> vote count, for the
// match_vote_progress broadcast.
func (t *Tally) Counts() map[string]int {
	out := make(map[string]int, len(t.countsByGameID))
	for k, v := range t.countsByGameID {
		out[k] = v
	}
	return out
}

// Voters returns the summonerNames who have voted so far.
func (t *Tally) Voters() []string {
	out := make([]string, 0, len(t.votesByPlayer))
	for p := range t.votesByPlayer {
		out = append(out, p)
	}
	return out
}

// CastVote records player's vote for externalGameID, replacing any prior
// vote from the same player in place, per spec §4.10's overwrite rule. If
// isPrivileged, the match links immediately on this call. Otherwise it
// links once externalGameID reaches linkThreshold votes. Returns whether
// this call caused linking, and if so, with what reason; subsequent calls
// after linking are no-ops (spec: "subsequent votes are ignored").
func (t *Tally) CastVote(player, externalGameID string, isPrivileged bool) (linkedNow bool, reason LinkReason) {
	if t.linked {
		return false, ""
	}

	if prior, had := t.votesByPlayer[player]; had && prior != externalGameID {
		t.countsByGameID[prior]--
		if t.countsByGameID[prior] <= 0 {
			delete(t.countsByGameID, prior)
		}
	}
	t.votesByPlayer[player] = externalGameID
	t.countsByGameID[externalGameID] = t.countUsesOf(externalGameID)

	if isPrivileged {
		t.linked = true
		t.LinkedGameID = externalGameID
		t.LinkReason = ReasonPrivilegedVote
		return true, ReasonPrivilegedVote
	}

	if t.countsByGameID[externalGameID] >= linkThreshold {
		t.linked = true
		t.LinkedGameID = externalGameID
		t.LinkReason = ReasonThreshold
		return true, ReasonThreshold
	}
	return false, ""
}

func (t *Tally) countUsesOf(externalGameID string) int {
	n := 0
	for _, v := range t.votesByPlayer {
		if v == externalGameID {
			n++
		}
	}
	return n
}

// Linked reports whether linking has already occurred.
func (t *Tally) Linked() bool { return t.linked }

// WinnerTeamFromExternal maps the game-client's team id (100/200) to this
// service's team numbering (1/2), per spec §4.10.
func WinnerTeamFromExternal(externalTeam int) (int, error) {
	switch externalTeam {
	case externalTeamBlue:
		return 1, nil
	case externalTeamRed:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized external team id %d", apperrors.ErrProtocolViolation, externalTeam)
	}
}

// RatingDelta is one player's LP change from a single match.
type RatingDelta struct {
	SummonerName string
	Delta        int
}

// ComputeDelta applies the ELO-style formula from spec §3: a player rated R
// facing an opposing team averaging Ro, with outcome win in {1,0}.
func ComputeDelta(r, ro int, win bool) int {
	w := 0.0
	if win {
		w = 1.0
	}
	expected := 1.0 / (1.0 + math.Pow(10, float64(ro-r)/400.0))
	return int(math.Round(K * (w - expected)))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ComputeMatchDeltas computes every participant's LP delta for a finished
// match, given each team's roster with individual MMR and the winning team
// number (1 or 2). Symmetric by construction: team2's expected value is
// 1-team1's expected value against the same pairing, so deltas sum to zero
// within rounding (spec invariant 6).
func ComputeMatchDeltas(team1, team2 []store.Player, winnerTeam int) []RatingDelta {
	avg := func(players []store.Player) int {
		if len(players) == 0 {
			return 0
		}
		sum := 0
		for _, p := range players {
			sum += p.MMR
		}
		return sum / len(players)
	}
	avg1, avg2 := avg(team1), avg(team2)

	var deltas []RatingDelta
	for _, p := range team1 {
		deltas = append(deltas, RatingDelta{p.SummonerName, ComputeDelta(p.MMR, avg2, winnerTeam == 1)})
	}
	for _, p := range team2 {
		deltas = append(deltas, RatingDelta{p.SummonerName, ComputeDelta(p.MMR, avg1, winnerTeam == 2)})
	}
	return deltas
}

// FinalizeMatch persists the vote outcome: links the external game, records
// the winner, computes and applies LP deltas, and updates player win/loss
// aggregates. The writes are sequential, not one database transaction. A
// failed read of the match, its roster, or any player's rating returns an
// error before anything is written, so the match is not marked completed.
// Once the match record is written, the per-player updates are best-effort
// and their errors are ignored, so a failed rating write does not undo the
// completed match.
func FinalizeMatch(ctx context.Context, db store.Store, matchID, linkedExternalGameID string, winnerTeam int) (*store.Match, []RatingDelta, error) {
	match, err := db.GetMatch(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if match == nil {
		return nil, nil, apperrors.ErrNotFound
	}

	players, err := db.GetMatchPlayers(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}

	var team1Names, team2Names []string
	for _, mp := range players {
		if mp.Team == 1 {
			team1Names = append(team1Names, mp.SummonerName)
		} else {
			team2Names = append(team2Names, mp.SummonerName)
		}
	}

	team1, team2, err := loadRosters(ctx, db, team1Names, team2Names)
	if err != nil {
		return nil, nil, err
	}

	deltas := ComputeMatchDeltas(team1, team2, winnerTeam)

	deltaJSON, _ := json.Marshal(deltas)
	total := 0
	for _, d := range deltas {
		total += abs(d.Delta)
	}

	wt := winnerTeam
	match.WinnerTeam = &wt
	match.LinkedExternalGameID = &linkedExternalGameID
	match.LPChangesJSON = string(deltaJSON)
	match.TotalLP = total
	match.Status = "completed"

	if err := db.UpdateMatch(ctx, match); err != nil {
		return nil, deltas, err
	}

	applyPlayerDeltas(ctx, db, team1, team2, deltas, winnerTeam)

	return match, deltas, nil
}

func loadRosters(ctx context.Context, db store.Store, team1Names, team2Names []string) ([]store.Player, []store.Player, error) {
	load := func(names []string) ([]store.Player, error) {
		out := make([]store.Player, 0, len(names))
		for _, n := range names {
			p, err := db.GetPlayer(ctx, n)
			if err != nil {
				return nil, err
			}
			if p == nil {
				p = &store.Player{SummonerName: n, MMR: 1000}
			}
			out = append(out, *p)
		}
		return out, nil
	}
	t1, err := load(team1Names)
	if err != nil {
		return nil, nil, err
	}
	t2, err := load(team2Names)
	if err != nil {
		return nil, nil, err
	}
	return t1, t2, nil
}

// applyPlayerDeltas updates each player's custom LP, win/loss counters,
// peak custom rating, and streak. The external-rank-derived p.MMR is left
// untouched; only CustomLP accumulates match deltas. Best-effort: per spec
// §4.10, failures here must not be treated as match-finalization failures
// by the caller.
func applyPlayerDeltas(ctx context.Context, db store.Store, team1, team2 []store.Player, deltas []RatingDelta, winnerTeam int) {
	deltaBy := make(map[string]int, len(deltas))
	for _, d := range deltas {
		deltaBy[d.SummonerName] = d.Delta
	}

	update := func(players []store.Player, won bool) {
		for _, p := range players {
			p.CustomLP += deltaBy[p.SummonerName]
			p.GamesPlayed++
			if won {
				p.Wins++
				if p.WinStreak >= 0 {
					p.WinStreak++
				} else {
					p.WinStreak = 1
				}
			} else {
				p.Losses++
				if p.WinStreak <= 0 {
					p.WinStreak--
				} else {
					p.WinStreak = -1
				}
			}
			// customMmr is the rank-derived base MMR plus accumulated custom
			// lobby LP, per spec §4.10 step 3; p.MMR itself is untouched by
			// match results, only by the external rank sync.
			customMmr := p.MMR + p.CustomLP
			if customMmr > p.PeakMMR {
				p.PeakMMR = customMmr
			}
			_ = db.UpsertPlayer(ctx, &p)
		}
	}
	update(team1, winnerTeam == 1)
	update(team2, winnerTeam == 2)
}

// IsPrivileged reports whether summonerName is in the configured special
// users list (case-sensitive on the already-normalized name).
func IsPrivileged(summonerName string, specialUsers []string) bool {
	for _, s := range specialUsers {
		if s == summonerName {
			return true
		}
	}
	return false
}
