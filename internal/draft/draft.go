// Package draft implements the draft engine (C10): the twenty-step
// ban/pick state machine, with per-step timer, per-step authority check,
// and a persisted normalized snapshot. Generalizes the teacher's captain
// draft (startDraft/handlePickPlayer/scheduleDraftTimeout/
// handleDraftPickTimeout in internal/coordinator/coordinator.go) from its
// ad hoc 1-2-2-2-1 captain order to the fixed 20-step order in order.go,
// keeping the teacher's exact concurrency idiom: the owning match actor
// calls ProcessAction synchronously (single-writer), and a timer goroutine
// re-enters that actor's command channel on expiry, validated against
// CurrentIndex to discard stale timeouts (see internal/coordinator).
package draft

import (
	"errors"
	"fmt"
)

const stepTimeoutDefault = 30 // seconds, overridden by config at call sites

// ActionStatus is the lifecycle of a single draft action slot.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusCompleted ActionStatus = "completed"
)

// Action is one element of a player's actions[] array.
type Action struct {
	Index         int          `json:"index"`
	Type          ActionType   `json:"type"`
	ChampionID    string       `json:"championId"`
	ChampionName  string       `json:"championName"`
	Phase         int          `json:"phase"`
	Status        ActionStatus `json:"status"`
}

// Player is one participant's draft-facing record, per spec §4.8's exact
// snapshot schema: no duplicate bans[]/picks[] arrays, only actions[].
type Player struct {
	SummonerName string    `json:"summonerName"`
	PlayerID     string    `json:"playerId"`
	MMR          int       `json:"mmr"`
	AssignedLane string    `json:"assignedLane"`
	TeamIndex    int       `json:"teamIndex"`
	Actions      []Action  `json:"actions"`
}

// TeamSnapshot is one side's roster and aggregate rating.
type TeamSnapshot struct {
	Name       string   `json:"name"`
	TeamNumber int      `json:"teamNumber"`
	AverageMMR int      `json:"averageMmr"`
	Players    []Player `json:"players"`
}

// Snapshot is the single authoritative JSON document for one match's
// draft, matching spec §4.8's persisted snapshot format exactly.
type Snapshot struct {
	Teams struct {
		Blue TeamSnapshot `json:"blue"`
		Red  TeamSnapshot `json:"red"`
	} `json:"teams"`
	CurrentIndex      int    `json:"currentIndex"`
	CurrentPhase      string `json:"currentPhase"`
	CurrentPlayer     string `json:"currentPlayer"`
	CurrentTeam       string `json:"currentTeam"`
	CurrentActionType string `json:"currentActionType"`
}

// State is the engine's in-memory representation of one match's draft,
// owned exclusively by that match's actor goroutine.
type State struct {
	MatchID       string
	Blue          TeamSnapshot
	Red           TeamSnapshot
	CurrentIndex  int
	Confirmations map[string]bool
	seenChampions map[string]bool
}

// ErrRejected carries the specific reason a processAction call was refused,
// matching spec §4.8's "return rejected(reason), do not mutate state".
type ErrRejected struct {
	Reason string
}

func (e *ErrRejected) Error() string { return fmt.Sprintf("draft action rejected: %s", e.Reason) }

func rejected(reason string) error { return &ErrRejected{Reason: reason} }

// NewState builds a fresh draft state for a match given its two five-player
// teams, already ordered by lane (Top, Jungle, Mid, Bot, Support).
func NewState(matchID string, blue, red TeamSnapshot) *State {
	s := &State{
		MatchID:       matchID,
		Blue:          blue,
		Red:           red,
		CurrentIndex:  0,
		Confirmations: make(map[string]bool),
		seenChampions: make(map[string]bool),
	}
	s.Blue.TeamNumber, s.Red.TeamNumber = 1, 2
	for i := range s.Blue.Players {
		s.Blue.Players[i].TeamIndex = i
		s.Blue.Players[i].Actions = make([]Action, 20)
	}
	for i := range s.Red.Players {
		s.Red.Players[i].TeamIndex = i
		s.Red.Players[i].Actions = make([]Action, 20)
	}
	return s
}

// teamSnapshot returns a pointer to the team struct matching t.
func (s *State) teamSnapshot(t Team) *TeamSnapshot {
	if t == TeamBlue {
		return &s.Blue
	}
	return &s.Red
}

// expectedActor returns the summonerName of the player who must act at
// the given index.
func (s *State) expectedActor(index int) (string, error) {
	if index < 0 || index >= len(Order) {
		return "", errors.New("index out of range")
	}
	step := Order[index]
	pos := actingPositionWithinTeam(index)
	team := s.teamSnapshot(step.Team)
	if pos >= len(team.Players) {
		return "", errors.New("team roster incomplete")
	}
	return team.Players[pos].SummonerName, nil
}

// ProcessAction validates and applies one draft action, per spec §4.8's
// contract: accepts only when actionIndex == currentIndex, the action
// is not yet completed, the expected actor matches byPlayer (normalized),
// and the champion has not appeared anywhere else in the draft.
func (s *State) ProcessAction(actionIndex int, championID, championName, byPlayer string) error {
	if s.CurrentIndex >= len(Order) {
		return rejected("draft_already_complete")
	}
	if actionIndex != s.CurrentIndex {
		return rejected("wrong_index")
	}

	expected, err := s.expectedActor(actionIndex)
	if err != nil {
		return rejected("no_expected_player")
	}
	if expected != byPlayer {
		return rejected("not_expected_player")
	}

	if s.seenChampions[championID] {
		return rejected("champion_already_taken")
	}

	step := Order[actionIndex]
	team := s.teamSnapshot(step.Team)
	pos := actingPositionWithinTeam(actionIndex)

	team.Players[pos].Actions[actionIndex] = Action{
		Index:        actionIndex,
		Type:         step.Type,
		ChampionID:   championID,
		ChampionName: championName,
		Phase:        actionIndex,
		Status:       StatusCompleted,
	}
	s.seenChampions[championID] = true
	s.CurrentIndex++
	return nil
}

// ResolveTimeout applies the auto-resolution policy for a step whose timer
// expired: the first surviving champion from the acting player's declared
// preferences, else a small fixed filler list, applied deterministically
// (Open Question resolution, see DESIGN.md).
var fillerChampions = []struct{ ID, Name string }{
	{"1", "Annie"}, {"99", "Lux"}, {"238", "Zed"}, {"54", "Malphite"}, {"21", "MissFortune"},
}

func (s *State) ResolveTimeout(preferredChampionIDs []string, preferredChampionNames map[string]string) error {
	if s.CurrentIndex >= len(Order) {
		return nil
	}
	actor, err := s.expectedActor(s.CurrentIndex)
	if err != nil {
		return err
	}

	for _, champID := range preferredChampionIDs {
		if !s.seenChampions[champID] {
			name := preferredChampionNames[champID]
			return s.ProcessAction(s.CurrentIndex, champID, name, actor)
		}
	}
	for _, filler := range fillerChampions {
		if !s.seenChampions[filler.ID] {
			return s.ProcessAction(s.CurrentIndex, filler.ID, filler.Name, actor)
		}
	}
	return errors.New("no available champion to auto-resolve with")
}

// ConfirmDraft marks a player ready after step 19 completes. Returns true
// once all ten players have confirmed.
func (s *State) ConfirmDraft(summonerName string) (allConfirmed bool, err error) {
	if s.CurrentIndex < len(Order) {
		return false, rejected("draft_not_complete")
	}
	s.Confirmations[summonerName] = true
	total := len(s.Blue.Players) + len(s.Red.Players)
	return len(s.Confirmations) >= total, nil
}

// Snapshot returns the current authoritative view, per spec §4.8.
func (s *State) Snapshot() Snapshot {
	var snap Snapshot
	snap.Teams.Blue = s.Blue
	snap.Teams.Red = s.Red
	snap.CurrentIndex = s.CurrentIndex

	if s.CurrentIndex < len(Order) {
		step := Order[s.CurrentIndex]
		actor, _ := s.expectedActor(s.CurrentIndex)
		snap.CurrentPlayer = actor
		snap.CurrentTeam = string(step.Team)
		snap.CurrentActionType = string(step.Type)
		snap.CurrentPhase = fmt.Sprintf("%s_%d", step.Type, s.CurrentIndex)
	} else {
		snap.CurrentPhase = "complete"
	}
	return snap
}

// StepTimeoutSeconds is the default per-step deadline from spec §6,
// exported for callers building a timer without threading config through.
const StepTimeoutSeconds = stepTimeoutDefault
