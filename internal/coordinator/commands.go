package coordinator

import (
	"time"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/draft"
)

// Command is the interface for all messages sent into the coordinator's
// single command channel, per spec §5's single-writer rule. Generalizes the
// teacher's sealed Command interface from a fixed captain-draft vocabulary
// to the queue/accept/draft/supervise/vote lifecycle of spec §4.
type Command interface {
	command() // marker method
}

// JoinQueue requests to add a player to the matchmaking pool.
type JoinQueue struct {
	Entry    QueueEntry
	Response chan error
}

func (JoinQueue) command() {}

// LeaveQueue requests to remove a player from the pool.
type LeaveQueue struct {
	Region   string
	PlayerID string
	Response chan error
}

func (LeaveQueue) command() {}

// AcceptMatch signals a player accepted a proposed match.
type AcceptMatch struct {
	MatchID  string
	PlayerID string
	Response chan error
}

func (AcceptMatch) command() {}

// DeclineMatch signals a player declined a proposed match.
type DeclineMatch struct {
	MatchID  string
	PlayerID string
	Response chan error
}

func (DeclineMatch) command() {}

// acceptTimeout is sent when a match's acceptance window elapses.
type acceptTimeout struct {
	MatchID string
}

func (acceptTimeout) command() {}

// DraftAction is a ban/pick submitted by a player.
type DraftAction struct {
	MatchID      string
	ActionIndex  int
	ChampionID   string
	ChampionName string
	PlayerID     string
	Response     chan error
}

func (DraftAction) command() {}

// DraftConfirm is a player's post-draft readiness confirmation.
type DraftConfirm struct {
	MatchID  string
	PlayerID string
	Response chan error
}

func (DraftConfirm) command() {}

// draftStepTimeout is sent when a draft step's timer elapses; Index is the
// draft index the timer was armed for — the stale-timeout guard value,
// directly modeled on the teacher's DraftPickTimeout.PickNumber/
// match.PickCount comparison.
type draftStepTimeout struct {
	MatchID string
	Index   int
}

func (draftStepTimeout) command() {}

// DraftSnapshotQuery asks the owning match actor for its current
// authoritative draft view, per spec §4.4's draft_snapshot inbound type.
type DraftSnapshotQuery struct {
	MatchID  string
	Response chan *draft.Snapshot
}

func (DraftSnapshotQuery) command() {}

// CastVote is a player's post-game externalGameId association vote.
type CastVote struct {
	MatchID        string
	PlayerID       string
	ExternalGameID string
	Response       chan error
}

func (CastVote) command() {}

// AdminCancelMatch force-cancels a match regardless of phase.
type AdminCancelMatch struct {
	MatchID       string
	ReturnToQueue bool
	Response      chan error
}

func (AdminCancelMatch) command() {}

// AdminKickFromQueue removes a player from a region's queue.
type AdminKickFromQueue struct {
	Region   string
	PlayerID string
	Response chan error
}

func (AdminKickFromQueue) command() {}

// getStateCmd is the internal query command behind Coordinator.Snapshot.
type getStateCmd struct {
	Response chan Snapshot
}

func (getStateCmd) command() {}

// getPlayerMatchCmd is the internal query command behind
// Coordinator.FindPlayerMatch.
type getPlayerMatchCmd struct {
	PlayerID string
	Response chan *MatchView
}

func (getPlayerMatchCmd) command() {}

// QueueEntry mirrors matchmaking.QueueEntry, re-exported here so API callers
// don't need to import internal/matchmaking directly.
type QueueEntry struct {
	PlayerID      string
	Region        string
	PrimaryLane   string
	SecondaryLane string
	MMR           int
	JoinedAt      time.Time
}
