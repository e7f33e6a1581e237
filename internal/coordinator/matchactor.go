package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/acceptance"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/draft"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/matchmaking"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/store"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/voting"
)

// matchCmd wraps a match-scoped Command with the context it arrived under,
// since the actor's handlers perform broadcasts and store writes.
type matchCmd struct {
	ctx context.Context
	cmd Command
}

// matchActor owns one match's full accept/draft/supervise/vote lifecycle on
// its own goroutine and command channel, generalizing the teacher's single
// global Coordinator.handleCommand switch to a per-match single-writer.
type matchActor struct {
	matchID string
	region  string
	coord   *Coordinator

	commands chan matchCmd

	team1 []matchmaking.QueueEntry
	team2 []matchmaking.QueueEntry

	phase  Phase
	accept *acceptance.State
	draft  *draft.State
	tally  *voting.Tally
}

func newMatchActor(coord *Coordinator, matchID, region string, proposal *matchmaking.Proposal) *matchActor {
	return &matchActor{
		matchID:  matchID,
		region:   region,
		coord:    coord,
		commands: make(chan matchCmd, 64),
		team1:    proposal.Team1.Players[:],
		team2:    proposal.Team2.Players[:],
		phase:    PhaseAccepting,
	}
}

func (a *matchActor) team1Names() []string { return playerIDs(a.team1) }
func (a *matchActor) team2Names() []string { return playerIDs(a.team2) }

func playerIDs(entries []matchmaking.QueueEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PlayerID
	}
	return out
}

func (a *matchActor) allPlayers() []string {
	return append(append([]string{}, a.team1Names()...), a.team2Names()...)
}

// run is the actor's event loop: it begins the accept phase, then processes
// commands until the match reaches a terminal phase or ctx is canceled.
func (a *matchActor) run(ctx context.Context) {
	defer a.coord.removeActor(a.matchID)

	a.beginAccept(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case mc := <-a.commands:
			a.handle(mc.ctx, mc.cmd)
			if a.phase == PhaseCompleted || a.phase == PhaseCancelled {
				return
			}
		}
	}
}

func (a *matchActor) handle(ctx context.Context, cmd Command) {
	switch cmd := cmd.(type) {
	case AcceptMatch:
		respond(cmd.Response, a.handleAccept(ctx, cmd.PlayerID))
	case DeclineMatch:
		respond(cmd.Response, a.handleDecline(ctx, cmd.PlayerID))
	case acceptTimeout:
		a.handleAcceptTimeout(ctx)
	case DraftAction:
		respond(cmd.Response, a.handleDraftAction(ctx, cmd))
	case DraftConfirm:
		respond(cmd.Response, a.handleDraftConfirm(ctx, cmd.PlayerID))
	case draftStepTimeout:
		a.handleDraftStepTimeout(ctx, cmd.Index)
	case CastVote:
		respond(cmd.Response, a.handleCastVote(ctx, cmd))
	case DraftSnapshotQuery:
		if a.draft == nil {
			cmd.Response <- nil
		} else {
			snap := a.draft.Snapshot()
			cmd.Response <- &snap
		}
	case adminCancel:
		var requeue []matchmaking.QueueEntry
		if cmd.returnToQueue {
			requeue = a.requeueEntries(a.accept.NonDecliningPlayers())
		}
		a.cancelMatch(ctx, a.allPlayers(), requeue, true)
	}
}

func (a *matchActor) broadcast(ctx context.Context, eventType string, payload interface{}, ttl time.Duration) {
	raw, err := json.Marshal(payload)
	if err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Error("failed to marshal broadcast payload")
		return
	}
	if err := a.coord.bcast.Send(ctx, a.allPlayers(), eventType, raw, ttl); err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Warn("broadcast failed")
	}
}

// --- Accept phase ---

func (a *matchActor) beginAccept(ctx context.Context) {
	a.accept = acceptance.NewState(a.matchID, a.allPlayers())
	a.broadcast(ctx, EventMatchFound, struct {
		MatchID string   `json:"matchId"`
		Team1   []string `json:"team1"`
		Team2   []string `json:"team2"`
	}{a.matchID, a.team1Names(), a.team2Names()}, 5*time.Minute)

	timeout := a.coord.cfg.AcceptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		time.Sleep(timeout)
		select {
		case a.commands <- matchCmd{ctx: context.Background(), cmd: acceptTimeout{MatchID: a.matchID}}:
		default:
		}
	}()
}

func (a *matchActor) handleAccept(ctx context.Context, player string) error {
	if a.phase != PhaseAccepting {
		return apperrors.ErrProtocolViolation
	}
	allAccepted, err := a.accept.Accept(player)
	if err != nil {
		return err
	}
	accepted, total := a.accept.Progress()
	a.broadcast(ctx, EventMatchAcceptUpdate, struct {
		MatchID  string `json:"matchId"`
		Accepted int    `json:"accepted"`
		Total    int    `json:"total"`
	}{a.matchID, accepted, total}, 0)

	if allAccepted {
		a.startDraft(ctx)
	}
	return nil
}

func (a *matchActor) handleDecline(ctx context.Context, player string) error {
	if a.phase != PhaseAccepting {
		return apperrors.ErrProtocolViolation
	}
	if err := a.accept.Decline(player); err != nil {
		return err
	}
	a.coord.backoff.Record(player)
	a.cancelMatch(ctx, []string{player}, a.requeueEntries(a.accept.NonDecliningPlayers()), true)
	return nil
}

func (a *matchActor) handleAcceptTimeout(ctx context.Context) {
	if a.phase != PhaseAccepting {
		return
	}
	timedOut := a.accept.TimedOutPlayers()
	if len(timedOut) == 0 {
		return
	}
	a.cancelMatch(ctx, timedOut, a.requeueEntries(a.accept.NonDecliningPlayers()), true)
}

func (a *matchActor) requeueEntries(players []string) []matchmaking.QueueEntry {
	want := make(map[string]bool, len(players))
	for _, p := range players {
		want[p] = true
	}
	var out []matchmaking.QueueEntry
	for _, e := range append(append([]matchmaking.QueueEntry{}, a.team1...), a.team2...) {
		if want[e.PlayerID] {
			out = append(out, e)
		}
	}
	return out
}

func (a *matchActor) cancelMatch(ctx context.Context, failedPlayers []string, requeue []matchmaking.QueueEntry, persist bool) {
	a.phase = PhaseCancelled
	a.coord.super.SetMatchStatus(a.matchID, string(PhaseCancelled))
	if err := a.coord.super.ReleaseOwnership(ctx, a.matchID); err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Warn("failed to release match ownership on cancel")
	}
	a.broadcast(ctx, EventMatchCancelled, struct {
		MatchID string   `json:"matchId"`
		Failed  []string `json:"failedPlayers"`
	}{a.matchID, failedPlayers}, 0)

	if persist {
		match, err := a.coord.db.GetMatch(ctx, a.matchID)
		if err == nil && match != nil {
			match.Status = string(PhaseCancelled)
			_ = a.coord.db.UpdateMatch(ctx, match)
		}
	}

	pool := a.coord.poolFor(a.region)
	for _, e := range requeue {
		pool.JoinQueue(e)
	}
	a.coord.broadcastQueue(ctx, a.region, pool)
}

// --- Draft phase ---

func (a *matchActor) startDraft(ctx context.Context) {
	a.phase = PhaseDrafting
	a.coord.super.SetMatchStatus(a.matchID, string(PhaseDrafting))

	blue := draft.TeamSnapshot{Name: "blue", Players: toDraftPlayers(a.team1)}
	red := draft.TeamSnapshot{Name: "red", Players: toDraftPlayers(a.team2)}
	a.draft = draft.NewState(a.matchID, blue, red)

	match, err := a.coord.db.GetMatch(ctx, a.matchID)
	if err == nil && match != nil {
		snap, _ := json.Marshal(a.draft.Snapshot())
		match.Status = string(PhaseDrafting)
		match.PickBanDataJSON = string(snap)
		now := time.Now()
		match.StartedAt = &now
		_ = a.coord.db.UpdateMatch(ctx, match)
	}

	a.broadcast(ctx, EventDraftStarted, a.draft.Snapshot(), 10*time.Minute)
	a.scheduleDraftTimeout(0)
}

func toDraftPlayers(entries []matchmaking.QueueEntry) []draft.Player {
	out := make([]draft.Player, len(entries))
	for i, e := range entries {
		out[i] = draft.Player{
			SummonerName: e.PlayerID,
			PlayerID:     e.PlayerID,
			MMR:          e.MMR,
			AssignedLane: laneOrder[i],
		}
	}
	return out
}

func (a *matchActor) scheduleDraftTimeout(index int) {
	timeout := a.coord.cfg.DraftStepTimeout
	if timeout <= 0 {
		timeout = time.Duration(draft.StepTimeoutSeconds) * time.Second
	}
	go func() {
		time.Sleep(timeout)
		select {
		case a.commands <- matchCmd{ctx: context.Background(), cmd: draftStepTimeout{MatchID: a.matchID, Index: index}}:
		default:
		}
	}()
}

func (a *matchActor) handleDraftAction(ctx context.Context, cmd DraftAction) error {
	if a.phase != PhaseDrafting {
		return apperrors.ErrProtocolViolation
	}
	if err := a.draft.ProcessAction(cmd.ActionIndex, cmd.ChampionID, cmd.ChampionName, cmd.PlayerID); err != nil {
		return err
	}
	a.afterDraftStep(ctx)
	return nil
}

func (a *matchActor) handleDraftStepTimeout(ctx context.Context, index int) {
	if a.phase != PhaseDrafting {
		return
	}
	if index != a.draft.CurrentIndex {
		// Stale timeout: a pick/ban already advanced past this index.
		return
	}
	if err := a.draft.ResolveTimeout(nil, nil); err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Warn("draft auto-resolution failed")
		return
	}
	a.afterDraftStep(ctx)
}

func (a *matchActor) afterDraftStep(ctx context.Context) {
	snap := a.draft.Snapshot()
	a.broadcast(ctx, EventDraftUpdate, snap, 10*time.Minute)

	match, err := a.coord.db.GetMatch(ctx, a.matchID)
	if err == nil && match != nil {
		raw, _ := json.Marshal(snap)
		match.PickBanDataJSON = string(raw)
		_ = a.coord.db.UpdateMatch(ctx, match)
	}

	if a.draft.CurrentIndex >= len(draft.Order) {
		a.broadcast(ctx, EventDraftComplete, snap, 10*time.Minute)
		return
	}
	a.scheduleDraftTimeout(a.draft.CurrentIndex)
}

func (a *matchActor) handleDraftConfirm(ctx context.Context, player string) error {
	if a.phase != PhaseDrafting {
		return apperrors.ErrProtocolViolation
	}
	allConfirmed, err := a.draft.ConfirmDraft(player)
	if err != nil {
		return err
	}
	if allConfirmed {
		a.beginSupervision(ctx)
	}
	return nil
}

// --- In-progress / voting phase ---

func (a *matchActor) beginSupervision(ctx context.Context) {
	a.phase = PhaseInProgress
	a.tally = voting.NewTally(a.matchID)

	claimed, err := a.coord.super.ClaimMatchOwnership(ctx, a.matchID)
	if err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Error("failed to claim match ownership")
	} else if !claimed {
		a.coord.log.WithField("match", a.matchID).Warn("another backend already owns this match")
	}
	a.coord.super.SetMatchStatus(a.matchID, string(PhaseInProgress))

	match, err := a.coord.db.GetMatch(ctx, a.matchID)
	if err == nil && match != nil {
		match.Status = string(PhaseInProgress)
		match.OwnerBackendID = a.coord.cfg.BackendID
		_ = a.coord.db.UpdateMatch(ctx, match)
	}
}

func (a *matchActor) handleCastVote(ctx context.Context, cmd CastVote) error {
	if a.phase != PhaseInProgress && a.phase != PhaseVoting {
		return apperrors.ErrProtocolViolation
	}
	a.phase = PhaseVoting
	a.coord.super.SetMatchStatus(a.matchID, string(PhaseVoting))

	if err := a.coord.db.UpsertVote(ctx, &store.Vote{MatchID: a.matchID, SummonerName: cmd.PlayerID, ExternalGameID: cmd.ExternalGameID, VotedAt: time.Now()}); err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Warn("failed to persist vote")
	}

	isPrivileged := voting.IsPrivileged(cmd.PlayerID, a.coord.cfg.SpecialUsers)
	linkedNow, reason := a.tally.CastVote(cmd.PlayerID, cmd.ExternalGameID, isPrivileged)

	a.broadcast(ctx, EventMatchVoteProgress, struct {
		MatchID string         `json:"matchId"`
		Votes   map[string]int `json:"votes"`
		Voters  []string       `json:"voters"`
	}{a.matchID, a.tally.Counts(), a.tally.Voters()}, 0)

	if linkedNow {
		a.finalizeVote(ctx, cmd.ExternalGameID, reason)
	}
	return nil
}

func (a *matchActor) finalizeVote(ctx context.Context, externalGameID string, reason voting.LinkReason) {
	anyParticipant := a.matchID
	if len(a.team1) > 0 {
		anyParticipant = a.team1[0].PlayerID
	}

	payload, err := a.coord.fetch.FetchExternalGame(ctx, anyParticipant, externalGameID)
	if err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Error("failed to fetch external game payload, leaving match in voting phase")
		return
	}
	winnerTeam, err := voting.WinnerTeamFromExternal(payload.WinningExternalTeam)
	if err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Error("unrecognized external team id")
		return
	}

	match, deltas, err := voting.FinalizeMatch(ctx, a.coord.db, a.matchID, externalGameID, winnerTeam)
	if err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Error("failed to finalize match, rating update skipped")
		return
	}

	a.phase = PhaseCompleted
	a.coord.super.SetMatchStatus(a.matchID, string(PhaseCompleted))
	if err := a.coord.super.ReleaseOwnership(ctx, a.matchID); err != nil {
		a.coord.log.WithError(err).WithField("match", a.matchID).Warn("failed to release match ownership")
	}

	a.broadcast(ctx, EventMatchLinked, struct {
		MatchID      string               `json:"matchId"`
		LinkedGameID string               `json:"linkedExternalGameId"`
		WinnerTeam   int                  `json:"winnerTeam"`
		Reason       voting.LinkReason    `json:"reason"`
		TotalLP      int                  `json:"totalLp"`
		Deltas       []voting.RatingDelta `json:"lpChanges"`
	}{a.matchID, externalGameID, winnerTeam, reason, match.TotalLP, deltas}, 0)
}
