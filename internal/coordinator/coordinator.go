// Package coordinator owns the queue and match lifecycle (C8-C12 wiring):
// a single command channel for queue-level operations, generalized from the
// teacher's single global actor (internal/coordinator/coordinator.go) into
// one actor per in-flight match, per the architectural decision recorded in
// DESIGN.md (queue/admin commands stay single-writer on Coordinator itself;
// once a match is formed, its own goroutine owns accept/draft/vote so ten
// concurrent matches don't serialize through one channel). Each match actor
// keeps the teacher's exact stale-timeout-guard idiom: a timer goroutine
// re-enters the owning actor's channel on expiry carrying the state counter
// it was armed with, and the handler discards it if that counter has since
// moved on.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/acceptance"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/broadcaster"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/draft"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/matchmaking"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/rpcbridge"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/session"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/store"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/supervisor"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/voting"
)

// laneOrder must stay in sync with matchmaking's internal lane ordering:
// both packages slot a formed team's five players as Top, Jungle, Mid, Bot,
// Support so draft.TeamSnapshot's player indices line up with assigned
// lanes without re-deriving them here.
var laneOrder = [5]string{"top", "jungle", "mid", "bot", "support"}

// Config bundles the runtime-tunable knobs the coordinator needs, sourced
// from internal/config.
type Config struct {
	AcceptTimeout    time.Duration
	DraftStepTimeout time.Duration
	SpecialUsers     []string
	BackendID        string
}

// Coordinator is the top-level owner of the matchmaking pools and the
// dispatch point for every match-scoped command.
type Coordinator struct {
	commands chan Command
	log      *logrus.Logger
	cfg      Config

	pools   map[string]*matchmaking.Pool
	matches map[string]*matchActor
	backoff *acceptance.DeclineBackoff

	db    store.Store
	bcast *broadcaster.Broadcaster
	super *supervisor.Supervisor
	fetch voting.GameClientFetcher
}

// New constructs a Coordinator. sessions and rpc back the default
// game-client fetcher used to resolve vote-linking payloads.
func New(cfg Config, db store.Store, bcast *broadcaster.Broadcaster, super *supervisor.Supervisor, sessions *session.Registry, rpc *rpcbridge.Bridge, log *logrus.Logger) *Coordinator {
	return &Coordinator{
		commands: make(chan Command, 256),
		log:      log,
		cfg:      cfg,
		pools:    make(map[string]*matchmaking.Pool),
		matches:  make(map[string]*matchActor),
		backoff:  acceptance.NewDeclineBackoff(),
		db:       db,
		bcast:    bcast,
		super:    super,
		fetch:    &gameClientFetcher{sessions: sessions, bridge: rpc},
	}
}

// Send enqueues a command for processing by Run's single loop.
func (c *Coordinator) Send(cmd Command) {
	c.commands <- cmd
}

// Run processes queue-level commands sequentially until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Info("coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("coordinator shutting down")
			return
		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)
		}
	}
}

// sendAndWait enqueues cmd and blocks for its Response, or until ctx is
// canceled — the synchronous-call convenience internal/router needs to turn
// a single-writer command send back into an inbound-frame error reply.
func (c *Coordinator) sendAndWait(ctx context.Context, cmd Command, resp chan error) error {
	c.Send(cmd)
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinQueue is the public, synchronous-call form of the JoinQueue command.
func (c *Coordinator) JoinQueue(ctx context.Context, entry QueueEntry) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, JoinQueue{Entry: entry, Response: resp}, resp)
}

// LeaveQueue is the public, synchronous-call form of the LeaveQueue command.
func (c *Coordinator) LeaveQueue(ctx context.Context, region, playerID string) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, LeaveQueue{Region: region, PlayerID: playerID, Response: resp}, resp)
}

// AcceptMatch is the public, synchronous-call form of the AcceptMatch command.
func (c *Coordinator) AcceptMatch(ctx context.Context, matchID, playerID string) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, AcceptMatch{MatchID: matchID, PlayerID: playerID, Response: resp}, resp)
}

// DeclineMatch is the public, synchronous-call form of the DeclineMatch command.
func (c *Coordinator) DeclineMatch(ctx context.Context, matchID, playerID string) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, DeclineMatch{MatchID: matchID, PlayerID: playerID, Response: resp}, resp)
}

// DraftAction is the public, synchronous-call form of the DraftAction command.
func (c *Coordinator) DraftAction(ctx context.Context, matchID string, actionIndex int, championID, championName, playerID string) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, DraftAction{MatchID: matchID, ActionIndex: actionIndex, ChampionID: championID, ChampionName: championName, PlayerID: playerID, Response: resp}, resp)
}

// DraftConfirm is the public, synchronous-call form of the DraftConfirm command.
func (c *Coordinator) DraftConfirm(ctx context.Context, matchID, playerID string) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, DraftConfirm{MatchID: matchID, PlayerID: playerID, Response: resp}, resp)
}

// CastVote is the public, synchronous-call form of the CastVote command.
func (c *Coordinator) CastVote(ctx context.Context, matchID, playerID, externalGameID string) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, CastVote{MatchID: matchID, PlayerID: playerID, ExternalGameID: externalGameID, Response: resp}, resp)
}

// AdminCancelMatch is the public, synchronous-call form of the
// AdminCancelMatch command, used by internal/admin.
func (c *Coordinator) AdminCancelMatch(ctx context.Context, matchID string, returnToQueue bool) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, AdminCancelMatch{MatchID: matchID, ReturnToQueue: returnToQueue, Response: resp}, resp)
}

// AdminKickFromQueue is the public, synchronous-call form of the
// AdminKickFromQueue command, used by internal/admin.
func (c *Coordinator) AdminKickFromQueue(ctx context.Context, region, playerID string) error {
	resp := make(chan error, 1)
	return c.sendAndWait(ctx, AdminKickFromQueue{Region: region, PlayerID: playerID, Response: resp}, resp)
}

// DraftSnapshot is the public, synchronous-call form of DraftSnapshotQuery.
func (c *Coordinator) DraftSnapshot(ctx context.Context, matchID string) *draft.Snapshot {
	resp := make(chan *draft.Snapshot, 1)
	c.Send(DraftSnapshotQuery{MatchID: matchID, Response: resp})
	select {
	case snap := <-resp:
		return snap
	case <-ctx.Done():
		return nil
	}
}

// Snapshot is the public, synchronous-call form of the getStateCmd query,
// used by internal/admin's /admin/state endpoint.
func (c *Coordinator) Snapshot(ctx context.Context) Snapshot {
	resp := make(chan Snapshot, 1)
	c.Send(getStateCmd{Response: resp})
	select {
	case snap := <-resp:
		return snap
	case <-ctx.Done():
		return Snapshot{}
	}
}

// FindPlayerMatch is the public, synchronous-call form of the
// getPlayerMatchCmd query. The router's reconnect restoration does not use
// it; it asks supervisor.ActiveMatchFor instead.
func (c *Coordinator) FindPlayerMatch(ctx context.Context, playerID string) *MatchView {
	resp := make(chan *MatchView, 1)
	c.Send(getPlayerMatchCmd{PlayerID: playerID, Response: resp})
	select {
	case mv := <-resp:
		return mv
	case <-ctx.Done():
		return nil
	}
}

func (c *Coordinator) poolFor(region string) *matchmaking.Pool {
	p, ok := c.pools[region]
	if !ok {
		p = matchmaking.NewPool()
		c.pools[region] = p
	}
	return p
}

func (c *Coordinator) handleCommand(ctx context.Context, cmd Command) {
	switch cmd := cmd.(type) {
	case JoinQueue:
		err := c.handleJoinQueue(ctx, cmd)
		respond(cmd.Response, err)
	case LeaveQueue:
		err := c.handleLeaveQueue(ctx, cmd)
		respond(cmd.Response, err)
	case AdminKickFromQueue:
		ok := c.poolFor(cmd.Region).LeaveQueue(cmd.Region, cmd.PlayerID)
		if !ok {
			respond(cmd.Response, matchmaking.ErrNotQueued)
			return
		}
		respond(cmd.Response, nil)
	case AdminCancelMatch:
		err := c.handleAdminCancelMatch(ctx, cmd)
		respond(cmd.Response, err)
	case AcceptMatch, DeclineMatch, acceptTimeout, DraftAction, DraftConfirm, draftStepTimeout, CastVote:
		c.routeToMatch(ctx, cmd)
	case DraftSnapshotQuery:
		c.routeDraftSnapshotQuery(ctx, cmd)
	case getStateCmd:
		cmd.Response <- c.snapshot()
	case getPlayerMatchCmd:
		cmd.Response <- c.findPlayerMatch(cmd.PlayerID)
	}
}

func respond(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

// matchIDOf extracts the MatchID field carried by every match-scoped
// command, so routeToMatch can dispatch without a second type switch.
func matchIDOf(cmd Command) string {
	switch cmd := cmd.(type) {
	case AcceptMatch:
		return cmd.MatchID
	case DeclineMatch:
		return cmd.MatchID
	case acceptTimeout:
		return cmd.MatchID
	case DraftAction:
		return cmd.MatchID
	case DraftConfirm:
		return cmd.MatchID
	case draftStepTimeout:
		return cmd.MatchID
	case CastVote:
		return cmd.MatchID
	default:
		return ""
	}
}

func responseOf(cmd Command) chan error {
	switch cmd := cmd.(type) {
	case AcceptMatch:
		return cmd.Response
	case DeclineMatch:
		return cmd.Response
	case DraftAction:
		return cmd.Response
	case DraftConfirm:
		return cmd.Response
	case CastVote:
		return cmd.Response
	default:
		return nil
	}
}

func (c *Coordinator) routeToMatch(ctx context.Context, cmd Command) {
	matchID := matchIDOf(cmd)
	actor, ok := c.matches[matchID]
	if !ok {
		respond(responseOf(cmd), apperrors.ErrNotFound)
		return
	}
	select {
	case actor.commands <- matchCmd{ctx: ctx, cmd: cmd}:
	default:
		c.log.WithField("match", matchID).Warn("match actor command channel full, dropping command")
	}
}

// routeDraftSnapshotQuery forwards a snapshot query to its match actor,
// responding nil immediately if the match (or its actor's queue) is gone.
func (c *Coordinator) routeDraftSnapshotQuery(ctx context.Context, cmd DraftSnapshotQuery) {
	actor, ok := c.matches[cmd.MatchID]
	if !ok {
		cmd.Response <- nil
		return
	}
	select {
	case actor.commands <- matchCmd{ctx: ctx, cmd: cmd}:
	default:
		cmd.Response <- nil
	}
}

func (c *Coordinator) removeActor(matchID string) {
	delete(c.matches, matchID)
}

func (c *Coordinator) snapshot() Snapshot {
	snap := Snapshot{QueueSizeByRegion: make(map[string]int), MatchesByPhase: make(map[Phase]int)}
	for region, pool := range c.pools {
		snap.QueueSizeByRegion[region] = len(pool.Snapshot(region))
	}
	for _, actor := range c.matches {
		snap.MatchesByPhase[actor.phase]++
	}
	snap.ActiveMatches = len(c.matches)
	return snap
}

func (c *Coordinator) findPlayerMatch(playerID string) *MatchView {
	for _, actor := range c.matches {
		for _, p := range append(append([]string{}, actor.team1Names()...), actor.team2Names()...) {
			if p == playerID {
				return &MatchView{MatchID: actor.matchID, Phase: actor.phase, Team1: actor.team1Names(), Team2: actor.team2Names()}
			}
		}
	}
	return nil
}

func (c *Coordinator) handleJoinQueue(ctx context.Context, cmd JoinQueue) error {
	pool := c.poolFor(cmd.Entry.Region)
	entry := matchmaking.QueueEntry{
		PlayerID:      cmd.Entry.PlayerID,
		Region:        cmd.Entry.Region,
		PrimaryLane:   cmd.Entry.PrimaryLane,
		SecondaryLane: cmd.Entry.SecondaryLane,
		MMR:           cmd.Entry.MMR,
		JoinedAt:      cmd.Entry.JoinedAt.UnixNano(),
	}
	pool.JoinQueue(entry)
	c.broadcastQueue(ctx, cmd.Entry.Region, pool)

	if proposal, ok := pool.TryFormCohort(cmd.Entry.Region); ok {
		c.startMatch(ctx, cmd.Entry.Region, proposal)
	}
	return nil
}

func (c *Coordinator) handleLeaveQueue(ctx context.Context, cmd LeaveQueue) error {
	pool := c.poolFor(cmd.Region)
	if !pool.LeaveQueue(cmd.Region, cmd.PlayerID) {
		return matchmaking.ErrNotQueued
	}
	c.broadcastQueue(ctx, cmd.Region, pool)
	return nil
}

func (c *Coordinator) broadcastQueue(ctx context.Context, region string, pool *matchmaking.Pool) {
	entries := pool.Snapshot(region)
	targets := make([]string, 0, len(entries))
	for _, e := range entries {
		targets = append(targets, e.PlayerID)
	}
	payload, _ := json.Marshal(struct {
		Region string `json:"region"`
		Size   int    `json:"size"`
	}{region, len(entries)})
	_ = c.bcast.Send(ctx, targets, EventQueueUpdate, payload, 0)
}

func (c *Coordinator) startMatch(ctx context.Context, region string, proposal *matchmaking.Proposal) {
	matchID := uuid.NewString()

	match := &store.Match{ID: matchID, Status: string(PhaseAccepting), CreatedAt: time.Now()}
	if err := c.db.CreateMatch(ctx, match); err != nil {
		c.log.WithError(err).WithField("match", matchID).Error("failed to persist new match")
	}
	for i, e := range proposal.Team1.Players {
		_ = c.db.AddMatchPlayer(ctx, &store.MatchPlayer{MatchID: matchID, SummonerName: e.PlayerID, Team: 1, Lane: laneOrder[i]})
	}
	for i, e := range proposal.Team2.Players {
		_ = c.db.AddMatchPlayer(ctx, &store.MatchPlayer{MatchID: matchID, SummonerName: e.PlayerID, Team: 2, Lane: laneOrder[i]})
	}

	actor := newMatchActor(c, matchID, region, proposal)
	c.super.RegisterParticipants(matchID, actor.allPlayers(), string(PhaseAccepting))
	c.matches[matchID] = actor
	go actor.run(ctx)
}

func (c *Coordinator) handleAdminCancelMatch(ctx context.Context, cmd AdminCancelMatch) error {
	actor, ok := c.matches[cmd.MatchID]
	if !ok {
		return apperrors.ErrNotFound
	}
	select {
	case actor.commands <- matchCmd{ctx: ctx, cmd: adminCancel{returnToQueue: cmd.ReturnToQueue}}:
	default:
	}
	return nil
}

// adminCancel is an internal match-scoped command only Coordinator sends.
type adminCancel struct{ returnToQueue bool }

func (adminCancel) command() {}

// gameClientFetcher adapts rpcbridge.Bridge + session.Registry into
// voting.GameClientFetcher: resolving a participant's live session and
// issuing a gameclient_request for their match-history entry.
type gameClientFetcher struct {
	sessions *session.Registry
	bridge   *rpcbridge.Bridge
}

type externalGamePayload struct {
	Teams []struct {
		TeamID int    `json:"teamId"`
		Win    string `json:"win"`
	} `json:"teams"`
}

func (f *gameClientFetcher) FetchExternalGame(ctx context.Context, anyParticipant, externalGameID string) (*voting.ExternalGamePayload, error) {
	randomSessionID, ok, err := f.sessions.GetSessionBySummoner(ctx, anyParticipant)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no live session for %s", apperrors.ErrTransportFailure, anyParticipant)
	}

	resp, err := f.bridge.CallGameClient(ctx, randomSessionID, "GET", "/lol-match-history/v1/games/"+externalGameID, nil, 5*time.Second)
	if err != nil {
		return nil, err
	}

	var payload externalGamePayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrProtocolViolation, err)
	}
	for _, t := range payload.Teams {
		if t.Win == "Win" {
			return &voting.ExternalGamePayload{WinningExternalTeam: t.TeamID}, nil
		}
	}
	return nil, fmt.Errorf("%w: no winning team in external game payload", apperrors.ErrProtocolViolation)
}
