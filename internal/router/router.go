// Package router implements the message router and inbound handlers (C6):
// parsing every inbound frame by type, enforcing the two universal
// preconditions (session validity, match ownership) ahead of any mutating
// handler, and dispatching into the session registry, RPC bridge,
// coordinator, and supervisor. Generalizes the teacher's websocket message
// switch (internal/web/handlers.go's per-type case dispatch) from a fixed
// Dota lobby vocabulary to spec §4.4's full inbound catalogue, keeping its
// anti-spoof-first, reject-silently-on-mismatch posture.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/coordinator"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/gateway"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/identity"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/kv"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/rpcbridge"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/session"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/supervisor"
)

// Sender is the minimal transport dependency the router needs to reply
// directly to a connection (error replies, draft_snapshot responses), kept
// as an interface so router does not import gateway's full struct.
type Sender interface {
	SendToSession(randomSessionID string, frame []byte) error
	ConnInfo(randomSessionID string) (remoteAddr, userAgent string, ok bool)
	DrainPending(ctx context.Context, customSessionID, randomSessionID string) error
}

// criticalConfirmTimeout bounds the confirm_identity_critical round trip,
// per spec §4.4's 8 s deadline.
const criticalConfirmTimeout = 8 * time.Second

const ackPrefix = "ack:"

// Router is the message router (C6).
type Router struct {
	sessions *session.Registry
	super    *supervisor.Supervisor
	coord    *coordinator.Coordinator
	bridge   *rpcbridge.Bridge
	gw       Sender
	kv       *kv.Store
	log      *logrus.Logger

	specialUsers map[string]bool

	handlers map[string]func(ctx context.Context, randomSessionID string, data json.RawMessage)
}

// New constructs a Router wired to every component it dispatches into.
func New(sessions *session.Registry, super *supervisor.Supervisor, coord *coordinator.Coordinator, bridge *rpcbridge.Bridge, gw Sender, store *kv.Store, specialUsers map[string]bool, log *logrus.Logger) *Router {
	r := &Router{
		sessions:     sessions,
		super:        super,
		coord:        coord,
		bridge:       bridge,
		gw:           gw,
		kv:           store,
		specialUsers: specialUsers,
		log:          log,
	}
	r.handlers = map[string]func(ctx context.Context, randomSessionID string, data json.RawMessage){
		"identify_player":             r.handleIdentify,
		"electron_identify":           r.handleIdentify,
		"register_lcu_connection":     r.handleRegisterLCU,
		"gameclient_response":         r.handleGameClientResponse,
		"heartbeat":                   r.handleHeartbeat,
		"ping":                        r.handleHeartbeat,
		"pong":                        r.handleHeartbeat,
		"join_queue":                  r.handleJoinQueue,
		"leave_queue":                 r.handleLeaveQueue,
		"accept_match":                r.handleAcceptMatch,
		"decline_match":               r.handleDeclineMatch,
		"draft_action":                r.handleDraftAction,
		"draft_confirm":               r.handleDraftConfirm,
		"draft_snapshot":              r.handleDraftSnapshotRequest,
		"cast_vote":                   r.handleCastVote,
		"identity_confirmed_critical": r.handleIdentityConfirmedCritical,
		"match_found_acknowledged":    r.handleAcknowledged,
		"draft_acknowledged":          r.handleAcknowledged,
		"game_acknowledged":           r.handleAcknowledged,
		"reconnect_check_response":    r.handleReconnectCheckResponse,
	}
	return r
}

// Dispatch implements gateway.Dispatcher: decodes the frame's data payload
// for the matched handler, or drops the frame with a debug log for unknown
// types, matching the teacher's tolerant-unknown-message posture.
func (r *Router) Dispatch(ctx context.Context, randomSessionID string, frame gateway.InboundFrame) {
	h, ok := r.handlers[frame.Type]
	if !ok {
		r.log.WithField("type", frame.Type).Debug("no handler for inbound frame type")
		return
	}
	h(ctx, randomSessionID, frame.Data)
}

func (r *Router) replyError(randomSessionID, requestType string, err error) {
	frame, marshalErr := json.Marshal(struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{requestType + "_error", err.Error()})
	if marshalErr != nil {
		return
	}
	_ = r.gw.SendToSession(randomSessionID, frame)
}

// requireIdentified resolves randomSessionID's bound summonerName, rejecting
// silently if the session hasn't identified yet.
func (r *Router) requireIdentified(randomSessionID string) (string, bool) {
	name, ok := r.sessions.GetSummonerBySession(randomSessionID)
	return name, ok
}

// requireSameClaim enforces spec §4.1's anti-spoofing precondition: the
// message's claimed summonerName must match the session's registered one.
func (r *Router) requireSameClaim(randomSessionID, claimed string) (string, bool) {
	actual, ok := r.requireIdentified(randomSessionID)
	if !ok {
		return "", false
	}
	if identity.Normalize(claimed) != actual {
		r.log.WithFields(logrus.Fields{"session": randomSessionID, "claimed": claimed, "actual": actual}).Warn("rejected message: summonerName claim mismatch")
		return "", false
	}
	return actual, true
}

// requireOwnership enforces spec §4.9's match-ownership precondition for any
// message carrying a matchId.
func (r *Router) requireOwnership(player, matchID string) bool {
	if err := r.super.ValidateOwnership(player, matchID); err != nil {
		r.log.WithFields(logrus.Fields{"player": player, "match": matchID}).Warn("rejected message: player not a participant of claimed match")
		return false
	}
	return true
}

// --- identification ---

type identifyPayload struct {
	SummonerName string `json:"summonerName"`
	PUUID        string `json:"puuid"`
	Region       string `json:"region"`
}

func (r *Router) handleIdentify(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload identifyPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SummonerName == "" {
		r.log.WithField("session", randomSessionID).Warn("malformed identify_player payload")
		return
	}

	remoteAddr, userAgent, _ := r.gw.ConnInfo(randomSessionID)
	result, err := r.sessions.RegisterSession(ctx, randomSessionID, payload.SummonerName, remoteAddr, userAgent)
	if err != nil {
		r.log.WithError(err).WithField("summoner", payload.SummonerName).Error("registerSession failed closed")
		r.replyError(randomSessionID, "identify_player", err)
		return
	}
	if result.Outcome == session.Duplicate {
		r.replyError(randomSessionID, "identify_player", apperrors.ErrDuplicateInstance)
		return
	}

	name := identity.Normalize(payload.SummonerName)
	if err := r.sessions.BindCustomToRandom(ctx, result.CustomSession, randomSessionID); err != nil {
		r.log.WithError(err).WithField("summoner", name).Error("failed to bind custom session mapping")
	}

	if err := r.gw.DrainPending(ctx, result.CustomSession, randomSessionID); err != nil {
		r.log.WithError(err).WithField("summoner", name).Warn("failed to drain pending events on identify")
	}

	r.restoreActiveMatch(ctx, name, randomSessionID)
}

// restoreActiveMatch implements spec §4.9's reconnect restoration: if the
// player belongs to a non-terminal match, push a restore_active_match event
// directly to this session so the client can jump back to the right screen.
func (r *Router) restoreActiveMatch(_ context.Context, summonerName, randomSessionID string) {
	matchID, status, ok := r.super.ActiveMatchFor(summonerName)
	if !ok {
		return
	}
	var envelope struct {
		Type string `json:"type"`
		Data struct {
			MatchID string `json:"matchId"`
			Status  string `json:"status"`
		} `json:"data"`
	}
	envelope.Type = coordinator.EventRestoreActive
	envelope.Data.MatchID = matchID
	envelope.Data.Status = status
	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	_ = r.gw.SendToSession(randomSessionID, raw)
}

type registerLCUPayload struct {
	SummonerName string `json:"summonerName"`
}

func (r *Router) handleRegisterLCU(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload registerLCUPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SummonerName == "" {
		return
	}
	if _, ok := r.requireSameClaim(randomSessionID, payload.SummonerName); !ok {
		return
	}
	if _, err := r.sessions.AcquirePlayerLock(ctx, payload.SummonerName, randomSessionID); err != nil {
		r.log.WithError(err).WithField("summoner", payload.SummonerName).Warn("failed to acquire player lock on lcu registration")
	}
}

func (r *Router) handleGameClientResponse(_ context.Context, _ string, data json.RawMessage) {
	var resp rpcbridge.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		r.log.WithError(err).Warn("malformed gameclient_response payload")
		return
	}
	r.bridge.HandleResponse(resp)
}

// handleIdentityConfirmedCritical routes a client's reply to a
// confirm_identity_critical round trip (issued by
// rpcbridge.RequestCriticalConfirm ahead of a critical action like
// cast_vote) back into the bridge's pending-call map. Without this case
// the reply is never seen by Dispatch's handler lookup and every critical
// confirmation times out.
func (r *Router) handleIdentityConfirmedCritical(_ context.Context, _ string, data json.RawMessage) {
	var resp rpcbridge.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		r.log.WithError(err).Warn("malformed identity_confirmed_critical payload")
		return
	}
	r.bridge.HandleResponse(resp)
}

func (r *Router) handleHeartbeat(ctx context.Context, randomSessionID string, _ json.RawMessage) {
	if err := r.sessions.UpdateHeartbeat(ctx, randomSessionID); err != nil && err != apperrors.ErrNotFound {
		r.log.WithError(err).WithField("session", randomSessionID).Debug("heartbeat refresh failed")
	}
}

// --- queue ---

type joinQueuePayload struct {
	SummonerName  string `json:"summonerName"`
	Region        string `json:"region"`
	PrimaryLane   string `json:"primaryLane"`
	SecondaryLane string `json:"secondaryLane"`
	MMR           int    `json:"mmr"`
}

func (r *Router) handleJoinQueue(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload joinQueuePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok {
		return
	}
	entry := coordinator.QueueEntry{
		PlayerID:      name,
		Region:        payload.Region,
		PrimaryLane:   payload.PrimaryLane,
		SecondaryLane: payload.SecondaryLane,
		MMR:           payload.MMR,
		JoinedAt:      time.Now(),
	}
	if err := r.coord.JoinQueue(ctx, entry); err != nil {
		r.replyError(randomSessionID, "join_queue", err)
	}
}

type leaveQueuePayload struct {
	SummonerName string `json:"summonerName"`
	Region       string `json:"region"`
}

func (r *Router) handleLeaveQueue(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload leaveQueuePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok {
		return
	}
	if err := r.coord.LeaveQueue(ctx, payload.Region, name); err != nil {
		r.replyError(randomSessionID, "leave_queue", err)
	}
}

// --- acceptance ---

type matchPlayerPayload struct {
	MatchID      string `json:"matchId"`
	SummonerName string `json:"summonerName"`
}

func (r *Router) handleAcceptMatch(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload matchPlayerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok || !r.requireOwnership(name, payload.MatchID) {
		return
	}
	if err := r.coord.AcceptMatch(ctx, payload.MatchID, name); err != nil {
		r.replyError(randomSessionID, "accept_match", err)
	}
}

func (r *Router) handleDeclineMatch(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload matchPlayerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok || !r.requireOwnership(name, payload.MatchID) {
		return
	}
	if err := r.coord.DeclineMatch(ctx, payload.MatchID, name); err != nil {
		r.replyError(randomSessionID, "decline_match", err)
	}
}

// --- draft ---

type draftActionPayload struct {
	MatchID      string `json:"matchId"`
	SummonerName string `json:"summonerName"`
	ActionIndex  int    `json:"actionIndex"`
	ChampionID   string `json:"championId"`
	ChampionName string `json:"championName"`
}

func (r *Router) handleDraftAction(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload draftActionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok || !r.requireOwnership(name, payload.MatchID) {
		return
	}
	if err := r.coord.DraftAction(ctx, payload.MatchID, payload.ActionIndex, payload.ChampionID, payload.ChampionName, name); err != nil {
		r.replyError(randomSessionID, "draft_action", err)
	}
}

func (r *Router) handleDraftConfirm(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload matchPlayerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok || !r.requireOwnership(name, payload.MatchID) {
		return
	}
	if err := r.coord.DraftConfirm(ctx, payload.MatchID, name); err != nil {
		r.replyError(randomSessionID, "draft_confirm", err)
	}
}

type draftSnapshotPayload struct {
	MatchID      string `json:"matchId"`
	SummonerName string `json:"summonerName"`
}

func (r *Router) handleDraftSnapshotRequest(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload draftSnapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok || !r.requireOwnership(name, payload.MatchID) {
		return
	}
	snap := r.coord.DraftSnapshot(ctx, payload.MatchID)
	if snap == nil {
		return
	}
	raw, err := json.Marshal(struct {
		Type string      `json:"type"`
		Data interface{} `json:"data"`
	}{Type: "draft_snapshot", Data: snap})
	if err != nil {
		return
	}
	_ = r.gw.SendToSession(randomSessionID, raw)
}

// --- voting ---

type castVotePayload struct {
	MatchID        string `json:"matchId"`
	SummonerName   string `json:"summonerName"`
	ExternalGameID string `json:"externalGameId"`
}

// handleCastVote is a critical action per spec §4.4: it first requires a
// confirm_identity_critical round trip (skipped for bots) before the vote
// is applied, since a spoofed or stale vote silently determines match
// outcome and rating changes.
func (r *Router) handleCastVote(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload castVotePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok || !r.requireOwnership(name, payload.MatchID) {
		return
	}

	if !identity.IsBot(name) {
		confirmCtx, cancel := context.WithTimeout(ctx, criticalConfirmTimeout)
		err := r.bridge.RequestCriticalConfirm(confirmCtx, randomSessionID, "cast_vote", criticalConfirmTimeout)
		cancel()
		if err != nil {
			r.log.WithError(err).WithField("summoner", name).Warn("cast_vote rejected: critical confirmation failed")
			r.replyError(randomSessionID, "cast_vote", apperrors.ErrTimeout)
			return
		}
	}

	if err := r.coord.CastVote(ctx, payload.MatchID, name, payload.ExternalGameID); err != nil {
		r.replyError(randomSessionID, "cast_vote", err)
	}
}

// --- acknowledgements ---

type acknowledgedPayload struct {
	SummonerName string `json:"summonerName"`
	Type         string `json:"type"`
}

// handleAcknowledged records a receipt marker in the KV store, per spec
// §4.4's *_acknowledged row. Every acknowledgement type gets the same fixed
// 24 h TTL; the TTL does not vary by event class. The marker itself
// is advisory bookkeeping (delivery is already guaranteed by the outbox);
// nothing currently reads it back, so it is fire-and-forget.
func (r *Router) handleAcknowledged(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload acknowledgedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok {
		return
	}
	key := ackPrefix + payload.Type + ":" + session.CustomSessionID(name)
	if err := r.kv.Set(ctx, key, time.Now().Format(time.RFC3339), 24*time.Hour); err != nil {
		r.log.WithError(err).WithField("summoner", name).Debug("failed to record acknowledgement marker")
	}
}

// --- reconnect fan-out ---

type reconnectCheckResponsePayload struct {
	SummonerName string `json:"summonerName"`
	CurrentView  string `json:"currentView"`
}

// handleReconnectCheckResponse is the client's reply during a global
// reconnect fan-out; the supervisor's restore path already re-pushes a
// restore_active_match event on identify, so this handler only logs the
// view the client reports; unlike handleAcknowledged it records no marker.
func (r *Router) handleReconnectCheckResponse(ctx context.Context, randomSessionID string, data json.RawMessage) {
	var payload reconnectCheckResponsePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	name, ok := r.requireSameClaim(randomSessionID, payload.SummonerName)
	if !ok {
		return
	}
	r.log.WithFields(logrus.Fields{"summoner": name, "view": payload.CurrentView}).Debug("reconnect_check_response received")
}
