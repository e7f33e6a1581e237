// Package supervisor implements the in-game supervisor and ownership
// protocol (C11): one backend instance owns a match exclusively from draft
// completion to result, with TTL-based failover and reconnect restoration.
// Ownership TTL records live in Redis (internal/kv): match:<id>:owner and
// backend:<id>:alive, heartbeat goroutine modeled on the teacher's hourly
// db.DeleteExpiredSessions ticker in cmd/server/main.go (same
// time.NewTicker + select{ctx.Done(), ticker.C} shape, different
// period/action).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/kv"
)

const (
	ownershipTTL   = 60 * time.Second
	heartbeatEvery = 30 * time.Second
	aliveTTL       = 90 * time.Second
)

func ownerKey(matchID string) string { return "match:" + matchID + ":owner" }
func aliveKey(backendID string) string { return "backend:" + backendID + ":alive" }

// Supervisor owns ownership claims and reconnect restoration bookkeeping
// for one backend instance.
type Supervisor struct {
	kv        *kv.Store
	backendID string

	mu sync.RWMutex

	// participants maps matchId -> set of normalized participant names,
	// the in-process index used by ValidateOwnership. Filled only by
	// RegisterParticipants; it starts empty on backend startup and is not
	// rebuilt from the persistent store. Guarded by mu: read from per-connection router goroutines
	// (ValidateOwnership, ActiveMatchFor), written from the coordinator and
	// per-match actor goroutines, and ranged over by RunHeartbeat.
	participants map[string]map[string]bool
	matchStatus  map[string]string
}

// New constructs a supervisor for backendID.
func New(store *kv.Store, backendID string) *Supervisor {
	return &Supervisor{
		kv:           store,
		backendID:    backendID,
		participants: make(map[string]map[string]bool),
		matchStatus:  make(map[string]string),
	}
}

// AnnounceAlive refreshes this backend's liveness record, called on the
// same heartbeat tick as ownership refresh.
func (s *Supervisor) AnnounceAlive(ctx context.Context) error {
	if err := s.kv.Set(ctx, aliveKey(s.backendID), "1", aliveTTL); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return nil
}

// ClaimMatchOwnership succeeds iff no live owner currently exists for
// matchID, per spec §4.9's algorithm.
func (s *Supervisor) ClaimMatchOwnership(ctx context.Context, matchID string) (bool, error) {
	ok, err := s.kv.SetNX(ctx, ownerKey(matchID), s.backendID, ownershipTTL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if ok {
		return true, nil
	}

	owner, present, err := s.kv.Get(ctx, ownerKey(matchID))
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if !present {
		return s.ClaimMatchOwnership(ctx, matchID)
	}
	if owner == s.backendID {
		return true, nil
	}

	alive, err := s.kv.Exists(ctx, aliveKey(owner))
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if alive {
		return false, nil
	}

	// Prior owner's heartbeat is stale: take over.
	if err := s.kv.Set(ctx, ownerKey(matchID), s.backendID, ownershipTTL); err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return true, nil
}

// RefreshOwnership re-leases the TTL for a match this backend still owns.
// Called every heartbeatEvery while the owning actor is alive.
func (s *Supervisor) RefreshOwnership(ctx context.Context, matchID string) error {
	owner, present, err := s.kv.Get(ctx, ownerKey(matchID))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if !present || owner != s.backendID {
		return nil
	}
	if err := s.kv.Expire(ctx, ownerKey(matchID), ownershipTTL); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return nil
}

// ReleaseOwnership drops the ownership claim, used on orderly match
// completion/cancellation and on graceful shutdown.
func (s *Supervisor) ReleaseOwnership(ctx context.Context, matchID string) error {
	owner, present, err := s.kv.Get(ctx, ownerKey(matchID))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if present && owner != s.backendID {
		return nil
	}
	if err := s.kv.Del(ctx, ownerKey(matchID)); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	s.mu.Lock()
	delete(s.participants, matchID)
	delete(s.matchStatus, matchID)
	s.mu.Unlock()
	return nil
}

// RegisterParticipants records a match's roster for ValidateOwnership, and
// its current status for reconnect restoration.
func (s *Supervisor) RegisterParticipants(matchID string, participants []string, status string) {
	set := make(map[string]bool, len(participants))
	for _, p := range participants {
		set[p] = true
	}
	s.mu.Lock()
	s.participants[matchID] = set
	s.matchStatus[matchID] = status
	s.mu.Unlock()
}

// SetMatchStatus updates the cached status used by reconnect restoration.
func (s *Supervisor) SetMatchStatus(matchID, status string) {
	s.mu.Lock()
	s.matchStatus[matchID] = status
	s.mu.Unlock()
}

// ValidateOwnership confirms player is a recorded participant of matchID.
// Orthogonal to backend ownership: this prevents cross-match spoofing, not
// cross-backend contention.
func (s *Supervisor) ValidateOwnership(player, matchID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.participants[matchID]
	if !ok || !set[player] {
		return apperrors.ErrNotInMatch
	}
	return nil
}

// ActiveMatchFor returns the non-terminal match a player currently belongs
// to, if any, for reconnect restoration (spec §4.9's "restore_active_match").
func (s *Supervisor) ActiveMatchFor(player string) (matchID, status string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for mid, set := range s.participants {
		if !set[player] {
			continue
		}
		st := s.matchStatus[mid]
		if st == "completed" || st == "cancelled" || st == "" {
			continue
		}
		return mid, st, true
	}
	return "", "", false
}

// RunHeartbeat refreshes this backend's liveness record and every owned
// match's ownership TTL every heartbeatEvery, until ctx is canceled. On
// cancellation it releases every match this backend still owns, matching
// spec §4.9's "on orderly shutdown, an owner releases all its matches".
func (s *Supervisor) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, matchID := range s.ownedMatchIDs() {
				_ = s.ReleaseOwnership(context.Background(), matchID)
			}
			return
		case <-ticker.C:
			_ = s.AnnounceAlive(ctx)
			for _, matchID := range s.ownedMatchIDs() {
				_ = s.RefreshOwnership(ctx, matchID)
			}
		}
	}
}

// ownedMatchIDs snapshots the current participant-tracked match ids so
// RunHeartbeat's loop body can call back into ReleaseOwnership/
// RefreshOwnership (which take mu themselves) without holding the lock
// across the call.
func (s *Supervisor) ownedMatchIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.participants))
	for matchID := range s.participants {
		ids = append(ids, matchID)
	}
	return ids
}
