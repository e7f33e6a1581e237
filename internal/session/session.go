// Package session implements the session registry (C3): the 1-1 live
// mapping between a normalized summonerName and its currently connected
// gateway, with exclusion locking and duplicate-session takeover. KV-backed
// (internal/kv) for the cross-backend lock and index records; an
// in-process, mutex-guarded map holds the non-serializable "live session"
// handles, per design note §9 (a live session wraps the gateway's own
// connection object, which cannot live in Redis).
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/identity"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/kv"

	"github.com/sirupsen/logrus"
)

const (
	lockTTL    = 120 * time.Second
	customPfx  = "custom_session_mapping:"
	randomPfx  = "session_by_summoner:"
	playerLock = "player:"
)

// Outcome is the result of a registerSession attempt.
type Outcome int

const (
	// Accepted means the caller now holds the player lock.
	Accepted Outcome = iota
	// Duplicate means another live session already holds the lock.
	Duplicate
)

// RegisterResult reports the outcome of registerSession, including the
// current holder's session id when rejected.
type RegisterResult struct {
	Outcome        Outcome
	HeldBy         string
	CustomSession  string
}

// LiveSession is the in-process record of a connected gateway. Handle is an
// opaque value (the actual *websocket.Conn lives in internal/gateway) kept
// here only so the registry can answer "is this session's connection still
// present locally" without round-tripping through the KV store.
type LiveSession struct {
	RandomSessionID string
	CustomSessionID string
	SummonerName    string
	RemoteAddr      string
	UserAgent       string
	LastActivity    time.Time
	Handle          interface{}
}

// Registry is the session registry (C3).
type Registry struct {
	kv  *kv.Store
	log *logrus.Logger

	mu   sync.RWMutex
	live map[string]*LiveSession // randomSessionId -> live session
}

// New constructs a session registry over the given KV store.
func New(store *kv.Store, log *logrus.Logger) *Registry {
	return &Registry{
		kv:   store,
		log:  log,
		live: make(map[string]*LiveSession),
	}
}

// CustomSessionID derives the stable logical id from a normalized
// summonerName, per spec §3's "normalized name with a fixed prefix".
func CustomSessionID(normalizedSummonerName string) string {
	return "player_" + normalizedSummonerName
}

// RegisterSession implements the duplicate-session takeover algorithm of
// spec §4.1: atomic CAS of the player lock, then zombie-check the prior
// holder against the local live-session table before accepting or
// rejecting the new connection.
func (r *Registry) RegisterSession(ctx context.Context, randomSessionID, summonerName, remoteAddr, userAgent string) (RegisterResult, error) {
	name := identity.Normalize(summonerName)
	lockKey := playerLock + name
	custom := CustomSessionID(name)

	ok, err := r.kv.SetNX(ctx, lockKey, randomSessionID, lockTTL)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if ok {
		r.bind(randomSessionID, custom, name, remoteAddr, userAgent)
		return RegisterResult{Outcome: Accepted, HeldBy: randomSessionID, CustomSession: custom}, nil
	}

	holder, present, err := r.kv.Get(ctx, lockKey)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if !present {
		// Lock expired between the failed SetNX and this read; retry once.
		return r.RegisterSession(ctx, randomSessionID, summonerName, remoteAddr, userAgent)
	}

	if r.isLive(holder) {
		return RegisterResult{Outcome: Duplicate, HeldBy: holder, CustomSession: custom}, nil
	}

	// Holder is a zombie from a crashed backend instance; force-release and
	// retry exactly once per spec §4.1.
	if err := r.ForceReleasePlayerLock(ctx, name); err != nil {
		return RegisterResult{}, err
	}
	ok, err = r.kv.SetNX(ctx, lockKey, randomSessionID, lockTTL)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if !ok {
		current, _, _ := r.kv.Get(ctx, lockKey)
		return RegisterResult{Outcome: Duplicate, HeldBy: current, CustomSession: custom}, nil
	}
	r.bind(randomSessionID, custom, name, remoteAddr, userAgent)
	return RegisterResult{Outcome: Accepted, HeldBy: randomSessionID, CustomSession: custom}, nil
}

func (r *Registry) bind(randomSessionID, customSessionID, summonerName, remoteAddr, userAgent string) {
	r.mu.Lock()
	r.live[randomSessionID] = &LiveSession{
		RandomSessionID: randomSessionID,
		CustomSessionID: customSessionID,
		SummonerName:    summonerName,
		RemoteAddr:      remoteAddr,
		UserAgent:       userAgent,
		LastActivity:    time.Now(),
	}
	r.mu.Unlock()
}

func (r *Registry) isLive(randomSessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.live[randomSessionID]
	return ok
}

// SetHandle attaches the gateway's opaque connection handle to a session
// that is already in the live table; for any other session it does nothing.
func (r *Registry) SetHandle(randomSessionID string, handle interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.live[randomSessionID]; ok {
		s.Handle = handle
	}
}

// Handle returns the opaque connection handle for a live session, if any.
func (r *Registry) Handle(randomSessionID string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.live[randomSessionID]
	if !ok {
		return nil, false
	}
	return s.Handle, true
}

// AcquirePlayerLock attempts (or re-confirms) the exclusion lock for name,
// returning the current holder's session id.
func (r *Registry) AcquirePlayerLock(ctx context.Context, summonerName, randomSessionID string) (string, error) {
	name := identity.Normalize(summonerName)
	lockKey := playerLock + name

	ok, err := r.kv.SetNX(ctx, lockKey, randomSessionID, lockTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if ok {
		return randomSessionID, nil
	}
	holder, present, err := r.kv.Get(ctx, lockKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if !present {
		return "", apperrors.ErrNotFound
	}
	return holder, nil
}

// ForceReleasePlayerLock removes the exclusion lock unconditionally. Spec
// §4.1 restricts callers to the zombie-cleanup case; enforcing that is the
// caller's responsibility (RegisterSession only calls it after confirming
// the holder is absent locally).
func (r *Registry) ForceReleasePlayerLock(ctx context.Context, summonerName string) error {
	name := identity.Normalize(summonerName)
	if err := r.kv.Del(ctx, playerLock+name); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return nil
}

// BindCustomToRandom registers the stable-id mapping in the KV store so any
// backend instance can resolve it, not just the one holding the socket.
func (r *Registry) BindCustomToRandom(ctx context.Context, customSessionID, randomSessionID string) error {
	if err := r.kv.Set(ctx, customPfx+customSessionID, randomSessionID, lockTTL); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if err := r.kv.Set(ctx, randomPfx+customSessionID, randomSessionID, lockTTL); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return nil
}

// GetRandomByCustom resolves a stable customSessionId to its current
// randomSessionId, if one is live.
func (r *Registry) GetRandomByCustom(ctx context.Context, customSessionID string) (string, bool, error) {
	v, ok, err := r.kv.Get(ctx, customPfx+customSessionID)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return v, ok, nil
}

// GetCustomByRandom resolves a randomSessionId back to its stable
// customSessionId via the in-process live table.
func (r *Registry) GetCustomByRandom(randomSessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.live[randomSessionID]
	if !ok {
		return "", false
	}
	return s.CustomSessionID, true
}

// GetSessionBySummoner resolves a normalized summonerName to its current
// live randomSessionId.
func (r *Registry) GetSessionBySummoner(ctx context.Context, summonerName string) (string, bool, error) {
	name := identity.Normalize(summonerName)
	v, ok, err := r.kv.Get(ctx, randomPfx+CustomSessionID(name))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return v, ok, nil
}

// GetSummonerBySession resolves a randomSessionId to its identified
// summonerName via the in-process live table. Used by the router's
// anti-spoofing precondition.
func (r *Registry) GetSummonerBySession(randomSessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.live[randomSessionID]
	if !ok {
		return "", false
	}
	return s.SummonerName, true
}

// ListLive returns a snapshot of every currently-live session, used by the
// broadcaster's global fan-out fallback.
func (r *Registry) ListLive() []*LiveSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LiveSession, 0, len(r.live))
	for _, s := range r.live {
		out = append(out, s)
	}
	return out
}

// UpdateHeartbeat refreshes the lock TTL for the player this session holds,
// plus the in-process last-activity stamp.
func (r *Registry) UpdateHeartbeat(ctx context.Context, randomSessionID string) error {
	r.mu.Lock()
	s, ok := r.live[randomSessionID]
	if ok {
		s.LastActivity = time.Now()
	}
	r.mu.Unlock()
	if !ok {
		return apperrors.ErrNotFound
	}
	if err := r.kv.Expire(ctx, playerLock+identity.Normalize(s.SummonerName), lockTTL); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return nil
}

// RemoveSession tears down a session on disconnect, releasing any lock it
// holds and dropping its in-process entry.
func (r *Registry) RemoveSession(ctx context.Context, randomSessionID string) error {
	r.mu.Lock()
	s, ok := r.live[randomSessionID]
	delete(r.live, randomSessionID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	name := identity.Normalize(s.SummonerName)
	holder, present, err := r.kv.Get(ctx, playerLock+name)
	if err == nil && present && holder == randomSessionID {
		if err := r.kv.Del(ctx, playerLock+name); err != nil {
			r.log.WithError(err).WithField("summoner", name).Warn("failed to release player lock on disconnect")
		}
	}
	return nil
}
