// Package outbox implements the event outbox (C4): a per-player durable
// FIFO queue of undelivered directed events, keyed by the stable
// customSessionId so it survives reconnects. Backed by Redis lists
// (internal/kv), capped at a configurable max with drop-oldest overflow.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/kv"
)

const listPrefix = "pending:"

// Event-class TTLs, per spec §4.2.
const (
	TTLMatchFound = 5 * time.Minute
	TTLDraft      = 10 * time.Minute
	TTLInGame     = 1 * time.Hour
)

// PendingEvent is an outbound message for a player that has not yet been
// confirmed delivered.
type PendingEvent struct {
	CustomSessionID string          `json:"customSessionId"`
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload"`
	EnqueuedAt      time.Time       `json:"enqueuedAt"`
	TTL             time.Duration   `json:"ttl"`
	Attempts        int             `json:"attempts"`
}

func (e PendingEvent) expired() bool {
	if e.TTL <= 0 {
		return false
	}
	return time.Since(e.EnqueuedAt) > e.TTL
}

// Outbox is the event outbox (C4).
type Outbox struct {
	kv     *kv.Store
	maxCap int64
}

// New constructs an outbox with the given per-player cap (spec default 100).
func New(store *kv.Store, maxCap int) *Outbox {
	return &Outbox{kv: store, maxCap: int64(maxCap)}
}

// QueueEvent appends an event to customSessionId's bounded FIFO, dropping
// the oldest entry on overflow per spec §4.2.
func (o *Outbox) QueueEvent(ctx context.Context, customSessionID, eventType string, payload json.RawMessage, ttl time.Duration) error {
	ev := PendingEvent{
		CustomSessionID: customSessionID,
		Type:            eventType,
		Payload:         payload,
		EnqueuedAt:      time.Now(),
		TTL:             ttl,
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal pending event: %w", err)
	}
	key := listPrefix + customSessionID
	if err := o.kv.RPush(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	if err := o.kv.LTrimToCap(ctx, key, o.maxCap); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return nil
}

// GetPendingEvents returns a FIFO-ordered snapshot of customSessionId's
// queue, skipping any entries whose TTL has already elapsed.
func (o *Outbox) GetPendingEvents(ctx context.Context, customSessionID string) ([]PendingEvent, error) {
	raws, err := o.kv.LRange(ctx, listPrefix+customSessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	events := make([]PendingEvent, 0, len(raws))
	for _, raw := range raws {
		var ev PendingEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		if ev.expired() {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ClearPendingEvents drains customSessionId's queue after a successful send.
func (o *Outbox) ClearPendingEvents(ctx context.Context, customSessionID string) error {
	if err := o.kv.Del(ctx, listPrefix+customSessionID); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDownstreamUnavailable, err)
	}
	return nil
}
