// Package broadcaster implements the directed broadcaster (C7): delivering
// a typed event to a named set of players with at-least-once semantics,
// falling back to a global fan-out on mass failure. Grounded on two teacher
// patterns merged: internal/web/sse.go's SSEHub (per-client buffered
// delivery, drop-if-slow) for concurrent directed sends, and
// internal/push/push.go's SendToMultipleUsers success/failure accounting
// for the failure-ratio fallback rule.
package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/identity"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/outbox"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/session"

	"github.com/sirupsen/logrus"
)

const (
	overallDeadline    = 5 * time.Second
	fallbackRatio      = 0.30
)

// Sender delivers a raw frame to a specific session, under whatever
// per-session write mutex the transport requires. internal/gateway
// implements this.
type Sender interface {
	SendToSession(randomSessionID string, frame []byte) error
}

// Frame is the outbound envelope shape: type + data, personalized with a
// targetSummoner at the root per spec §4.5.
type Frame struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
	TargetSummoner string          `json:"targetSummoner,omitempty"`
}

// Broadcaster is the directed broadcaster (C7).
type Broadcaster struct {
	sessions *session.Registry
	outbox   *outbox.Outbox
	sender   Sender
	log      *logrus.Logger
}

// New constructs a broadcaster over the given session registry, outbox,
// and transport sender.
func New(sessions *session.Registry, ob *outbox.Outbox, sender Sender, log *logrus.Logger) *Broadcaster {
	return &Broadcaster{sessions: sessions, outbox: ob, sender: sender, log: log}
}

// Send delivers eventType/data to every summonerName in targets. Bots are
// silently skipped. On a per-target failure the event is enqueued to the
// outbox under that player's stable customSessionId. If the overall
// failure ratio reaches 30%, a global fan-out to every live session is
// additionally attempted as a resilience fallback.
func (b *Broadcaster) Send(ctx context.Context, targets []string, eventType string, data json.RawMessage, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, overallDeadline)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		attempts int
		failures int
		failed   []string
	)

	for _, raw := range targets {
		name := identity.Normalize(raw)
		if identity.IsBot(name) {
			continue
		}
		wg.Add(1)
		go func(summonerName string) {
			defer wg.Done()
			ok := b.sendToOne(ctx, summonerName, eventType, data, ttl)
			mu.Lock()
			attempts++
			if !ok {
				failures++
				failed = append(failed, summonerName)
			}
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	if attempts == 0 {
		return nil
	}
	if float64(failures)/float64(attempts) >= fallbackRatio {
		b.globalFanOut(ctx, failed, eventType, data)
	}
	return nil
}

// sendToOne resolves summonerName to a live session and delivers a
// personalized copy of the frame, enqueueing to the outbox on any failure.
func (b *Broadcaster) sendToOne(ctx context.Context, summonerName, eventType string, data json.RawMessage, ttl time.Duration) bool {
	customID := session.CustomSessionID(summonerName)

	randomID, ok, err := b.sessions.GetSessionBySummoner(ctx, summonerName)
	if err != nil || !ok {
		b.enqueue(ctx, customID, eventType, data, ttl)
		return false
	}

	actual, ok := b.sessions.GetSummonerBySession(randomID)
	if !ok || identity.Normalize(actual) != summonerName {
		// Session ownership mismatch: do not send, enqueue instead.
		b.enqueue(ctx, customID, eventType, data, ttl)
		return false
	}

	personalized, err := personalize(eventType, data, summonerName)
	if err != nil {
		b.log.WithError(err).Error("failed to personalize broadcast frame")
		b.enqueue(ctx, customID, eventType, data, ttl)
		return false
	}

	if err := b.sender.SendToSession(randomID, personalized); err != nil {
		b.enqueue(ctx, customID, eventType, data, ttl)
		return false
	}
	return true
}

func (b *Broadcaster) enqueue(ctx context.Context, customID, eventType string, data json.RawMessage, ttl time.Duration) {
	if err := b.outbox.QueueEvent(ctx, customID, eventType, data, ttl); err != nil {
		b.log.WithError(err).WithField("custom_session", customID).Error("failed to enqueue undelivered event")
	}
}

// globalFanOut sends, for each undelivered target, one copy of the event
// personalized to that target to every currently live session — best-effort,
// matching spec §4.5's "do a global fan-out ... clients filter by
// targetSummoner so non-targets ignore it".
func (b *Broadcaster) globalFanOut(ctx context.Context, undelivered []string, eventType string, data json.RawMessage) {
	live := b.sessions.ListLive()
	for _, target := range undelivered {
		frame, err := personalize(eventType, data, target)
		if err != nil {
			continue
		}
		for _, s := range live {
			if err := b.sender.SendToSession(s.RandomSessionID, frame); err != nil {
				b.log.WithError(err).WithField("summoner", s.SummonerName).Debug("global fan-out send failed")
			}
		}
	}
}

// personalize clones data with a targetSummoner field injected, and wraps
// it in the envelope with targetSummoner at the root too.
func personalize(eventType string, data json.RawMessage, targetSummoner string) ([]byte, error) {
	var dataMap map[string]interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &dataMap); err != nil {
			return nil, fmt.Errorf("unmarshal broadcast data: %w", err)
		}
	} else {
		dataMap = make(map[string]interface{})
	}
	dataMap["targetSummoner"] = targetSummoner

	personalizedData, err := json.Marshal(dataMap)
	if err != nil {
		return nil, fmt.Errorf("marshal personalized data: %w", err)
	}

	frame := Frame{Type: eventType, Data: personalizedData, TargetSummoner: targetSummoner}
	return json.Marshal(frame)
}
