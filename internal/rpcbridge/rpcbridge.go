// Package rpcbridge implements the gateway RPC bridge (C5): correlating
// outbound game-client requests sent over a player's gateway session with
// the inbound responses that eventually arrive, by request id. Pending
// requests are an in-process map of channels — non-serializable futures,
// per design note §9 — independent of any session's send order.
package rpcbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Sender delivers a raw frame to a specific session. internal/gateway
// implements this; rpcbridge depends only on the interface to avoid an
// import cycle with the transport layer.
type Sender interface {
	SendToSession(randomSessionID string, frame []byte) error
}

// Request is the outbound envelope sent to the client.
type Request struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Response is the inbound envelope the client replies with.
type Response struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type pendingState int

const (
	statePending pendingState = iota
	stateCompleted
	stateTimedOut
	stateFailed
)

type pendingCall struct {
	mu     sync.Mutex
	state  pendingState
	result chan Response
}

// Bridge is the gateway RPC bridge (C5).
type Bridge struct {
	sender Sender
	log    *logrus.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// New constructs an RPC bridge over sender, the transport used to deliver
// request envelopes to gateway sessions.
func New(sender Sender, log *logrus.Logger) *Bridge {
	return &Bridge{
		sender:  sender,
		log:     log,
		pending: make(map[string]*pendingCall),
	}
}

// CallGameClient sends a gameclient_request to targetSessionID and waits
// for the matching gameclient_response, or until timeout/ctx elapses.
func (b *Bridge) CallGameClient(ctx context.Context, targetSessionID, method, path string, body json.RawMessage, timeout time.Duration) (*Response, error) {
	id := uuid.NewString()
	req := Request{Type: "gameclient_request", ID: id, Method: method, Path: path, Body: body}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	call := &pendingCall{result: make(chan Response, 1)}
	b.mu.Lock()
	b.pending[id] = call
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.sender.SendToSession(targetSessionID, raw); err != nil {
		call.mu.Lock()
		call.state = stateFailed
		call.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTransportFailure, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-call.result:
		return &resp, nil
	case <-timer.C:
		call.mu.Lock()
		call.state = stateTimedOut
		call.mu.Unlock()
		return nil, apperrors.ErrTimeout
	case <-ctx.Done():
		call.mu.Lock()
		call.state = stateTimedOut
		call.mu.Unlock()
		return nil, ctx.Err()
	}
}

// RequestCriticalConfirm issues a confirm_identity_critical envelope to
// targetSessionID and waits for a matching confirmation, per spec §4.4's
// critical-action confirmation flow. Shares the gameclient call's pending-id
// bookkeeping since both are "send envelope, await same-id reply" RPCs.
func (b *Bridge) RequestCriticalConfirm(ctx context.Context, targetSessionID, reason string, timeout time.Duration) error {
	id := uuid.NewString()
	req := Request{Type: "confirm_identity_critical", ID: id, Path: reason}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal critical confirm request: %w", err)
	}

	call := &pendingCall{result: make(chan Response, 1)}
	b.mu.Lock()
	b.pending[id] = call
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.sender.SendToSession(targetSessionID, raw); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransportFailure, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-call.result:
		return nil
	case <-timer.C:
		return apperrors.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleResponse completes the pending call matching resp.ID, whether it
// was opened by CallGameClient or RequestCriticalConfirm — both share the
// same pending-id table since resolution only depends on the id, not the
// original request's type. A response for an unknown or already-terminal id
// is dropped with a warning, matching spec §4.3's "late response after
// timed-out is discarded" rule.
func (b *Bridge) HandleResponse(resp Response) {
	b.mu.Lock()
	call, ok := b.pending[resp.ID]
	b.mu.Unlock()
	if !ok {
		b.log.WithField("rpc_id", resp.ID).Warn("gameclient response for unknown or expired request id")
		return
	}

	call.mu.Lock()
	defer call.mu.Unlock()
	if call.state != statePending {
		b.log.WithField("rpc_id", resp.ID).Warn("late gameclient response after terminal state, discarding")
		return
	}
	call.state = stateCompleted
	call.result <- resp
}
