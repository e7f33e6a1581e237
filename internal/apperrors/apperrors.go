// Package apperrors defines the closed set of error kinds from the
// coordination core's error-handling taxonomy. Handlers classify failures
// with errors.Is against these sentinels instead of string matching.
package apperrors

import "errors"

var (
	// ErrAuthMismatch: a message's claimed summonerName didn't match the
	// session's registered identity. The router rejects silently.
	ErrAuthMismatch = errors.New("auth mismatch")

	// ErrDuplicateInstance: registerSession found a live holder for the name.
	ErrDuplicateInstance = errors.New("duplicate instance")

	// ErrNotInMatch: the claimed player isn't a participant of the match.
	ErrNotInMatch = errors.New("not in match")

	// ErrOwnershipLost: this backend's ownership TTL expired mid-operation.
	ErrOwnershipLost = errors.New("ownership lost")

	// ErrProtocolViolation: a draft action (or similar) broke an invariant.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTimeout: an RPC, confirmation, or step timer expired.
	ErrTimeout = errors.New("timeout")

	// ErrTransportFailure: a send over a gateway connection failed.
	ErrTransportFailure = errors.New("transport failure")

	// ErrDownstreamUnavailable: the KV store or persistent store is unreachable.
	ErrDownstreamUnavailable = errors.New("downstream unavailable")

	// ErrNotFound: a generic "no such record" outcome for store/session lookups.
	ErrNotFound = errors.New("not found")
)
