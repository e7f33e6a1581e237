package coordinator

// Broadcast event-type discriminators, per spec §6's wire catalogue. The
// teacher emits through a subscriber-fanout Event interface
// (Coordinator.emit -> every subscriber channel); this service's delivery
// is directed per-player rather than pub/sub broadcast to admin viewers, so
// these constants are passed straight to broadcaster.Broadcaster.Send
// instead of wrapping them in a parallel Event type hierarchy.
const (
	EventQueueUpdate       = "queue_status"
	EventMatchFound        = "match_found"
	EventMatchAcceptUpdate = "match_acceptance_progress"
	EventMatchCancelled    = "match_cancelled"
	EventDraftStarted      = "draft_started"
	EventDraftUpdate       = "draft_updated"
	EventDraftComplete     = "draft_complete"
	EventRestoreActive     = "restore_active_match"
	EventMatchVoteProgress = "match_vote_progress"
	EventMatchLinked       = "match_linked"
)
