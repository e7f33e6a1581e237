// Package matchmaking implements the queue and matchmaking component (C8):
// the waiting pool and 10-player cohort formation. Generalizes the
// teacher's handleJoinQueue/handleLeaveQueue (idempotency checks, queue
// slice mutation) from a flat FIFO cohort to the lane-aware, MMR-balanced,
// region-partitioned cohort search of spec §4.6. Queue mutation is owned
// by the top-level coordinator's single command loop (see
// internal/coordinator), so this package's methods assume single-writer
// access and do no locking of their own.
package matchmaking

import (
	"errors"
	"sort"
)

const cohortSize = 10

var lanes = []string{"top", "jungle", "mid", "bot", "support"}

// QueueEntry is a player waiting for a match, per spec §3.
type QueueEntry struct {
	PlayerID      string
	Region        string
	PrimaryLane   string
	SecondaryLane string
	MMR           int
	JoinedAt      int64 // unix nanos, for tie-break by earliest join time
}

// TeamAssignment is one formed team: 5 players slotted to lanes.
type TeamAssignment struct {
	Players [5]QueueEntry
	AvgMMR  int
}

// Proposal is the cohort handed off to match acceptance (C9) once the
// cohort-forming rule fires.
type Proposal struct {
	Team1 TeamAssignment
	Team2 TeamAssignment
}

// Pool holds the waiting queues, one per region.
type Pool struct {
	byRegion map[string][]QueueEntry
}

// NewPool constructs an empty matchmaking pool.
func NewPool() *Pool {
	return &Pool{byRegion: make(map[string][]QueueEntry)}
}

// JoinQueue is idempotent: it replaces any existing entry for the same
// player within the region.
func (p *Pool) JoinQueue(entry QueueEntry) {
	q := p.byRegion[entry.Region]
	for i, e := range q {
		if e.PlayerID == entry.PlayerID {
			q[i] = entry
			p.byRegion[entry.Region] = q
			return
		}
	}
	p.byRegion[entry.Region] = append(q, entry)
}

// LeaveQueue is idempotent; returns false if the player wasn't queued.
func (p *Pool) LeaveQueue(region, playerID string) bool {
	q := p.byRegion[region]
	for i, e := range q {
		if e.PlayerID == playerID {
			p.byRegion[region] = append(q[:i], q[i+1:]...)
			return true
		}
	}
	return false
}

// IsQueued reports whether playerID is currently queued in region.
func (p *Pool) IsQueued(region, playerID string) bool {
	for _, e := range p.byRegion[region] {
		if e.PlayerID == playerID {
			return true
		}
	}
	return false
}

// Snapshot returns the current queue for a region, oldest join first.
func (p *Pool) Snapshot(region string) []QueueEntry {
	q := p.byRegion[region]
	out := make([]QueueEntry, len(q))
	copy(out, q)
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt < out[j].JoinedAt })
	return out
}

// TryFormCohort attempts to select 10 compatible players from region and
// partition them into two balanced teams. Returns (nil, false) if no
// cohort can currently be formed.
func (p *Pool) TryFormCohort(region string) (*Proposal, bool) {
	q := p.Snapshot(region)
	if len(q) < cohortSize {
		return nil, false
	}

	cohort, ok := selectLaneFillingCohort(q)
	if !ok {
		return nil, false
	}

	team1, team2 := balanceTeams(cohort)
	p.removeAll(region, cohort)

	return &Proposal{Team1: team1, Team2: team2}, true
}

// removeAll drops every entry in cohort from region's queue.
func (p *Pool) removeAll(region string, cohort []QueueEntry) {
	inCohort := make(map[string]bool, len(cohort))
	for _, c := range cohort {
		inCohort[c.PlayerID] = true
	}
	q := p.byRegion[region]
	kept := q[:0]
	for _, e := range q {
		if !inCohort[e.PlayerID] {
			kept = append(kept, e)
		}
	}
	p.byRegion[region] = kept
}

// selectLaneFillingCohort fills the lanes one at a time, in the order of
// lanes, with two players each: first players whose primary lane it is, then
// players whose secondary lane it is, then autofill from the earliest
// remaining joiners, each pass in queue order. The fill is greedy: an earlier
// lane can take a player whose primary lane comes later, so the total number
// of autofilled players is not minimized.
func selectLaneFillingCohort(queue []QueueEntry) ([]QueueEntry, bool) {
	taken := make(map[string]bool)
	var cohort []QueueEntry

	for _, lane := range lanes {
		need := 2
		for _, e := range queue {
			if need == 0 {
				break
			}
			if taken[e.PlayerID] || e.PrimaryLane != lane {
				continue
			}
			cohort = append(cohort, e)
			taken[e.PlayerID] = true
			need--
		}
		for _, e := range queue {
			if need == 0 {
				break
			}
			if taken[e.PlayerID] || e.SecondaryLane != lane {
				continue
			}
			cohort = append(cohort, e)
			taken[e.PlayerID] = true
			need--
		}
		for _, e := range queue {
			if need == 0 {
				break
			}
			if taken[e.PlayerID] {
				continue
			}
			cohort = append(cohort, e)
			taken[e.PlayerID] = true
			need--
		}
		if need > 0 {
			return nil, false
		}
	}
	return cohort, true
}

// balanceTeams partitions a 10-player cohort into two 5-player teams
// minimizing |avgMmr(team1) - avgMmr(team2)| over a bounded search: the
// cohort is already grouped two-per-lane (pairs at indices [0,1], [2,3],
// ... for top/jungle/mid/bot/support), so the search only decides, per
// lane pair, which of the two players goes to team1 vs team2 — 2^5 = 32
// combinations, well within a bounded search.
func balanceTeams(cohort []QueueEntry) (TeamAssignment, TeamAssignment) {
	if len(cohort) != cohortSize {
		return TeamAssignment{}, TeamAssignment{}
	}

	best1, best2 := TeamAssignment{}, TeamAssignment{}
	bestDiff := -1

	for mask := 0; mask < 32; mask++ {
		var t1, t2 TeamAssignment
		for lane := 0; lane < 5; lane++ {
			a, b := cohort[lane*2], cohort[lane*2+1]
			if mask&(1<<uint(lane)) != 0 {
				a, b = b, a
			}
			t1.Players[lane] = a
			t2.Players[lane] = b
		}
		t1.AvgMMR = avgMMR(t1.Players[:])
		t2.AvgMMR = avgMMR(t2.Players[:])
		diff := t1.AvgMMR - t2.AvgMMR
		if diff < 0 {
			diff = -diff
		}
		if bestDiff == -1 || diff < bestDiff {
			bestDiff = diff
			best1, best2 = t1, t2
		}
	}
	return best1, best2
}

func avgMMR(players []QueueEntry) int {
	sum := 0
	for _, p := range players {
		sum += p.MMR
	}
	if len(players) == 0 {
		return 0
	}
	return sum / len(players)
}

// ErrNotQueued is returned by operations that require an existing entry.
var ErrNotQueued = errors.New("not in queue")
