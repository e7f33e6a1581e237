package store

import (
	"context"
	"time"
)

// Player is a persistent identity, keyed by the normalized summonerName.
type Player struct {
	SummonerName string
	PUUID        string
	Region       string
	MMR          int
	CustomLP     int
	Wins         int
	Losses       int
	PeakMMR      int
	GamesPlayed  int
	WinStreak    int // positive = win streak, negative = loss streak
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Match is a 10-player cohort's persisted record.
type Match struct {
	ID                   string
	Status               string
	OwnerBackendID       string
	LastHeartbeat        time.Time
	PickBanDataJSON      string
	WinnerTeam           *int
	LinkedExternalGameID *string
	LPChangesJSON        string
	TotalLP              int
	CreatedAt            time.Time
	StartedAt            *time.Time
	EndedAt              *time.Time
}

// MatchPlayer is one player's participation in a match.
type MatchPlayer struct {
	MatchID      string
	SummonerName string
	Team         int // 1 or 2
	Lane         string
	Accepted     bool
}

// MatchPlayerInfo is one roster entry (name, team, lane) for display
// alongside a match; it carries no rating.
type MatchPlayerInfo struct {
	SummonerName string
	Team         int
	Lane         string
}

// Vote is a single player's claim about which external game-client match
// corresponds to a completed custom match.
type Vote struct {
	MatchID        string
	SummonerName   string
	ExternalGameID string
	VotedAt        time.Time
}

// LeaderboardEntry is a player's aggregate stats for display, mirroring the
// teacher's LeaderboardEntry shape (win rate, streak) extended with MMR.
type LeaderboardEntry struct {
	SummonerName string
	MMR          int
	Wins         int
	Losses       int
	Total        int
	WinRate      float64
	Streak       int
}

// MatchWithPlayers combines a match with its roster for history listing.
type MatchWithPlayers struct {
	Match
	Team1 []MatchPlayerInfo
	Team2 []MatchPlayerInfo
}

// Store defines the interface for data persistence (C2). A single SQLite
// implementation backs it, matching the teacher's one-implementation
// pattern (no repository-per-backend abstraction beyond this interface).
type Store interface {
	// Player operations
	GetPlayer(ctx context.Context, summonerName string) (*Player, error)
	UpsertPlayer(ctx context.Context, player *Player) error
	ListPlayers(ctx context.Context) ([]Player, error)

	// Match operations
	CreateMatch(ctx context.Context, match *Match) error
	UpdateMatch(ctx context.Context, match *Match) error
	GetMatch(ctx context.Context, matchID string) (*Match, error)

	// Match player operations
	AddMatchPlayer(ctx context.Context, mp *MatchPlayer) error
	GetMatchPlayers(ctx context.Context, matchID string) ([]MatchPlayer, error)

	// Voting
	UpsertVote(ctx context.Context, vote *Vote) error
	GetVotes(ctx context.Context, matchID string) ([]Vote, error)

	// Match history
	ListMatches(ctx context.Context, limit int) ([]Match, error)
	ListMatchesWithPlayers(ctx context.Context, limit int) ([]MatchWithPlayers, error)

	// Leaderboard
	GetLeaderboard(ctx context.Context, startDate, endDate *time.Time) ([]LeaderboardEntry, error)

	// Close the store
	Close() error

	// Ping verifies connectivity, used by the admin /healthz endpoint (C13).
	Ping(ctx context.Context) error
}
