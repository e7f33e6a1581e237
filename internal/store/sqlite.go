package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			summoner_name TEXT PRIMARY KEY,
			puuid TEXT,
			region TEXT NOT NULL DEFAULT '',
			mmr INTEGER DEFAULT 1000,
			custom_lp INTEGER DEFAULT 0,
			wins INTEGER DEFAULT 0,
			losses INTEGER DEFAULT 0,
			peak_mmr INTEGER DEFAULT 1000,
			games_played INTEGER DEFAULT 0,
			win_streak INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			owner_backend_id TEXT,
			last_heartbeat TIMESTAMP,
			pick_ban_data_json TEXT DEFAULT '',
			winner_team INTEGER,
			linked_external_game_id TEXT,
			lp_changes_json TEXT DEFAULT '',
			total_lp INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			started_at TIMESTAMP,
			ended_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`,
		`CREATE TABLE IF NOT EXISTS match_players (
			match_id TEXT NOT NULL REFERENCES matches(id),
			summoner_name TEXT NOT NULL REFERENCES players(summoner_name),
			team INTEGER NOT NULL,
			lane TEXT NOT NULL DEFAULT '',
			accepted INTEGER DEFAULT 0,
			PRIMARY KEY (match_id, summoner_name)
		)`,
		`CREATE TABLE IF NOT EXISTS match_votes (
			match_id TEXT NOT NULL REFERENCES matches(id),
			summoner_name TEXT NOT NULL REFERENCES players(summoner_name),
			external_game_id TEXT NOT NULL,
			voted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (match_id, summoner_name)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Ping verifies the database connection, used by the admin /healthz
// endpoint (C13).
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetPlayer retrieves a player by normalized summonerName.
func (s *SQLiteStore) GetPlayer(ctx context.Context, summonerName string) (*Player, error) {
	var p Player
	err := s.db.QueryRowContext(ctx,
		`SELECT summoner_name, puuid, region, mmr, custom_lp, wins, losses,
		        peak_mmr, games_played, win_streak, created_at, updated_at
		 FROM players WHERE summoner_name = ?`, summonerName).Scan(
		&p.SummonerName, &p.PUUID, &p.Region, &p.MMR, &p.CustomLP,
		&p.Wins, &p.Losses, &p.PeakMMR, &p.GamesPlayed, &p.WinStreak,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPlayer creates or updates a player record.
func (s *SQLiteStore) UpsertPlayer(ctx context.Context, p *Player) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO players (summoner_name, puuid, region, mmr, custom_lp, wins, losses,
		                       peak_mmr, games_played, win_streak, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(summoner_name) DO UPDATE SET
		 	puuid = excluded.puuid,
		 	region = excluded.region,
		 	mmr = excluded.mmr,
		 	custom_lp = excluded.custom_lp,
		 	wins = excluded.wins,
		 	losses = excluded.losses,
		 	peak_mmr = excluded.peak_mmr,
		 	games_played = excluded.games_played,
		 	win_streak = excluded.win_streak,
		 	updated_at = excluded.updated_at`,
		p.SummonerName, p.PUUID, p.Region, p.MMR, p.CustomLP, p.Wins, p.Losses,
		p.PeakMMR, p.GamesPlayed, p.WinStreak, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// ListPlayers returns every known player. GetLeaderboard runs its own query
// and the admin surface does not call it.
func (s *SQLiteStore) ListPlayers(ctx context.Context) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT summoner_name, puuid, region, mmr, custom_lp, wins, losses,
		        peak_mmr, games_played, win_streak, created_at, updated_at
		 FROM players`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.SummonerName, &p.PUUID, &p.Region, &p.MMR, &p.CustomLP,
			&p.Wins, &p.Losses, &p.PeakMMR, &p.GamesPlayed, &p.WinStreak,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// CreateMatch creates a new match record.
func (s *SQLiteStore) CreateMatch(ctx context.Context, m *Match) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO matches (id, status, owner_backend_id, last_heartbeat, pick_ban_data_json,
		                       winner_team, linked_external_game_id, lp_changes_json, total_lp,
		                       created_at, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Status, m.OwnerBackendID, m.LastHeartbeat, m.PickBanDataJSON,
		m.WinnerTeam, m.LinkedExternalGameID, m.LPChangesJSON, m.TotalLP,
		m.CreatedAt, m.StartedAt, m.EndedAt,
	)
	return err
}

// UpdateMatch updates an existing match's mutable fields.
func (s *SQLiteStore) UpdateMatch(ctx context.Context, m *Match) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE matches SET status = ?, owner_backend_id = ?, last_heartbeat = ?,
		                     pick_ban_data_json = ?, winner_team = ?, linked_external_game_id = ?,
		                     lp_changes_json = ?, total_lp = ?, started_at = ?, ended_at = ?
		 WHERE id = ?`,
		m.Status, m.OwnerBackendID, m.LastHeartbeat, m.PickBanDataJSON, m.WinnerTeam,
		m.LinkedExternalGameID, m.LPChangesJSON, m.TotalLP, m.StartedAt, m.EndedAt, m.ID,
	)
	return err
}

// GetMatch retrieves a match by id.
func (s *SQLiteStore) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	var m Match
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, owner_backend_id, last_heartbeat, pick_ban_data_json,
		        winner_team, linked_external_game_id, lp_changes_json, total_lp,
		        created_at, started_at, ended_at
		 FROM matches WHERE id = ?`, matchID).Scan(
		&m.ID, &m.Status, &m.OwnerBackendID, &m.LastHeartbeat, &m.PickBanDataJSON,
		&m.WinnerTeam, &m.LinkedExternalGameID, &m.LPChangesJSON, &m.TotalLP,
		&m.CreatedAt, &m.StartedAt, &m.EndedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AddMatchPlayer adds a player to a match's roster.
func (s *SQLiteStore) AddMatchPlayer(ctx context.Context, mp *MatchPlayer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO match_players (match_id, summoner_name, team, lane, accepted)
		 VALUES (?, ?, ?, ?, ?)`,
		mp.MatchID, mp.SummonerName, mp.Team, mp.Lane, mp.Accepted,
	)
	return err
}

// GetMatchPlayers retrieves the roster for a match.
func (s *SQLiteStore) GetMatchPlayers(ctx context.Context, matchID string) ([]MatchPlayer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id, summoner_name, team, lane, accepted
		 FROM match_players WHERE match_id = ?`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []MatchPlayer
	for rows.Next() {
		var mp MatchPlayer
		if err := rows.Scan(&mp.MatchID, &mp.SummonerName, &mp.Team, &mp.Lane, &mp.Accepted); err != nil {
			return nil, err
		}
		players = append(players, mp)
	}
	return players, rows.Err()
}

// UpsertVote records or replaces a player's vote for a match, matching
// spec §3's "at most one vote per (matchId, playerId); changing a vote
// replaces in place" invariant via the primary key's ON CONFLICT clause.
func (s *SQLiteStore) UpsertVote(ctx context.Context, v *Vote) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO match_votes (match_id, summoner_name, external_game_id, voted_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(match_id, summoner_name) DO UPDATE SET
		 	external_game_id = excluded.external_game_id,
		 	voted_at = excluded.voted_at`,
		v.MatchID, v.SummonerName, v.ExternalGameID, v.VotedAt,
	)
	return err
}

// GetVotes returns every vote cast for a match.
func (s *SQLiteStore) GetVotes(ctx context.Context, matchID string) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id, summoner_name, external_game_id, voted_at
		 FROM match_votes WHERE match_id = ?`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []Vote
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.MatchID, &v.SummonerName, &v.ExternalGameID, &v.VotedAt); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// ListMatches returns the most recent matches, most recent first.
func (s *SQLiteStore) ListMatches(ctx context.Context, limit int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, owner_backend_id, last_heartbeat, pick_ban_data_json,
		        winner_team, linked_external_game_id, lp_changes_json, total_lp,
		        created_at, started_at, ended_at
		 FROM matches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Status, &m.OwnerBackendID, &m.LastHeartbeat,
			&m.PickBanDataJSON, &m.WinnerTeam, &m.LinkedExternalGameID, &m.LPChangesJSON,
			&m.TotalLP, &m.CreatedAt, &m.StartedAt, &m.EndedAt); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListMatchesWithPlayers returns recent matches joined with their rosters,
// for the history view.
func (s *SQLiteStore) ListMatchesWithPlayers(ctx context.Context, limit int) ([]MatchWithPlayers, error) {
	matches, err := s.ListMatches(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]MatchWithPlayers, 0, len(matches))
	for _, m := range matches {
		players, err := s.GetMatchPlayers(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		mwp := MatchWithPlayers{Match: m}
		for _, p := range players {
			info := MatchPlayerInfo{SummonerName: p.SummonerName, Team: p.Team, Lane: p.Lane}
			if p.Team == 1 {
				mwp.Team1 = append(mwp.Team1, info)
			} else {
				mwp.Team2 = append(mwp.Team2, info)
			}
		}
		out = append(out, mwp)
	}
	return out, nil
}

// GetLeaderboard aggregates player stats over an optional date window,
// generalizing the teacher's date-ranged leaderboard query. The window is
// applied to each player's updated_at, not to match timestamps; only
// players with at least one game are listed, highest MMR first.
func (s *SQLiteStore) GetLeaderboard(ctx context.Context, startDate, endDate *time.Time) ([]LeaderboardEntry, error) {
	query := `SELECT p.summoner_name, p.mmr, p.wins, p.losses, p.win_streak
	          FROM players p WHERE p.games_played > 0`
	var args []interface{}
	if startDate != nil {
		query += ` AND p.updated_at >= ?`
		args = append(args, *startDate)
	}
	if endDate != nil {
		query += ` AND p.updated_at <= ?`
		args = append(args, *endDate)
	}
	query += ` ORDER BY p.mmr DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.SummonerName, &e.MMR, &e.Wins, &e.Losses, &e.Streak); err != nil {
			return nil, err
		}
		e.Total = e.Wins + e.Losses
		if e.Total > 0 {
			e.WinRate = float64(e.Wins) / float64(e.Total) * 100
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
