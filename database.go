package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

// ============================================================================
// Database
// ============================================================================

const (
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			host_id TEXT NOT NULL,
			playlist_id TEXT,
			rounds_played INTEGER DEFAULT 0,
			rounds_total INTEGER DEFAULT 0,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_scores (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			points INTEGER DEFAULT 0,
			correct INTEGER DEFAULT 0,
			games INTEGER DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS resolver_stats (
			source TEXT PRIMARY KEY,
			hits INTEGER DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_games_guild_id ON quiz_games(guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_scores_guild_points ON quiz_scores(guild_id, points DESC)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	LogDatabase("Database ready: %s", dataSourceName)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Game History ---

func RecordGameStart(ctx context.Context, guildID, channelID, hostID snowflake.ID, playlistID string, roundsTotal int) (int64, error) {
	res, err := DB.ExecContext(ctx, `
		INSERT INTO quiz_games (guild_id, channel_id, host_id, playlist_id, rounds_total)
		VALUES (?, ?, ?, ?, ?)
	`, guildID.String(), channelID.String(), hostID.String(), playlistID, roundsTotal)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func RecordGameEnd(ctx context.Context, gameID int64, roundsPlayed int) error {
	_, err := DB.ExecContext(ctx, `
		UPDATE quiz_games SET rounds_played = ?, ended_at = CURRENT_TIMESTAMP WHERE id = ?
	`, roundsPlayed, gameID)
	return err
}

// --- Scores ---

type PlayerStats struct {
	UserID  snowflake.ID
	Points  int
	Correct int
	Games   int
}

func AddPlayerResult(ctx context.Context, guildID, userID snowflake.ID, points int, correct int) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO quiz_scores (guild_id, user_id, points, correct, games) VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			points = points + excluded.points,
			correct = correct + excluded.correct,
			games = games + 1,
			updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), userID.String(), points, correct)
	return err
}

func GetTopPlayers(ctx context.Context, guildID snowflake.ID, limit int) ([]*PlayerStats, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT user_id, points, correct, games FROM quiz_scores
		WHERE guild_id = ? ORDER BY points DESC LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*PlayerStats
	for rows.Next() {
		var s PlayerStats
		var userID string
		if err := rows.Scan(&userID, &s.Points, &s.Correct, &s.Games); err != nil {
			return nil, err
		}
		if id, err := snowflake.Parse(userID); err == nil {
			s.UserID = id
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// ResetGuildScores wipes the leaderboard for one guild.
func ResetGuildScores(ctx context.Context, guildID snowflake.ID) (int64, error) {
	res, err := DB.ExecContext(ctx, "DELETE FROM quiz_scores WHERE guild_id = ?", guildID.String())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err == nil && n > 0 {
		LogDatabase("Cleared %d leaderboard rows for guild %s", n, guildID)
	}
	return n, err
}

func GetPlayerStats(ctx context.Context, guildID, userID snowflake.ID) (*PlayerStats, error) {
	var s PlayerStats
	s.UserID = userID
	err := DB.QueryRowContext(ctx, `
		SELECT points, correct, games FROM quiz_scores WHERE guild_id = ? AND user_id = ?
	`, guildID.String(), userID.String()).Scan(&s.Points, &s.Correct, &s.Games)
	if err == sql.ErrNoRows {
		return &s, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// --- Resolver Telemetry ---

// IncrementResolverStat counts which audio source ultimately served a round.
// Source values: "cache", "preview", "search", "secondary".
func IncrementResolverStat(ctx context.Context, source string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO resolver_stats (source, hits) VALUES (?, 1)
		ON CONFLICT(source) DO UPDATE SET hits = hits + 1, updated_at = CURRENT_TIMESTAMP
	`, source)
	return err
}

func GetResolverStats(ctx context.Context) (map[string]int, error) {
	rows, err := DB.QueryContext(ctx, "SELECT source, hits FROM resolver_stats")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var source string
		var hits int
		if err := rows.Scan(&source, &hits); err != nil {
			return nil, err
		}
		stats[source] = hits
	}
	return stats, rows.Err()
}
