package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ===========================
// Configuration
// ===========================

const (
	MsgConfigFailedToLoad         = "Failed to load config: %v"
	MsgConfigMissingToken         = "DISCORD_TOKEN is not set in .env file"
	MsgConfigMissingSpotifyCreds  = "SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET are not set in .env file"
	MsgConfigInvalidGuildID       = "invalid GUILD_ID: must be a valid Snowflake"
	MsgConfigInvalidPlaylistID    = "invalid DEFAULT_PLAYLIST_ID: %q"
)

type Config struct {
	Token               string
	GuildID             string
	DatabasePath        string
	SpotifyClientID     string
	SpotifyClientSecret string
	DefaultPlaylistID   string
	Silent              bool
}

var GlobalConfig *Config

// Validate ensures the configuration is valid and meets requirements.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}

	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" {
		return fmt.Errorf(MsgConfigMissingSpotifyCreds)
	}

	// Basic Snowflake validation for GuildID if provided
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf(MsgConfigInvalidGuildID)
	}

	if c.DefaultPlaylistID != "" && !isValidPlaylistID(c.DefaultPlaylistID) {
		return fmt.Errorf(MsgConfigInvalidPlaylistID, c.DefaultPlaylistID)
	}

	return nil
}

// isValidPlaylistID rejects malformed playlist identifiers immediately, no retry.
// Spotify playlist IDs are 22-char base62 strings; full URLs/URIs are accepted
// and reduced to the ID by the caller.
func isValidPlaylistID(id string) bool {
	id = ExtractPlaylistID(id)
	if len(id) != 22 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// ExtractPlaylistID reduces a playlist URL/URI to its bare ID.
func ExtractPlaylistID(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "playlist/"); idx != -1 {
		s = s[idx+len("playlist/"):]
	} else if idx := strings.Index(s, "playlist:"); idx != -1 {
		s = s[idx+len("playlist:"):]
	}
	if idx := strings.IndexByte(s, '?'); idx != -1 {
		s = s[:idx]
	}
	return s
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data.db"
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	cfg := &Config{
		Token:               os.Getenv("DISCORD_TOKEN"),
		GuildID:             os.Getenv("GUILD_ID"),
		DatabasePath:        fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000", dbPath),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		DefaultPlaylistID:   ExtractPlaylistID(os.Getenv("DEFAULT_PLAYLIST_ID")),
		Silent:              silent,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}
