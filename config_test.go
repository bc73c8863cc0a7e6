package main

import (
	"testing"
)

const testPlaylistID = "37i9dQZF1DXcBWIGoYBM5M"

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare id", testPlaylistID, testPlaylistID},
		{"share url", "https://open.spotify.com/playlist/" + testPlaylistID, testPlaylistID},
		{"share url with query", "https://open.spotify.com/playlist/" + testPlaylistID + "?si=abc123", testPlaylistID},
		{"uri", "spotify:playlist:" + testPlaylistID, testPlaylistID},
		{"whitespace", "  " + testPlaylistID + "  ", testPlaylistID},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPlaylistID(tt.input); got != tt.want {
				t.Errorf("ExtractPlaylistID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsValidPlaylistID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid id", testPlaylistID, true},
		{"valid via url", "https://open.spotify.com/playlist/" + testPlaylistID, true},
		{"too short", "abc123", false},
		{"too long", testPlaylistID + "x", false},
		{"bad characters", "37i9dQZF1DXcBWIGoYBM5!", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidPlaylistID(tt.input); got != tt.want {
				t.Errorf("isValidPlaylistID(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		Token:               "token",
		SpotifyClientID:     "id",
		SpotifyClientSecret: "secret",
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"complete", func(c *Config) {}, false},
		{"missing token", func(c *Config) { c.Token = "" }, true},
		{"missing spotify secret", func(c *Config) { c.SpotifyClientSecret = "" }, true},
		{"bad guild id", func(c *Config) { c.GuildID = "123" }, true},
		{"good guild id", func(c *Config) { c.GuildID = "123456789012345678" }, false},
		{"bad default playlist", func(c *Config) { c.DefaultPlaylistID = "nope" }, true},
		{"good default playlist", func(c *Config) { c.DefaultPlaylistID = testPlaylistID }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
