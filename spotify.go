package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ===========================
// Constants & Variables
// ===========================

var (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyAPIBase  = "https://api.spotify.com/v1"
)

const (
	// Tokens are refreshed this long before they actually expire
	tokenSafetyMargin       = 60 * time.Second
	tokenMaxRefreshAttempts = 5
	tokenBackoffCeiling     = 30 * time.Second

	playlistPageSize   = 100
	playlistFetchLimit = 4 // concurrent page fetches
)

var (
	ErrProviderUnavailable = errors.New("metadata provider unavailable")
	ErrRateLimited         = errors.New("metadata provider rate limited")
	ErrInvalidPlaylist     = errors.New("playlist does not exist or is not public")
	ErrTokenRefresh        = errors.New("credential refresh failed")
	ErrNoPlayablePreview   = errors.New("no playable preview found")
)

const (
	MsgSpotifyTokenRefreshed  = "Access token refreshed. (expires in %ds)"
	MsgSpotifyTokenRetry      = "Token refresh failed (attempt %d/%d): %v. Retrying in %s..."
	MsgSpotifyRateLimited     = "Rate limited. Honoring Retry-After of %s..."
	MsgSpotifyPlaylistLoaded  = "Playlist %q loaded: %d tracks (%d after dedup, %d with previews)"
	MsgSpotifySearchLoosening = "Search %q returned nothing playable, loosening query..."
)

// ===========================
// Data Model
// ===========================

// Track is a playable song descriptor. Immutable once loaded.
type Track struct {
	Title       string
	Artist      string
	PreviewURL  string
	DurationMs  int
	Popularity  int
	AlbumArtURL string
}

// Key returns the normalized identity key used for dedup and caching.
func (t Track) Key() string {
	return strings.ToLower(strings.TrimSpace(t.Title)) + "|" + strings.ToLower(strings.TrimSpace(t.Artist))
}

// ===========================
// Spotify System
// ===========================

var (
	SpotifyManager *SpotifySystem
	OnceSpotify    sync.Once
)

// SpotifySystem is the metadata provider client. It owns the shared
// client-credentials token and serializes refreshes.
type SpotifySystem struct {
	clientID     string
	clientSecret string
	http         *http.Client
	limiter      *rate.Limiter

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	refreshing  chan struct{} // non-nil while a refresh is in flight
}

func GetSpotifySystem(cfg *Config) *SpotifySystem {
	OnceSpotify.Do(func() {
		SpotifyManager = &SpotifySystem{
			clientID:     cfg.SpotifyClientID,
			clientSecret: cfg.SpotifyClientSecret,
			http: &http.Client{
				Timeout: 30 * time.Second,
			},
			limiter: rate.NewLimiter(rate.Limit(10), 20),
		}
	})
	return SpotifyManager
}

// ===========================
// Token Manager
// ===========================

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// EnsureValidToken returns a token valid for at least the safety margin.
// Concurrent callers during a refresh wait on the in-flight attempt
// instead of issuing duplicate refreshes.
func (s *SpotifySystem) EnsureValidToken(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if s.accessToken != "" && time.Until(s.expiresAt) > tokenSafetyMargin {
			token := s.accessToken
			s.mu.Unlock()
			return token, nil
		}

		if s.refreshing != nil {
			// Another caller is refreshing. Wait for it and re-check.
			ch := s.refreshing
			s.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		ch := make(chan struct{})
		s.refreshing = ch
		s.mu.Unlock()

		token, expiresIn, err := s.refreshToken(ctx)

		s.mu.Lock()
		if err == nil {
			s.accessToken = token
			s.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
		}
		s.refreshing = nil
		close(ch)
		s.mu.Unlock()

		if err != nil {
			return "", err
		}
		return token, nil
	}
}

// invalidateToken drops the cached token so the next call refreshes.
func (s *SpotifySystem) invalidateToken() {
	s.mu.Lock()
	s.accessToken = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

func (s *SpotifySystem) refreshToken(ctx context.Context) (string, int, error) {
	var token string
	var expiresIn int

	policy := RetryPolicy{Attempts: tokenMaxRefreshAttempts, BaseDelay: time.Second, Multiplier: 2, MaxDelay: tokenBackoffCeiling}
	err := Retry(ctx, policy,
		func(attempt int, err error, delay time.Duration) {
			LogWarn(MsgSpotifyTokenRetry, attempt, tokenMaxRefreshAttempts, err, delay)
		},
		func(int) error {
			var err error
			token, expiresIn, err = s.requestToken(ctx)
			return err
		})
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("%w after %d attempts: %v", ErrTokenRefresh, tokenMaxRefreshAttempts, err)
	}

	LogSpotify(MsgSpotifyTokenRefreshed, expiresIn)
	return token, expiresIn, nil
}

func (s *SpotifySystem) requestToken(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spotifyTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, err
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned an empty token")
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}

// ===========================
// REST plumbing
// ===========================

// apiGet performs an authenticated GET against the Web API, honoring
// Retry-After on 429 and re-authenticating once on 401.
func (s *SpotifySystem) apiGet(ctx context.Context, path string, out any) error {
	reauthed := false
	for attempt := 0; attempt < 4; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		token, err := s.EnsureValidToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, spotifyAPIBase+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := s.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			err = json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case resp.StatusCode == http.StatusUnauthorized && !reauthed:
			resp.Body.Close()
			s.invalidateToken()
			reauthed = true
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := 2 * time.Second
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					retryAfter = time.Duration(secs) * time.Second
				}
			}
			resp.Body.Close()
			LogSpotify(MsgSpotifyRateLimited, retryAfter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfter):
			}
			continue

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrInvalidPlaylist

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return ErrRateLimited
}

// ===========================
// Playlist Catalog
// ===========================

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyAlbum struct {
	Images []spotifyImage `json:"images"`
}

type spotifyTrack struct {
	Name       string          `json:"name"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
	PreviewURL string          `json:"preview_url"`
	DurationMs int             `json:"duration_ms"`
	Popularity int             `json:"popularity"`
	IsLocal    bool            `json:"is_local"`
}

type spotifyPlaylistItem struct {
	Track *spotifyTrack `json:"track"`
}

type spotifyPlaylistPage struct {
	Items []spotifyPlaylistItem `json:"items"`
	Total int                   `json:"total"`
}

type spotifyPlaylistMeta struct {
	Name   string `json:"name"`
	Public *bool  `json:"public"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

// ValidatePlaylist checks existence and visibility before a session starts.
func (s *SpotifySystem) ValidatePlaylist(ctx context.Context, playlistID string) (string, int, error) {
	if !isValidPlaylistID(playlistID) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPlaylist, playlistID)
	}

	var meta spotifyPlaylistMeta
	if err := s.apiGet(ctx, "/playlists/"+playlistID+"?fields=name,public,tracks.total", &meta); err != nil {
		return "", 0, err
	}
	if meta.Public != nil && !*meta.Public {
		return "", 0, ErrInvalidPlaylist
	}
	return meta.Name, meta.Tracks.Total, nil
}

// FetchPlaylistTracks loads the full catalog for a playlist, fetching
// pages concurrently and deduplicating by identity key.
func (s *SpotifySystem) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	name, total, err := s.ValidatePlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	pageCount := (total + playlistPageSize - 1) / playlistPageSize
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: playlist is empty", ErrInvalidPlaylist)
	}

	pages := make([][]spotifyPlaylistItem, pageCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(playlistFetchLimit)

	for p := 0; p < pageCount; p++ {
		g.Go(func() error {
			offset := p * playlistPageSize
			var page spotifyPlaylistPage
			path := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", playlistID, playlistPageSize, offset)
			if err := s.apiGet(gctx, path, &page); err != nil {
				return err
			}
			pages[p] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var tracks []Track
	withPreview := 0
	raw := 0
	for _, items := range pages {
		for _, item := range items {
			raw++
			t := item.Track
			if t == nil || t.IsLocal || t.Name == "" || len(t.Artists) == 0 {
				continue
			}

			track := Track{
				Title:      t.Name,
				Artist:     t.Artists[0].Name,
				PreviewURL: t.PreviewURL,
				DurationMs: t.DurationMs,
				Popularity: t.Popularity,
			}
			if len(t.Album.Images) > 0 {
				track.AlbumArtURL = t.Album.Images[0].URL
			}

			if seen[track.Key()] {
				continue
			}
			seen[track.Key()] = true

			if track.PreviewURL != "" {
				withPreview++
			}
			tracks = append(tracks, track)
		}
	}

	LogSpotify(MsgSpotifyPlaylistLoaded, name, raw, len(tracks), withPreview)
	return tracks, nil
}

// ===========================
// Metadata Search
// ===========================

// SearchPlayablePreview looks for a preview URL by progressively loosening
// the query until a result matches the track's title or artist.
func (s *SpotifySystem) SearchPlayablePreview(ctx context.Context, title, artist string) (string, error) {
	queries := []string{
		fmt.Sprintf("track:%q artist:%q", title, artist),
		fmt.Sprintf("%q", title+" "+artist),
		title + " " + artist,
		title,
	}

	var lastErr error
	for i, q := range queries {
		var result spotifySearchResponse
		path := "/search?type=track&limit=5&q=" + url.QueryEscape(q)
		if err := s.apiGet(ctx, path, &result); err != nil {
			lastErr = err
			continue
		}

		// Prefer the most popular playable candidate
		items := result.Tracks.Items
		sort.SliceStable(items, func(a, b int) bool {
			return items[a].Popularity > items[b].Popularity
		})

		for _, item := range items {
			if item.PreviewURL == "" {
				continue
			}
			if matchesTrack(item, title, artist) {
				return item.PreviewURL, nil
			}
		}

		if i < len(queries)-1 {
			LogSpotify(MsgSpotifySearchLoosening, Truncate(q, 80))
		}
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrNoPlayablePreview
}

func matchesTrack(item spotifyTrack, title, artist string) bool {
	if strings.Contains(strings.ToLower(item.Name), strings.ToLower(title)) ||
		strings.Contains(strings.ToLower(title), strings.ToLower(item.Name)) {
		return true
	}
	for _, a := range item.Artists {
		if strings.EqualFold(a.Name, artist) {
			return true
		}
	}
	return false
}
