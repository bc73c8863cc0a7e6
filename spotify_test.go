package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestSpotify() *SpotifySystem {
	return &SpotifySystem{
		clientID:     "id",
		clientSecret: "secret",
		http:         &http.Client{Timeout: 5 * time.Second},
		limiter:      rate.NewLimiter(rate.Inf, 1),
	}
}

func TestTrackKey(t *testing.T) {
	tests := []struct {
		a, b Track
		same bool
	}{
		{Track{Title: "Hey Jude", Artist: "The Beatles"}, Track{Title: "hey jude", Artist: "the beatles"}, true},
		{Track{Title: " Hey Jude ", Artist: "The Beatles"}, Track{Title: "Hey Jude", Artist: "The Beatles"}, true},
		{Track{Title: "Hey Jude", Artist: "The Beatles"}, Track{Title: "Hey Jude", Artist: "Wilson Pickett"}, false},
	}

	for _, tt := range tests {
		if got := tt.a.Key() == tt.b.Key(); got != tt.same {
			t.Errorf("Key equality of %+v and %+v = %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}

func TestEnsureValidTokenSingleFlight(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		time.Sleep(50 * time.Millisecond) // hold concurrent callers in the waiting path
		fmt.Fprint(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	oldURL := spotifyTokenURL
	spotifyTokenURL = server.URL
	defer func() { spotifyTokenURL = oldURL }()

	s := newTestSpotify()

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = s.EnsureValidToken(context.Background())
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "tok-1" {
			t.Errorf("caller %d got token %q", i, tokens[i])
		}
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("token endpoint hit %d times, want 1 (single-flight)", n)
	}
}

func TestEnsureValidTokenReusesUnexpired(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	defer server.Close()

	oldURL := spotifyTokenURL
	spotifyTokenURL = server.URL
	defer func() { spotifyTokenURL = oldURL }()

	s := newTestSpotify()

	first, err := s.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("token changed between calls: %q vs %q", first, second)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("token endpoint hit %d times, want 1", n)
	}
}

func TestEnsureValidTokenRefreshesNearExpiry(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	defer server.Close()

	oldURL := spotifyTokenURL
	spotifyTokenURL = server.URL
	defer func() { spotifyTokenURL = oldURL }()

	s := newTestSpotify()
	s.accessToken = "stale"
	s.expiresAt = time.Now().Add(tokenSafetyMargin / 2) // inside the safety margin

	token, err := s.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token == "stale" {
		t.Error("token inside the safety margin should have been refreshed")
	}
}

func TestAPIGetRetriesOn429(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"name":"Test Playlist","tracks":{"total":12}}`)
	}))
	defer server.Close()

	oldBase := spotifyAPIBase
	spotifyAPIBase = server.URL
	defer func() { spotifyAPIBase = oldBase }()

	s := newTestSpotify()
	s.accessToken = "tok"
	s.expiresAt = time.Now().Add(time.Hour)

	var meta spotifyPlaylistMeta
	if err := s.apiGet(context.Background(), "/playlists/x", &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Name != "Test Playlist" || meta.Tracks.Total != 12 {
		t.Errorf("meta = %+v", meta)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("API hit %d times, want 2", n)
	}
}

func TestAPIGetReauthenticatesOn401(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"name":"ok","tracks":{"total":1}}`)
	}))
	defer apiServer.Close()

	oldToken, oldBase := spotifyTokenURL, spotifyAPIBase
	spotifyTokenURL = tokenServer.URL
	spotifyAPIBase = apiServer.URL
	defer func() { spotifyTokenURL, spotifyAPIBase = oldToken, oldBase }()

	s := newTestSpotify()
	s.accessToken = "revoked"
	s.expiresAt = time.Now().Add(time.Hour)

	var meta spotifyPlaylistMeta
	if err := s.apiGet(context.Background(), "/playlists/x", &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Name != "ok" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestAPIGetNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	oldBase := spotifyAPIBase
	spotifyAPIBase = server.URL
	defer func() { spotifyAPIBase = oldBase }()

	s := newTestSpotify()
	s.accessToken = "tok"
	s.expiresAt = time.Now().Add(time.Hour)

	var meta spotifyPlaylistMeta
	err := s.apiGet(context.Background(), "/playlists/x", &meta)
	if !errors.Is(err, ErrInvalidPlaylist) {
		t.Errorf("expected ErrInvalidPlaylist, got %v", err)
	}
}

func TestValidatePlaylistRejectsMalformedID(t *testing.T) {
	s := newTestSpotify()

	_, _, err := s.ValidatePlaylist(context.Background(), "not a playlist id")
	if !errors.Is(err, ErrInvalidPlaylist) {
		t.Errorf("expected ErrInvalidPlaylist, got %v", err)
	}
}

func TestMatchesTrack(t *testing.T) {
	tests := []struct {
		name   string
		item   spotifyTrack
		title  string
		artist string
		want   bool
	}{
		{
			name:  "title containment",
			item:  spotifyTrack{Name: "Hey Jude - Remastered 2015"},
			title: "Hey Jude", artist: "The Beatles",
			want: true,
		},
		{
			name:  "reverse containment",
			item:  spotifyTrack{Name: "Jude"},
			title: "Hey Jude", artist: "The Beatles",
			want: true,
		},
		{
			name:  "artist match with different title",
			item:  spotifyTrack{Name: "Something Else", Artists: []spotifyArtist{{Name: "the beatles"}}},
			title: "Hey Jude", artist: "The Beatles",
			want: true,
		},
		{
			name:  "no overlap",
			item:  spotifyTrack{Name: "Wonderwall", Artists: []spotifyArtist{{Name: "Oasis"}}},
			title: "Hey Jude", artist: "The Beatles",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesTrack(tt.item, tt.title, tt.artist); got != tt.want {
				t.Errorf("matchesTrack = %v, want %v", got, tt.want)
			}
		})
	}
}
