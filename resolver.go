package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

// ===========================
// Constants & Variables
// ===========================

const AudioCacheDir = ".tracks"

const (
	// Cache bounds
	audioCacheCapacity = 50
	audioCacheTTL      = 30 * time.Minute
	audioCacheSweep    = 5 * time.Minute

	// Preview fetch (tiers 2 and 3)
	previewFetchTimeout = 10 * time.Second

	// Secondary provider (tier 4)
	secondaryRetries   = 2
	secondaryThreshold = int64(1024 * 1024) // buffered bytes before playback starts
)

var (
	// Download watchdogs for the secondary provider stream
	maxConnWait = 20 * time.Second
	maxStall    = 5 * time.Second
	maxTotal    = 60 * time.Second

	cachedJSArgs []string
	jsOnce       sync.Once
)

var ErrNoCandidates = errors.New("no stream candidates found")

// SourceTier names the fallback stage that produced a stream.
type SourceTier string

const (
	TierCache     SourceTier = "cache"
	TierPreview   SourceTier = "preview"
	TierSearch    SourceTier = "search"
	TierSecondary SourceTier = "secondary"
)

// ===========================
// Errors
// ===========================

// AllProvidersFailed reports exhaustion of every resolution tier,
// carrying the per-tier reasons for diagnostics.
type AllProvidersFailed struct {
	TierErrors map[SourceTier]error
}

func (e *AllProvidersFailed) Error() string {
	parts := make([]string, 0, len(e.TierErrors))
	for _, tier := range []SourceTier{TierPreview, TierSearch, TierSecondary} {
		if err, ok := e.TierErrors[tier]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", tier, err))
		}
	}
	return "all providers failed [" + strings.Join(parts, "; ") + "]"
}

// ===========================
// Stream Descriptor
// ===========================

// StreamDescriptor is a playable resolution result. FilePath points at the
// cached audio file; Reader is set when playback can begin while the
// download is still in flight.
type StreamDescriptor struct {
	Tier     SourceTier
	FilePath string
	Reader   io.Reader
	Cancel   context.CancelFunc // stops an in-flight secondary download
}

// ===========================
// Audio Cache
// ===========================

type AudioCacheEntry struct {
	Key        string
	Tier       SourceTier
	FilePath   string
	InsertedAt time.Time
}

// AudioCache is a bounded key → descriptor map. Insertion beyond capacity
// evicts the oldest-inserted entry; entries expire after a TTL regardless
// of eviction pressure.
type AudioCache struct {
	mu       sync.Mutex
	entries  map[string]*AudioCacheEntry
	order    []string // insertion order for FIFO eviction
	capacity int
	ttl      time.Duration
}

func NewAudioCache(capacity int, ttl time.Duration) *AudioCache {
	return &AudioCache{
		entries:  make(map[string]*AudioCacheEntry),
		capacity: capacity,
		ttl:      ttl,
	}
}

func (c *AudioCache) Get(key string) *AudioCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if time.Since(entry.InsertedAt) > c.ttl {
		os.Remove(entry.FilePath)
		c.remove(key)
		return nil
	}
	// A cached file can disappear underneath us (external cleanup)
	if _, err := os.Stat(entry.FilePath); err != nil {
		c.remove(key)
		return nil
	}
	return entry
}

func (c *AudioCache) Put(key string, tier SourceTier, filePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		// The key hashes to a stable filename, so a re-insert can carry
		// the very file we would be deleting
		if old.FilePath != filePath {
			os.Remove(old.FilePath)
		}
		c.remove(key)
	}

	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		if evicted := c.entries[c.order[0]]; evicted != nil {
			os.Remove(evicted.FilePath)
		}
		c.remove(c.order[0])
	}

	c.entries[key] = &AudioCacheEntry{
		Key:        key,
		Tier:       tier,
		FilePath:   filePath,
		InsertedAt: time.Now(),
	}
	c.order = append(c.order, key)
}

func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush drops every entry and removes the backing files.
func (c *AudioCache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	for _, entry := range c.entries {
		os.Remove(entry.FilePath)
	}
	c.entries = make(map[string]*AudioCacheEntry)
	c.order = nil
	return n
}

// remove expects c.mu held.
func (c *AudioCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *AudioCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.InsertedAt) > c.ttl {
			os.Remove(entry.FilePath)
			c.remove(key)
			removed++
		}
	}
	return removed
}

// ===========================
// Audio Resolver
// ===========================

var (
	ResolverManager *AudioResolver
	OnceResolver    sync.Once
)

// AudioResolver turns a Track into a playable stream via tiered fallback:
// cache, preview URL, metadata search, then the secondary provider.
type AudioResolver struct {
	spotify *SpotifySystem
	cache   *AudioCache
	http    *http.Client
}

func init() {
	// Daemons must be registered before the Ready event consumes the list
	OnClientReady(func(ctx context.Context, client bot.Client) {
		RegisterDaemon(LogResolver, func(ctx context.Context) (bool, func(), func()) {
			r := GetAudioResolver(GetSpotifySystem(GlobalConfig))
			return true, func() { r.sweepLoop(ctx) }, nil
		})
	})
}

func GetAudioResolver(spotify *SpotifySystem) *AudioResolver {
	OnceResolver.Do(func() {
		ResolverManager = &AudioResolver{
			spotify: spotify,
			cache:   NewAudioCache(audioCacheCapacity, audioCacheTTL),
			http:    &http.Client{Timeout: previewFetchTimeout},
		}
		_ = os.MkdirAll(AudioCacheDir, 0755)
	})
	return ResolverManager
}

func (r *AudioResolver) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(audioCacheSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.cache.sweep(); n > 0 {
				LogResolver("Cache sweep removed %d expired entries. (%d live)", n, r.cache.Len())
			}
		}
	}
}

// Resolve produces a playable stream descriptor for a track, or an
// AllProvidersFailed error naming every tier's failure reason.
func (r *AudioResolver) Resolve(ctx context.Context, track Track) (*StreamDescriptor, error) {
	key := track.Key()
	tierErrors := map[SourceTier]error{}

	// Tier 1: cache
	if entry := r.cache.Get(key); entry != nil {
		LogResolver("Cache hit for %q (tier=%s)", key, entry.Tier)
		_ = IncrementResolverStat(context.Background(), string(TierCache))
		return &StreamDescriptor{Tier: entry.Tier, FilePath: entry.FilePath}, nil
	}

	// Tier 2: direct preview URL
	if track.PreviewURL != "" {
		path, err := r.fetchPreview(ctx, key, track.PreviewURL)
		if err == nil {
			r.cache.Put(key, TierPreview, path)
			_ = IncrementResolverStat(context.Background(), string(TierPreview))
			return &StreamDescriptor{Tier: TierPreview, FilePath: path}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		LogResolver("Preview fetch failed for %q: %v", key, err)
		tierErrors[TierPreview] = err
	} else {
		tierErrors[TierPreview] = errors.New("no preview url on track")
	}

	// Tier 3: metadata search for another playable preview
	previewURL, err := r.spotify.SearchPlayablePreview(ctx, track.Title, track.Artist)
	if err == nil {
		path, ferr := r.fetchPreview(ctx, key, previewURL)
		if ferr == nil {
			r.cache.Put(key, TierSearch, path)
			_ = IncrementResolverStat(context.Background(), string(TierSearch))
			return &StreamDescriptor{Tier: TierSearch, FilePath: path}, nil
		}
		err = ferr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	LogResolver("Metadata search failed for %q: %v", key, err)
	tierErrors[TierSearch] = err

	// Tier 4: secondary provider stream
	desc, err := r.resolveSecondary(ctx, track)
	if err == nil {
		_ = IncrementResolverStat(context.Background(), string(TierSecondary))
		return desc, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	LogResolver("Secondary provider failed for %q: %v", key, err)
	tierErrors[TierSecondary] = err

	return nil, &AllProvidersFailed{TierErrors: tierErrors}
}

// FlushCache is the admin escape hatch for a poisoned cache.
func (r *AudioResolver) FlushCache() int {
	return r.cache.Flush()
}

// CacheStats reports hit-ratio inputs for observability.
func (r *AudioResolver) CacheStats(ctx context.Context) (int, map[string]int) {
	stats, err := GetResolverStats(ctx)
	if err != nil {
		stats = map[string]int{}
	}
	return r.cache.Len(), stats
}

func cacheFilename(key, ext string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(AudioCacheDir, hex.EncodeToString(hash[:8])+ext)
}

// fetchPreview downloads a short preview clip to the cache directory.
func (r *AudioResolver) fetchPreview(ctx context.Context, key, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, previewFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("preview returned status %d", resp.StatusCode)
	}

	filename := cacheFilename(key, ".preview")
	partFilename := filename + ".part"

	f, err := os.Create(partFilename)
	if err != nil {
		return "", err
	}

	written, err := io.Copy(f, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(partFilename)
		return "", err
	}
	if written == 0 {
		os.Remove(partFilename)
		return "", errors.New("preview body was empty")
	}
	if err := os.Rename(partFilename, filename); err != nil {
		os.Remove(partFilename)
		return "", err
	}

	LogResolver("Fetched preview: %s (%d bytes)", filename, written)
	return filename, nil
}

// ===========================
// Secondary Provider
// ===========================

type streamCandidate struct {
	URL      string
	Title    string
	Uploader string
	Duration time.Duration
}

// resolveSecondary searches for a full stream candidate and downloads it
// with retries, returning as soon as enough bytes are buffered to play.
func (r *AudioResolver) resolveSecondary(ctx context.Context, track Track) (*StreamDescriptor, error) {
	query := track.Title + " " + track.Artist

	candidates, err := searchStreamCandidates(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	target := time.Duration(track.DurationMs) * time.Millisecond
	best := selectBestCandidate(candidates, track.Title, track.Artist, target)
	LogResolver("Secondary candidate for %q: %s (%s)", query, best.Title, best.URL)

	var desc *StreamDescriptor
	policy := RetryPolicy{Attempts: secondaryRetries + 1, BaseDelay: time.Second, Multiplier: 2}
	err = Retry(ctx, policy,
		func(attempt int, err error, delay time.Duration) {
			LogResolver("Secondary stream failed (attempt %d/%d): %v. Retrying in %s...", attempt, secondaryRetries+1, err, delay)
		},
		func(int) error {
			var serr error
			desc, serr = r.streamSecondary(ctx, track.Key(), best.URL)
			return serr
		})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return desc, nil
}

// streamSecondary spawns the provider subprocess and tails its output file.
// Playback may begin once the byte threshold is crossed; the download keeps
// filling the file behind the reader.
func (r *AudioResolver) streamSecondary(parentCtx context.Context, key, url string) (*StreamDescriptor, error) {
	filename := cacheFilename(key, ".audio")
	partFilename := filename + ".part"

	ctx, cancel := context.WithCancel(parentCtx)

	downloadDone := make(chan struct{})
	writeSig := make(chan struct{}, 1)
	readySig := make(chan struct{})
	onceReady := sync.Once{}
	var downloadErr error

	cacheFile, err := os.Create(partFilename)
	if err != nil {
		cancel()
		return nil, err
	}

	var written int64
	sw := &TrackSignalWriter{
		w: cacheFile,
		onWrite: func(n int) {
			written += int64(n)
			if written >= secondaryThreshold {
				onceReady.Do(func() { close(readySig) })
			}
			select {
			case writeSig <- struct{}{}:
			default:
			}
		},
	}

	go func() {
		defer close(downloadDone)
		err := ytdlpStream(ctx, url, sw)
		cacheFile.Close()

		if err != nil {
			downloadErr = err
			os.Remove(partFilename)
			return
		}

		// Short tracks can finish below the threshold
		onceReady.Do(func() { close(readySig) })

		if err := os.Rename(partFilename, filename); err != nil {
			os.Remove(partFilename)
			return
		}
		LogResolver("Downloaded stream: %s (%d bytes)", filename, written)
		r.cache.Put(key, TierSecondary, filename)
	}()

	totalTimer := time.NewTimer(maxTotal)
	defer totalTimer.Stop()

	stallTimer := time.NewTimer(maxConnWait)
	defer stallTimer.Stop()

loop:
	for {
		select {
		case <-readySig:
			break loop
		case <-downloadDone:
			if downloadErr != nil {
				cancel()
				return nil, downloadErr
			}
			break loop
		case <-ctx.Done():
			cancel()
			<-downloadDone
			return nil, ctx.Err()
		case <-totalTimer.C:
			cancel()
			<-downloadDone
			return nil, errors.New("timeout: download too slow (max total time exceeded)")
		case <-stallTimer.C:
			cancel()
			<-downloadDone
			return nil, errors.New("timeout: download stalled or failed to start")
		case <-writeSig:
			if !stallTimer.Stop() {
				select {
				case <-stallTimer.C:
				default:
				}
			}
			stallTimer.Reset(maxStall)
		}
	}

	// The download may already have renamed .part to the final name
	readFile, err := os.Open(partFilename)
	if err != nil {
		readFile, err = os.Open(filename)
		if err != nil {
			cancel()
			<-downloadDone
			return nil, fmt.Errorf("failed to open cache file for tailing: %w", err)
		}
	}

	tr := &TailingReader{
		f:    readFile,
		done: downloadDone,
		ctx:  ctx,
		sig:  writeSig,
	}

	return &StreamDescriptor{
		Tier:     TierSecondary,
		FilePath: filename,
		Reader:   tr,
		Cancel:   cancel,
	}, nil
}

// ===========================
// Stream Plumbing
// ===========================

// TrackSignalWriter forwards writes and reports each write size.
type TrackSignalWriter struct {
	w       io.Writer
	onWrite func(n int)
}

func (s *TrackSignalWriter) Write(p []byte) (n int, err error) {
	n, err = s.w.Write(p)
	if n > 0 {
		s.onWrite(n)
	}
	return
}

// TailingReader reads a file that is still being written, blocking at EOF
// until more bytes arrive or the download finishes.
type TailingReader struct {
	mu   sync.Mutex
	f    *os.File
	done <-chan struct{}
	ctx  context.Context
	sig  chan struct{}
}

func (r *TailingReader) Read(p []byte) (int, error) {
	for {
		r.mu.Lock()
		f := r.f
		r.mu.Unlock()

		n, err := f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != io.EOF {
			return n, err
		}

		select {
		case <-r.done:
			r.mu.Lock()
			f2 := r.f
			r.mu.Unlock()
			n2, err2 := f2.Read(p)
			if n2 > 0 {
				return n2, nil
			}
			if err2 != nil && err2 != io.EOF {
				return n2, err2
			}
			return 0, io.EOF
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		case <-r.sig:
			continue
		}
	}
}

func (r *TailingReader) Close() error {
	return r.f.Close()
}

func (r *TailingReader) Seek(offset int64, whence int) (int64, error) {
	return r.f.Seek(offset, whence)
}

// ===========================
// Candidate Search
// ===========================

// searchStreamCandidates queries both music-specific and general search
// backends in parallel, preferring music results.
func searchStreamCandidates(ctx context.Context, query string) ([]streamCandidate, error) {
	searchCtx, cancel := context.WithTimeout(ctx, 2600*time.Millisecond)
	defer cancel()

	resMu := sync.Mutex{}
	var ytm, yt []streamCandidate
	seen := make(map[string]bool)
	wg := sync.WaitGroup{}
	wg.Add(2)

	go func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(query)
		r, _ := s.Next()
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			art := ""
			if len(v.Artists) > 0 {
				art = v.Artists[0].Name
			}
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, streamCandidate{
					URL:      "https://music.youtube.com/watch?v=" + v.VideoID,
					Title:    v.Title,
					Uploader: art,
					Duration: time.Duration(v.Duration) * time.Second,
				})
			}
			resMu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, _ := c.Search(searchCtx, query)
		for _, v := range r.Results {
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, streamCandidate{
					URL:   "https://www.youtube.com/watch?v=" + v.VideoID,
					Title: v.Title,
				})
			}
			resMu.Unlock()
		}
	}()

	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-time.After(2300 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	resMu.Lock()
	defer resMu.Unlock()
	candidates := append(append([]streamCandidate{}, ytm...), yt...)

	if len(candidates) > 0 {
		return candidates, nil
	}

	// Both fast backends came up empty; fall back to the provider's own search
	return ytdlpSearch(ctx, query, 5)
}

// selectBestCandidate scores candidates by duration proximity and
// title/artist overlap.
func selectBestCandidate(candidates []streamCandidate, title, artist string, targetDuration time.Duration) streamCandidate {
	best := candidates[0]
	maxScore := -100.0

	lowTitle := strings.ToLower(title)
	lowArtist := strings.ToLower(artist)

	for _, c := range candidates {
		score := 0.0

		// 1. Duration Match (Very strong signal)
		if targetDuration > 0 && c.Duration > 0 {
			diff := math.Abs(float64(targetDuration - c.Duration))
			if diff < 2.5*float64(time.Second) {
				score += 100
			} else if diff < 6*float64(time.Second) {
				score += 40
			}
		}

		// 2. Uploader Match
		lowUp := strings.ToLower(c.Uploader)
		if lowArtist != "" && lowUp != "" {
			if lowUp == lowArtist {
				score += 80
			} else if strings.Contains(lowUp, lowArtist) {
				score += 30
			}
		}

		// 3. Title Match
		lowCand := strings.ToLower(c.Title)
		if strings.Contains(lowCand, lowTitle) {
			score += 50
		}

		if score > maxScore {
			maxScore = score
			best = c
		}
	}
	return best
}

// ===========================
// yt-dlp
// ===========================

func newYtdlp() (*ytdlp.Command, func()) {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()

	if proxy := os.Getenv("YOUTUBE_PROXY"); proxy != "" {
		cmd.Proxy(proxy)
	}

	return cmd, func() {}
}

// buildYtdlpArgs returns common args for yt-dlp commands
func buildYtdlpArgs() []string {
	jsOnce.Do(func() {
		for _, rt := range []string{"node", "deno", "quickjs"} {
			if path, err := exec.LookPath(rt); err == nil {
				cachedJSArgs = append(cachedJSArgs, "--js-runtimes", rt+":"+path)
				break
			}
		}
	})

	args := append([]string(nil), cachedJSArgs...)
	args = append(args,
		"--no-playlist",
		"--no-check-certificates",
		"--no-warnings",
		"--extractor-args", "youtube:player_client=android,web",
		"--prefer-free-formats",
		"--socket-timeout", "30",
		"--retries", "20",
		"--fragment-retries", "20",
	)
	return args
}

func ytdlpSearch(ctx context.Context, q string, m int) ([]streamCandidate, error) {
	cmd, cleanup := newYtdlp()
	defer cleanup()

	args := buildYtdlpArgs()
	res, err := cmd.
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", m)).
		NoWarnings().
		IgnoreConfig().
		PreferFreeFormats().
		Run(ctx, append(args, "ytsearch"+fmt.Sprintf("%d", m)+":"+q)...)

	if err != nil {
		return nil, err
	}
	ls := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	rs := make([]streamCandidate, 0, len(ls))
	for _, l := range ls {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 {
			continue
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		rs = append(rs, streamCandidate{URL: ps[0], Title: ps[1], Uploader: ps[2], Duration: d})
	}
	return rs, nil
}

// ytdlpStream runs the provider subprocess, writing raw audio to out.
// Termination is graceful-then-forced on context cancellation.
func ytdlpStream(ctx context.Context, u string, out io.Writer) error {
	u = strings.Replace(u, "music.youtube.com", "www.youtube.com", 1)

	cmd, cleanup := newYtdlp()
	defer cleanup()

	proxy := os.Getenv("YOUTUBE_PROXY")

	args := buildYtdlpArgs()
	args = append(args, "--ignore-config")
	execCmd := cmd.
		Format("bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckCertificates().
		BuildCommand(ctx, append(args, u)...)

	execCmd.Stdout = out
	execCmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	if proxy != "" {
		execCmd.Env = append(execCmd.Env, "http_proxy="+proxy, "https_proxy="+proxy, "all_proxy="+proxy)
	}
	// SIGTERM first, SIGKILL if the process lingers past the grace period
	execCmd.Cancel = func() error {
		return execCmd.Process.Signal(syscall.SIGTERM)
	}
	execCmd.WaitDelay = 3 * time.Second

	var stderr bytes.Buffer
	execCmd.Stderr = &stderr

	if err := execCmd.Start(); err != nil {
		return err
	}

	if err := execCmd.Wait(); err != nil {
		msg := strings.ToLower(err.Error() + stderr.String())
		if strings.Contains(msg, "broken pipe") || strings.Contains(msg, "signal: killed") || strings.Contains(msg, "signal: terminated") {
			return nil
		}
		LogResolver("yt-dlp stream failed: %v, stderr: %s", err, Truncate(stderr.String(), 300))
		return err
	}

	return nil
}
