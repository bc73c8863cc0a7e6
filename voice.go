package main

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
)

func init() {
	RegisterVoiceStateUpdateHandler(func(event *events.GuildVoiceStateUpdate) {
		GetVoiceManager().onVoiceStateUpdate(event)
	})
}

// ===========================
// Constants & Variables
// ===========================

const voiceJoinAttempts = 5

var (
	// Connection watchdogs
	voiceReadyTimeout = 20 * time.Second
	reconnectGrace    = 15 * time.Second
	reconnectProbe    = 2 * time.Second
	awaitReadyProbe   = 250 * time.Millisecond
)

var ErrConnectionTimeout = errors.New("voice connection did not become ready in time")

// ConnectionState tracks the lifecycle of a session's voice handle.
// Owned exclusively by the voice system; other components only read it.
type ConnectionState int

const (
	ConnIdle ConnectionState = iota
	ConnConnecting
	ConnSignalling
	ConnReady
	ConnDisconnected
	ConnDestroyed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnSignalling:
		return "signalling"
	case ConnReady:
		return "ready"
	case ConnDisconnected:
		return "disconnected"
	case ConnDestroyed:
		return "destroyed"
	default:
		return "idle"
	}
}

var (
	VoiceManager *VoiceSystem
	OnceVoice    sync.Once
)

// ===========================
// Voice System
// ===========================

// VoiceSystem manages one persistent voice session per guild. Sessions
// survive round boundaries; a session's connection is only destroyed at
// game end or on an unrecoverable failure.
type VoiceSystem struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*VoiceSession
}

func GetVoiceManager() *VoiceSystem {
	OnceVoice.Do(func() {
		VoiceManager = &VoiceSystem{
			sessions: make(map[snowflake.ID]*VoiceSession),
		}
	})
	return VoiceManager
}

// VoiceSession owns the persistent connection handle for one guild.
type VoiceSession struct {
	GuildID   snowflake.ID
	client    bot.Client
	cancelCtx context.Context
	cancelFn  context.CancelFunc

	mu           sync.Mutex
	ChannelID    snowflake.ID
	Conn         voice.Conn
	hasConn      bool
	state        ConnectionState
	streamCancel context.CancelFunc
	streamDesc   *StreamDescriptor
	provider     *StreamProvider
	graceCancel  context.CancelFunc
	leaving      bool
}

func (s *VoiceSession) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (vs *VoiceSystem) GetSession(guildID snowflake.ID) *VoiceSession {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.sessions[guildID]
}

func (vs *VoiceSystem) prepare(client bot.Client, guildID, channelID snowflake.ID) *VoiceSession {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if sess, ok := vs.sessions[guildID]; ok {
		if sess.cancelCtx.Err() != nil {
			delete(vs.sessions, guildID)
		} else {
			sess.mu.Lock()
			sess.ChannelID = channelID
			sess.mu.Unlock()
			return sess
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &VoiceSession{
		GuildID:   guildID,
		ChannelID: channelID,
		client:    client,
		cancelCtx: ctx,
		cancelFn:  cancel,
		state:     ConnIdle,
	}
	vs.sessions[guildID] = sess
	return sess
}

// EnsureConnection returns a ready session for the channel. Idempotent:
// a live handle in Connecting, Signalling, or Ready state is reused; a
// Disconnected or Destroyed handle is torn down and rebuilt.
func (vs *VoiceSystem) EnsureConnection(ctx context.Context, client bot.Client, guildID, channelID snowflake.ID) (*VoiceSession, error) {
	sess := vs.prepare(client, guildID, channelID)

	sess.mu.Lock()
	switch sess.state {
	case ConnReady:
		if sess.hasConn {
			sess.mu.Unlock()
			return sess, nil
		}
	case ConnConnecting, ConnSignalling:
		// A join or grace recovery is already in flight on this handle;
		// wait for it instead of stacking a second join
		if sess.hasConn {
			sess.mu.Unlock()
			err := sess.awaitReady(ctx)
			if err == nil {
				return sess, nil
			}
			if errors.Is(err, ErrConnectionTimeout) {
				return nil, ErrConnectionTimeout
			}
			// Handle was nulled while waiting: rebuild below
			sess.mu.Lock()
		}
	case ConnDisconnected, ConnDestroyed:
		// Stale handle: close it and rebuild below
		if sess.hasConn {
			conn := sess.Conn
			sess.hasConn = false
			sess.mu.Unlock()
			conn.Close(ctx)
			sess.mu.Lock()
		}
	}
	sess.state = ConnConnecting
	sess.mu.Unlock()

	LogVoice("Joining channel %s in guild %s", channelID, guildID)

	conn := client.VoiceManager.CreateConn(guildID)

	joinCtx, cancel := context.WithTimeout(ctx, voiceReadyTimeout)
	defer cancel()

	policy := RetryPolicy{Attempts: voiceJoinAttempts, BaseDelay: time.Second, Multiplier: 2}
	err := Retry(joinCtx, policy,
		func(attempt int, err error, delay time.Duration) {
			LogVoice("Retrying voice connection in %v (Attempt %d/%d)", delay, attempt+1, voiceJoinAttempts)
		},
		func(int) error {
			return conn.Open(joinCtx, channelID, false, false)
		})
	if err != nil {
		LogVoice("Failed to connect to voice in guild %s: %v", guildID, err)
		conn.Close(ctx)
		sess.setState(ConnDisconnected)
		if joinCtx.Err() != nil {
			return nil, ErrConnectionTimeout
		}
		return nil, err
	}

	sess.mu.Lock()
	sess.Conn = conn
	sess.hasConn = true
	sess.ChannelID = channelID
	sess.state = ConnReady
	sess.mu.Unlock()

	return sess, nil
}

func (s *VoiceSession) setState(state ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

var errHandleLost = errors.New("voice handle lost while waiting for ready")

// awaitReady blocks until the handle reaches Ready, is nulled by an
// expired grace window, or the ready timeout elapses.
func (s *VoiceSession) awaitReady(ctx context.Context) error {
	LogDebug("Waiting for in-flight voice connection in guild %s", s.GuildID)

	waitCtx, cancel := context.WithTimeout(ctx, voiceReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(awaitReadyProbe)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		state, hasConn := s.state, s.hasConn
		s.mu.Unlock()

		if !hasConn || state == ConnDisconnected || state == ConnDestroyed {
			return errHandleLost
		}
		if state == ConnReady {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return ErrConnectionTimeout
		case <-ticker.C:
		}
	}
}

// ===========================
// Playback
// ===========================

// PlayStream starts streaming a resolved clip on the session's connection.
// Any previous clip is stopped first. Returns once frames are flowing
// toward the gateway; the clip keeps playing until StopAudio or the
// stream ends.
func (s *VoiceSession) PlayStream(desc *StreamDescriptor) error {
	s.mu.Lock()
	if !s.hasConn || s.state != ConnReady {
		s.mu.Unlock()
		return errors.New("no ready voice connection")
	}
	if s.streamCancel != nil {
		s.streamCancel()
	}
	if s.streamDesc != nil && s.streamDesc.Cancel != nil {
		s.streamDesc.Cancel()
	}

	p := NewStreamProvider(s.cancelCtx)
	s.provider = p
	ctx, cancel := context.WithCancel(s.cancelCtx)
	s.streamCancel = cancel
	s.streamDesc = desc
	p.SetContext(ctx)
	conn := s.Conn
	s.mu.Unlock()

	go func() {
		defer p.PushFrame(nil)
		t := NewAstiavTranscoder()
		defer t.Close()
		if err := t.OpenInput(desc.FilePath, desc.Reader); err != nil {
			LogVoice("Transcoder OpenInput failed: %v", err)
			return
		}
		if err := t.SetupDecoder(); err != nil {
			LogVoice("Transcoder SetupDecoder failed: %v", err)
			return
		}
		if err := t.SetupEncoder(); err != nil {
			LogVoice("Transcoder SetupEncoder failed: %v", err)
			return
		}

		if err := t.Transcode(ctx, p.PushFrame); err != nil && !errors.Is(err, context.Canceled) {
			LogVoice("Transcoder finished for %s: %v", desc.FilePath, err)
		}
		if played := time.Duration(t.GetTimestamp()) * time.Second / 48000; played > 0 {
			LogVoice("Playback finished for %s (%s of audio sent)", desc.FilePath, FormatDuration(played))
		}
	}()

	s.setOpusFrameProviderSafe(conn, p)
	s.setSpeakingSafe(conn, voice.SpeakingFlagMicrophone)
	return nil
}

// StopAudio halts the current clip and aborts any in-flight download.
// The connection itself stays open for the next round.
func (s *VoiceSession) StopAudio() {
	s.mu.Lock()
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
	if s.streamDesc != nil && s.streamDesc.Cancel != nil {
		s.streamDesc.Cancel()
	}
	s.streamDesc = nil
	s.provider = nil
	conn := s.Conn
	hasConn := s.hasConn
	s.mu.Unlock()

	if hasConn {
		s.setOpusFrameProviderSafe(conn, nil)
		s.setSpeakingSafe(conn, 0)
	}
}

// ===========================
// Teardown
// ===========================

// Leave destroys the session: stop audio, close the connection, forget
// the handle. Only callers ending a game or recovering from an
// unrecoverable error should use this.
func (vs *VoiceSystem) Leave(ctx context.Context, guildID snowflake.ID) {
	vs.mu.Lock()
	sess, ok := vs.sessions[guildID]
	if !ok {
		vs.mu.Unlock()
		return
	}
	delete(vs.sessions, guildID)
	vs.mu.Unlock()

	sess.mu.Lock()
	sess.leaving = true
	if sess.graceCancel != nil {
		sess.graceCancel()
	}
	sess.mu.Unlock()

	sess.StopAudio()
	sess.setState(ConnDestroyed)
	sess.cancelFn()

	sess.mu.Lock()
	conn := sess.Conn
	hasConn := sess.hasConn
	sess.hasConn = false
	sess.mu.Unlock()
	if hasConn {
		conn.Close(ctx)
	}
}

// Shutdown gracefully stops all voice sessions
func (vs *VoiceSystem) Shutdown(ctx context.Context) {
	vs.mu.Lock()
	ids := make([]snowflake.ID, 0, len(vs.sessions))
	for id := range vs.sessions {
		ids = append(ids, id)
	}
	vs.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(guildID snowflake.ID) {
			defer wg.Done()
			vs.Leave(ctx, guildID)
		}(id)
	}
	wg.Wait()
}

// ===========================
// Disconnect Recovery
// ===========================

func (vs *VoiceSystem) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	vs.mu.Lock()
	s, ok := vs.sessions[event.VoiceState.GuildID]
	vs.mu.Unlock()
	if !ok {
		return
	}

	if event.VoiceState.UserID == event.Client().ID() {
		vs.handleBotVoiceStateUpdate(event, s)
	}
}

func (vs *VoiceSystem) handleBotVoiceStateUpdate(event *events.GuildVoiceStateUpdate, s *VoiceSession) {
	if event.VoiceState.ChannelID == nil {
		s.mu.Lock()
		leaving := s.leaving
		s.mu.Unlock()
		if !leaving {
			LogVoice("Bot disconnected unexpectedly in guild %s", event.VoiceState.GuildID)
			s.beginGraceReconnect()
		}
		return
	}

	// Bot was moved to a different channel: follow it
	s.mu.Lock()
	if s.ChannelID != *event.VoiceState.ChannelID {
		LogVoice("Bot moved from %s to %s in guild %s", s.ChannelID, *event.VoiceState.ChannelID, event.VoiceState.GuildID)
		s.ChannelID = *event.VoiceState.ChannelID
	}
	s.mu.Unlock()
}

// beginGraceReconnect attempts a transparent re-entry within a short
// window. If the window elapses the handle is nulled so the next
// EnsureConnection call rebuilds from scratch.
func (s *VoiceSession) beginGraceReconnect() {
	s.mu.Lock()
	if s.graceCancel != nil {
		s.mu.Unlock()
		return // already recovering
	}
	s.state = ConnSignalling
	ctx, cancel := context.WithTimeout(s.cancelCtx, reconnectGrace)
	s.graceCancel = cancel
	channelID := s.ChannelID
	conn := s.Conn
	hasConn := s.hasConn
	s.mu.Unlock()

	safeGo(func() {
		defer func() {
			s.mu.Lock()
			if s.graceCancel != nil {
				s.graceCancel()
				s.graceCancel = nil
			}
			s.mu.Unlock()
		}()

		if hasConn {
			for {
				if err := conn.Open(ctx, channelID, false, false); err == nil {
					LogVoice("Voice connection recovered in guild %s", s.GuildID)
					s.setState(ConnReady)
					return
				}
				select {
				case <-ctx.Done():
					goto expired
				case <-time.After(reconnectProbe):
				}
			}
		}

	expired:
		LogVoice("Grace window elapsed in guild %s, handle nulled", s.GuildID)
		s.mu.Lock()
		s.hasConn = false
		s.state = ConnDisconnected
		s.mu.Unlock()
	})
}

// ===========================
// Gateway Helpers
// ===========================

func (s *VoiceSession) setOpusFrameProviderSafe(conn voice.Conn, provider voice.OpusFrameProvider) {
	if s.cancelCtx.Err() != nil {
		return
	}
	if reflect.ValueOf(conn).Kind() == reflect.Ptr && reflect.ValueOf(conn).IsNil() {
		return
	}

	for i := range 3 {
		if trySetOpusFrameProvider(conn, provider) {
			return
		}
		if i < 2 {
			select {
			case <-time.After(150 * time.Millisecond):
			case <-s.cancelCtx.Done():
				return
			}
		}
		if s.cancelCtx.Err() != nil {
			return
		}
	}
	LogVoice("Exhausted retries for SetOpusFrameProvider in guild %s", s.GuildID)
}

func trySetOpusFrameProvider(conn voice.Conn, provider voice.OpusFrameProvider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	conn.SetOpusFrameProvider(provider)
	return true
}

func (s *VoiceSession) setSpeakingSafe(conn voice.Conn, flags voice.SpeakingFlags) {
	if s.cancelCtx.Err() != nil {
		return
	}
	if reflect.ValueOf(conn).Kind() == reflect.Ptr && reflect.ValueOf(conn).IsNil() {
		return
	}

	for i := 0; i < 3; i++ {
		if trySetSpeaking(s.cancelCtx, conn, flags) {
			return
		}
		if i < 2 {
			select {
			case <-time.After(150 * time.Millisecond):
			case <-s.cancelCtx.Done():
				return
			}
		}
		if s.cancelCtx.Err() != nil {
			return
		}
	}
	LogVoice("Exhausted retries for SetSpeaking in guild %s", s.GuildID)
}

func trySetSpeaking(ctx context.Context, conn voice.Conn, flags voice.SpeakingFlags) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	conn.SetSpeaking(ctx, flags)
	return true
}

// HumanCountInChannel counts non-bot, non-deafened members currently in a
// voice channel. Used for skip-vote majorities.
func HumanCountInChannel(client bot.Client, guildID, channelID snowflake.ID) int {
	count := 0
	for state := range client.Caches.VoiceStates(guildID) {
		if state.ChannelID != nil && *state.ChannelID == channelID && state.UserID != client.ID() {
			if state.SelfDeaf {
				continue
			}
			if m, ok := client.Caches.Member(guildID, state.UserID); !ok || !m.User.Bot {
				count++
			}
		}
	}
	return count
}
