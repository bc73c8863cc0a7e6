package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
)

// fakeVoiceConn satisfies voice.Conn for lifecycle tests. openErr controls
// whether Open succeeds; opens counts join attempts.
type fakeVoiceConn struct {
	mu      sync.Mutex
	openErr error
	opens   int
	closed  bool
}

func (c *fakeVoiceConn) Open(ctx context.Context, channelID snowflake.ID, selfMute, selfDeaf bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	return c.openErr
}

func (c *fakeVoiceConn) Close(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeVoiceConn) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *fakeVoiceConn) Gateway() voice.Gateway                { return nil }
func (c *fakeVoiceConn) UDP() voice.UDPConn                    { return nil }
func (c *fakeVoiceConn) ChannelID() *snowflake.ID              { return nil }
func (c *fakeVoiceConn) GuildID() snowflake.ID                 { return 0 }
func (c *fakeVoiceConn) UserIDBySSRC(ssrc uint32) snowflake.ID { return 0 }
func (c *fakeVoiceConn) SetSpeaking(ctx context.Context, flags voice.SpeakingFlags) error {
	return nil
}
func (c *fakeVoiceConn) SetOpusFrameProvider(handler voice.OpusFrameProvider)          {}
func (c *fakeVoiceConn) SetOpusFrameReceiver(handler voice.OpusFrameReceiver)          {}
func (c *fakeVoiceConn) SetEventHandlerFunc(eventHandlerFunc voice.EventHandlerFunc)   {}
func (c *fakeVoiceConn) HandleVoiceStateUpdate(update gateway.EventVoiceStateUpdate)   {}
func (c *fakeVoiceConn) HandleVoiceServerUpdate(update gateway.EventVoiceServerUpdate) {}

func newTestSession(conn voice.Conn, state ConnectionState) *VoiceSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &VoiceSession{
		GuildID:   snowflake.ID(10),
		ChannelID: snowflake.ID(100),
		cancelCtx: ctx,
		cancelFn:  cancel,
		Conn:      conn,
		hasConn:   conn != nil,
		state:     state,
	}
}

func waitForState(t *testing.T, sess *VoiceSession, want ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached state %s (still %s)", want, sess.State())
}

func TestConnectionStateString(t *testing.T) {
	states := map[ConnectionState]string{
		ConnIdle:         "idle",
		ConnConnecting:   "connecting",
		ConnSignalling:   "signalling",
		ConnReady:        "ready",
		ConnDisconnected: "disconnected",
		ConnDestroyed:    "destroyed",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestVoiceSystemPrepareReusesLiveSession(t *testing.T) {
	vs := &VoiceSystem{sessions: make(map[snowflake.ID]*VoiceSession)}
	guildID := snowflake.ID(10)

	first := vs.prepare(bot.Client{}, guildID, snowflake.ID(100))
	if first.State() != ConnIdle {
		t.Fatalf("fresh session state = %s", first.State())
	}

	// Same guild, different channel: the live session is reused and follows.
	second := vs.prepare(bot.Client{}, guildID, snowflake.ID(200))
	if second != first {
		t.Error("live session was not reused")
	}
	if second.ChannelID != snowflake.ID(200) {
		t.Errorf("session channel = %d, want 200", second.ChannelID)
	}
}

func TestVoiceSystemPrepareReplacesCancelledSession(t *testing.T) {
	vs := &VoiceSystem{sessions: make(map[snowflake.ID]*VoiceSession)}
	guildID := snowflake.ID(10)

	first := vs.prepare(bot.Client{}, guildID, snowflake.ID(100))
	first.cancelFn()

	second := vs.prepare(bot.Client{}, guildID, snowflake.ID(100))
	if second == first {
		t.Error("cancelled session should have been replaced")
	}
}

func TestVoiceSystemGetSession(t *testing.T) {
	vs := &VoiceSystem{sessions: make(map[snowflake.ID]*VoiceSession)}

	if vs.GetSession(snowflake.ID(1)) != nil {
		t.Error("expected nil for an unknown guild")
	}

	sess := vs.prepare(bot.Client{}, snowflake.ID(1), snowflake.ID(2))
	if vs.GetSession(snowflake.ID(1)) != sess {
		t.Error("GetSession returned a different session")
	}
}

func TestGraceReconnectRecoversWithinWindow(t *testing.T) {
	conn := &fakeVoiceConn{}
	sess := newTestSession(conn, ConnReady)

	sess.beginGraceReconnect()
	waitForState(t, sess, ConnReady)

	sess.mu.Lock()
	hasConn := sess.hasConn
	same := sess.Conn == voice.Conn(conn)
	sess.mu.Unlock()
	if !hasConn {
		t.Error("handle was nulled despite recovery")
	}
	if !same {
		t.Error("recovery replaced the connection handle")
	}
}

func TestGraceReconnectExpiryNullsHandle(t *testing.T) {
	origGrace, origProbe := reconnectGrace, reconnectProbe
	reconnectGrace, reconnectProbe = 50*time.Millisecond, 10*time.Millisecond
	defer func() { reconnectGrace, reconnectProbe = origGrace, origProbe }()

	conn := &fakeVoiceConn{openErr: errors.New("gateway closed")}
	sess := newTestSession(conn, ConnReady)

	sess.beginGraceReconnect()
	waitForState(t, sess, ConnDisconnected)

	sess.mu.Lock()
	hasConn := sess.hasConn
	sess.mu.Unlock()
	if hasConn {
		t.Error("handle should be nulled after the grace window expires")
	}
	if conn.openCount() == 0 {
		t.Error("expected at least one recovery probe")
	}
}

func TestEnsureConnectionReusesReadyHandle(t *testing.T) {
	vs := &VoiceSystem{sessions: make(map[snowflake.ID]*VoiceSession)}
	guildID, channelID := snowflake.ID(10), snowflake.ID(100)

	conn := &fakeVoiceConn{}
	sess := vs.prepare(bot.Client{}, guildID, channelID)
	sess.mu.Lock()
	sess.Conn = conn
	sess.hasConn = true
	sess.state = ConnReady
	sess.mu.Unlock()

	for range 2 {
		got, err := vs.EnsureConnection(context.Background(), bot.Client{}, guildID, channelID)
		if err != nil {
			t.Fatalf("EnsureConnection() error = %v", err)
		}
		if got != sess {
			t.Fatal("ready session was not reused")
		}
	}
	if conn.openCount() != 0 {
		t.Errorf("reuse triggered %d joins, want 0", conn.openCount())
	}
	sess.mu.Lock()
	same := sess.Conn == voice.Conn(conn)
	sess.mu.Unlock()
	if !same {
		t.Error("consecutive calls replaced the connection handle")
	}
}

func TestEnsureConnectionAwaitsInFlightRecovery(t *testing.T) {
	origProbe := awaitReadyProbe
	awaitReadyProbe = 5 * time.Millisecond
	defer func() { awaitReadyProbe = origProbe }()

	vs := &VoiceSystem{sessions: make(map[snowflake.ID]*VoiceSession)}
	guildID, channelID := snowflake.ID(10), snowflake.ID(100)

	conn := &fakeVoiceConn{}
	sess := vs.prepare(bot.Client{}, guildID, channelID)
	sess.mu.Lock()
	sess.Conn = conn
	sess.hasConn = true
	sess.state = ConnSignalling
	sess.mu.Unlock()

	go func() {
		time.Sleep(30 * time.Millisecond)
		sess.setState(ConnReady)
	}()

	got, err := vs.EnsureConnection(context.Background(), bot.Client{}, guildID, channelID)
	if err != nil {
		t.Fatalf("EnsureConnection() error = %v", err)
	}
	if got != sess {
		t.Fatal("recovering session was not reused")
	}
	if conn.openCount() != 0 {
		t.Errorf("waiting triggered %d joins, want 0", conn.openCount())
	}
}

func TestEnsureConnectionTimesOutAwaitingRecovery(t *testing.T) {
	origTimeout, origProbe := voiceReadyTimeout, awaitReadyProbe
	voiceReadyTimeout, awaitReadyProbe = 40*time.Millisecond, 5*time.Millisecond
	defer func() { voiceReadyTimeout, awaitReadyProbe = origTimeout, origProbe }()

	vs := &VoiceSystem{sessions: make(map[snowflake.ID]*VoiceSession)}
	guildID, channelID := snowflake.ID(10), snowflake.ID(100)

	sess := vs.prepare(bot.Client{}, guildID, channelID)
	sess.mu.Lock()
	sess.Conn = &fakeVoiceConn{}
	sess.hasConn = true
	sess.state = ConnSignalling
	sess.mu.Unlock()

	_, err := vs.EnsureConnection(context.Background(), bot.Client{}, guildID, channelID)
	if !errors.Is(err, ErrConnectionTimeout) {
		t.Fatalf("EnsureConnection() error = %v, want ErrConnectionTimeout", err)
	}
}

func TestAwaitReadyHandleLost(t *testing.T) {
	origProbe := awaitReadyProbe
	awaitReadyProbe = 5 * time.Millisecond
	defer func() { awaitReadyProbe = origProbe }()

	conn := &fakeVoiceConn{}
	sess := newTestSession(conn, ConnSignalling)

	go func() {
		time.Sleep(20 * time.Millisecond)
		sess.mu.Lock()
		sess.hasConn = false
		sess.state = ConnDisconnected
		sess.mu.Unlock()
	}()

	if err := sess.awaitReady(context.Background()); !errors.Is(err, errHandleLost) {
		t.Fatalf("awaitReady() error = %v, want errHandleLost", err)
	}
}
