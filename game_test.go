package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func newTestGame(tracks []Track) *QuizGame {
	ctx, cancel := context.WithCancel(context.Background())
	return &QuizGame{
		guildID:     snowflake.ID(1),
		roundsTotal: 5,
		timeLimit:   quizTimeNormal,
		tracks:      tracks,
		ctx:         ctx,
		cancel:      cancel,
		usedIdx:     make(map[int]bool),
		scores:      make(map[snowflake.ID]*quizPlayer),
	}
}

func testTracks(n int) []Track {
	tracks := make([]Track, n)
	for i := range tracks {
		tracks[i] = Track{
			Title:  fmt.Sprintf("Track %d", i),
			Artist: fmt.Sprintf("Artist %d", i),
		}
	}
	return tracks
}

func TestScoreFor(t *testing.T) {
	tests := []struct {
		name      string
		timeLimit time.Duration
		elapsed   time.Duration
		want      int
	}{
		{"instant answer", 30 * time.Second, 0, 11},
		{"one second in", 30 * time.Second, 1 * time.Second, 10},
		{"halfway", 30 * time.Second, 15 * time.Second, 6},
		{"last second", 30 * time.Second, 29 * time.Second, 1},
		{"after the buzzer", 30 * time.Second, 31 * time.Second, 1},
		{"hard mode instant", 15 * time.Second, 0, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreFor(tt.timeLimit, tt.elapsed); got != tt.want {
				t.Errorf("scoreFor(%v, %v) = %d, want %d", tt.timeLimit, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestNextTrackExhaustsBeforeRepeating(t *testing.T) {
	g := newTestGame(testTracks(5))

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		track := g.nextTrack()
		if seen[track.Key()] {
			t.Fatalf("track %q repeated before pool was exhausted", track.Title)
		}
		seen[track.Key()] = true
	}

	// Pool is exhausted; the next pick must reset and succeed.
	track := g.nextTrack()
	if !seen[track.Key()] {
		t.Fatalf("expected a previously played track after reset, got %q", track.Title)
	}
	if len(g.usedIdx) != 1 {
		t.Errorf("usedIdx should contain exactly the post-reset pick, got %d entries", len(g.usedIdx))
	}
}

func TestBuildOptions(t *testing.T) {
	g := newTestGame(testTracks(10))
	track := g.tracks[3]

	options, correctIdx := g.buildOptions(track)

	if len(options) != quizOptionCount {
		t.Fatalf("got %d options, want %d", len(options), quizOptionCount)
	}
	if correctIdx < 0 || correctIdx >= len(options) {
		t.Fatalf("correctIdx %d out of range", correctIdx)
	}

	want := FormatTrackLabel(track.Title, track.Artist, 80)
	if options[correctIdx] != want {
		t.Errorf("options[%d] = %q, want %q", correctIdx, options[correctIdx], want)
	}

	seen := make(map[string]bool)
	for _, opt := range options {
		if seen[opt] {
			t.Errorf("duplicate option %q", opt)
		}
		seen[opt] = true
	}
}

func TestBuildOptionsDeduplicatesByIdentity(t *testing.T) {
	// Same song under slightly different casing must not appear twice.
	tracks := []Track{
		{Title: "Hey Jude", Artist: "The Beatles"},
		{Title: "hey jude", Artist: "the beatles"},
		{Title: "HEY JUDE", Artist: "The Beatles"},
		{Title: "Let It Be", Artist: "The Beatles"},
	}
	g := newTestGame(tracks)

	options, _ := g.buildOptions(tracks[0])

	if len(options) != quizOptionCount {
		t.Fatalf("got %d options, want %d", len(options), quizOptionCount)
	}
	heyJudes := 0
	for _, opt := range options {
		if strings.EqualFold(opt, FormatTrackLabel("Hey Jude", "The Beatles", 80)) {
			heyJudes++
		}
	}
	if heyJudes != 1 {
		t.Errorf("identity dedup failed: %d 'hey jude' options in %v", heyJudes, options)
	}
}

func TestBuildOptionsSyntheticBackfill(t *testing.T) {
	// Playlist too small for three real distractors.
	tracks := []Track{
		{Title: "Alpha", Artist: "A"},
		{Title: "Beta", Artist: "B"},
	}
	g := newTestGame(tracks)

	options, correctIdx := g.buildOptions(tracks[0])

	if len(options) != quizOptionCount {
		t.Fatalf("got %d options, want %d", len(options), quizOptionCount)
	}
	want := FormatTrackLabel("Alpha", "A", 80)
	if options[correctIdx] != want {
		t.Errorf("correct option is %q, want %q", options[correctIdx], want)
	}
}

func TestResolveRoundExactlyOnce(t *testing.T) {
	g := newTestGame(testTracks(5))
	round := &quizRound{
		number:    1,
		track:     g.tracks[0],
		timeLimit: 30 * time.Second,
		startedAt: time.Now(),
		skipVotes: make(map[snowflake.ID]bool),
		guessed:   make(map[snowflake.ID]bool),
		done:      make(chan struct{}),
	}
	g.round = round

	const racers = 20
	var wg sync.WaitGroup
	wins := make(chan snowflake.ID, racers)

	for i := 0; i < racers; i++ {
		userID := snowflake.ID(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.resolveRound(round, outcomeGuessed, userID) {
				wins <- userID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []snowflake.ID
	for id := range wins {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one resolver win, got %d", len(winners))
	}
	if round.winnerID != winners[0] {
		t.Errorf("round.winnerID = %d, want %d", round.winnerID, winners[0])
	}
	if len(g.scores) != 1 {
		t.Errorf("expected one scored player, got %d", len(g.scores))
	}

	select {
	case <-round.done:
	default:
		t.Error("round.done was not closed")
	}
}

func TestSubmitChoiceOneAttemptPerRound(t *testing.T) {
	g := newTestGame(testTracks(5))
	round := &quizRound{
		number:     1,
		track:      g.tracks[0],
		options:    []string{"a", "b", "c", "d"},
		correctIdx: 2,
		timeLimit:  30 * time.Second,
		startedAt:  time.Now(),
		skipVotes:  make(map[snowflake.ID]bool),
		guessed:    make(map[snowflake.ID]bool),
		done:       make(chan struct{}),
	}
	g.round = round
	g.phase = PhaseInProgress

	user := snowflake.ID(42)
	if reply := g.SubmitChoice(user, 1, 0); reply != MsgQuizWrongAnswer {
		t.Errorf("wrong answer reply = %q", reply)
	}
	// Second attempt is rejected even if it would have been right.
	if reply := g.SubmitChoice(user, 1, 2); reply != MsgQuizAlreadyGuessed {
		t.Errorf("second attempt reply = %q", reply)
	}
	if round.resolved {
		t.Error("round resolved by a locked-out player")
	}

	other := snowflake.ID(43)
	reply := g.SubmitChoice(other, 1, 2)
	if !strings.Contains(reply, "Correct") {
		t.Errorf("correct answer reply = %q", reply)
	}
	if !round.resolved || round.winnerID != other {
		t.Errorf("round not resolved for the right winner: resolved=%v winner=%d", round.resolved, round.winnerID)
	}
}

func TestSubmitChoiceIgnoresStaleRound(t *testing.T) {
	g := newTestGame(testTracks(5))
	g.round = &quizRound{
		number:     2,
		correctIdx: 0,
		skipVotes:  make(map[snowflake.ID]bool),
		guessed:    make(map[snowflake.ID]bool),
		done:       make(chan struct{}),
	}
	g.phase = PhaseInProgress

	// Button from round 1 arriving during round 2 must not count.
	if reply := g.SubmitChoice(snowflake.ID(42), 1, 0); reply != MsgQuizNoRound {
		t.Errorf("stale round reply = %q", reply)
	}
}

func TestMaskTitle(t *testing.T) {
	title := "Bohemian Rhapsody"

	prevRevealed := 0
	for level := 1; level <= quizMaxHints; level++ {
		masked := maskTitle(title, level)
		if len([]rune(masked)) != len([]rune(title)) {
			t.Fatalf("mask changed length: %q -> %q", title, masked)
		}
		revealed := 0
		for _, r := range masked {
			if r != '_' && r != ' ' {
				revealed++
			}
		}
		if revealed < prevRevealed {
			t.Errorf("level %d revealed fewer letters (%d) than level %d (%d)", level, revealed, level-1, prevRevealed)
		}
		prevRevealed = revealed
	}

	// Spaces always stay visible.
	if masked := maskTitle("a b", 1); !strings.Contains(masked, " ") {
		t.Errorf("space was masked: %q", masked)
	}
}

func TestQuizPhaseString(t *testing.T) {
	phases := map[QuizPhase]string{
		PhaseIdle:          "idle",
		PhaseStarting:      "starting",
		PhaseAwaitingAudio: "awaiting_audio",
		PhaseInProgress:    "in_progress",
		PhaseResolving:     "resolving",
		PhaseNextRound:     "next_round",
		PhaseEnded:         "ended",
	}
	for phase, want := range phases {
		if got := phase.String(); got != want {
			t.Errorf("QuizPhase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}
