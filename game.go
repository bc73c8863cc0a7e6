package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Command Registration
// ===========================

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "quiz",
		Description: "Music guessing game.",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "start",
				Description: "Start a music quiz in your voice channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "playlist",
						Description: "Spotify playlist link or ID (leave empty for the default playlist)",
						Required:    false,
					},
					discord.ApplicationCommandOptionInt{
						Name:        "rounds",
						Description: "Number of rounds (default 10)",
						Required:    false,
					},
					discord.ApplicationCommandOptionString{
						Name:        "difficulty",
						Description: "How much time you get per round",
						Required:    false,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Easy (45s)", Value: "easy"},
							{Name: "Normal (30s)", Value: "normal"},
							{Name: "Hard (15s)", Value: "hard"},
						},
					},
					discord.ApplicationCommandOptionString{
						Name:        "mode",
						Description: "Answer with buttons or by typing",
						Required:    false,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Multiple Choice", Value: "choices"},
							{Name: "Open Answers", Value: "open"},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop the running quiz",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Vote to skip the current track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "hint",
				Description: "Reveal a bit more of the track title",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stats",
				Description: "Show the server leaderboard",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		subCmd := data.SubCommandName
		if subCmd == nil {
			return
		}

		switch *subCmd {
		case "start":
			handleQuizStart(event, data)
		case "stop":
			handleQuizStop(event)
		case "skip":
			handleQuizSkip(event)
		case "hint":
			handleQuizHint(event)
		case "stats":
			handleQuizStats(event)
		}
	})

	adminPerm := discord.PermissionAdministrator
	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "quizadmin",
		Description:              "Quiz administration commands",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "reset-scores",
				Description: "Wipe this server's quiz leaderboard",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "flush-cache",
				Description: "Drop all cached audio files",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		subCmd := data.SubCommandName
		if subCmd == nil {
			return
		}

		switch *subCmd {
		case "reset-scores":
			handleQuizResetScores(event)
		case "flush-cache":
			handleQuizFlushCache(event)
		}
	})

	RegisterComponentHandler("quiz:", handleQuizComponent)
	RegisterMessageCreateHandler(handleQuizMessage)
}

// ===========================
// Constants & Types
// ===========================

const (
	quizDefaultRounds = 10
	quizMaxRounds     = 50
	quizOptionCount   = 4
	quizMinTracks     = quizOptionCount
	quizRoundDelay    = 5 * time.Second
	quizMaxHints      = 3
	quizSummaryArtMax = 8

	quizTimeEasy   = 45 * time.Second
	quizTimeNormal = 30 * time.Second
	quizTimeHard   = 15 * time.Second

	MsgQuizNotInVoice      = "❌ Join a voice channel first, then start the quiz."
	MsgQuizAlreadyRunning  = "❌ A quiz is already running in this server. Use `/quiz stop` to end it."
	MsgQuizNoGame          = "❌ No quiz is running in this server."
	MsgQuizNoPlaylist      = "❌ No playlist given and no default playlist is configured."
	MsgQuizPlaylistInvalid = "❌ Couldn't load that playlist: %v"
	MsgQuizTooFewTracks    = "❌ Playlist **%s** only has %d usable tracks, need at least %d."
	MsgQuizNotHost         = "❌ Only <@%d> can stop this quiz."
	MsgQuizNoRound         = "❌ No track is playing right now."
	MsgQuizHintLimit       = "❌ All hints for this round are used up."
	MsgQuizAlreadyGuessed  = "You already answered this round."
	MsgQuizWrongAnswer     = "Not it. Better luck next round!"
	MsgQuizSkipCounted     = "Skip vote counted (%d/%d)."
	MsgQuizVoiceLost       = "❌ Lost the voice connection, ending the quiz."
)

type QuizPhase int

const (
	PhaseIdle QuizPhase = iota
	PhaseStarting
	PhaseAwaitingAudio
	PhaseInProgress
	PhaseResolving
	PhaseNextRound
	PhaseEnded
)

func (p QuizPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseAwaitingAudio:
		return "awaiting_audio"
	case PhaseInProgress:
		return "in_progress"
	case PhaseResolving:
		return "resolving"
	case PhaseNextRound:
		return "next_round"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

type QuizMode int

const (
	ModeChoices QuizMode = iota
	ModeOpen
)

type roundOutcome int

const (
	outcomeNone roundOutcome = iota
	outcomeGuessed
	outcomeSkipped
	outcomeTimeout
)

type quizPlayer struct {
	points  int
	correct int
}

// quizRound holds the state of a single track round. All mutation goes
// through the owning game's mutex.
type quizRound struct {
	number     int
	track      Track
	options    []string
	correctIdx int
	startedAt  time.Time
	timeLimit  time.Duration
	resolved   bool
	outcome    roundOutcome
	winnerID   snowflake.ID
	winPoints  int
	timer      *time.Timer
	skipVotes  map[snowflake.ID]bool
	guessed    map[snowflake.ID]bool
	hintsUsed  int
	messageID  snowflake.ID // round announcement, edited once resolved
	done       chan struct{}
}

type QuizGame struct {
	guildID        snowflake.ID
	textChannelID  snowflake.ID
	voiceChannelID snowflake.ID
	hostID         snowflake.ID
	client         bot.Client
	mode           QuizMode
	timeLimit      time.Duration
	roundsTotal    int
	tracks         []Track
	playlistName   string
	gameID         int64

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	phase        QuizPhase
	usedIdx      map[int]bool
	round        *quizRound
	roundsPlayed int
	scores       map[snowflake.ID]*quizPlayer
	playedArt    []string // album covers of played tracks, for the summary
	stopped      bool
}

var (
	activeQuizGames   = make(map[snowflake.ID]*QuizGame)
	activeQuizGamesMu sync.RWMutex
)

func getQuizGame(guildID snowflake.ID) *QuizGame {
	activeQuizGamesMu.RLock()
	defer activeQuizGamesMu.RUnlock()
	return activeQuizGames[guildID]
}

// ===========================
// Slash Command Handlers
// ===========================

func handleQuizStart(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	defer func() {
		if r := recover(); r != nil {
			LogError("Panic in handleQuizStart: %v", r)
			fmt.Printf("%s\n", debug.Stack())
		}
	}()

	if event.GuildID() == nil {
		return
	}
	guildID := *event.GuildID()
	userID := event.User().ID

	voiceState, ok := event.Client().Caches.VoiceState(guildID, userID)
	if !ok || voiceState.ChannelID == nil {
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizNotInVoice).SetEphemeral(true).Build())
		return
	}
	voiceChannelID := *voiceState.ChannelID

	activeQuizGamesMu.Lock()
	if _, running := activeQuizGames[guildID]; running {
		activeQuizGamesMu.Unlock()
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizAlreadyRunning).SetEphemeral(true).Build())
		return
	}
	// Reserve the slot before the slow playlist fetch so two /quiz start
	// calls can't race past the check.
	activeQuizGames[guildID] = nil
	activeQuizGamesMu.Unlock()

	releaseSlot := func() {
		activeQuizGamesMu.Lock()
		delete(activeQuizGames, guildID)
		activeQuizGamesMu.Unlock()
	}

	playlistID := GlobalConfig.DefaultPlaylistID
	if raw, ok := data.OptString("playlist"); ok {
		playlistID = ExtractPlaylistID(raw)
	}
	if playlistID == "" {
		releaseSlot()
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizNoPlaylist).SetEphemeral(true).Build())
		return
	}

	rounds := quizDefaultRounds
	if n, ok := data.OptInt("rounds"); ok {
		rounds = Min(Max(n, 1), quizMaxRounds)
	}

	timeLimit := quizTimeNormal
	if diff, ok := data.OptString("difficulty"); ok {
		switch diff {
		case "easy":
			timeLimit = quizTimeEasy
		case "hard":
			timeLimit = quizTimeHard
		}
	}

	mode := ModeChoices
	if m, ok := data.OptString("mode"); ok && m == "open" {
		mode = ModeOpen
	}

	if err := event.DeferCreateMessage(false); err != nil {
		releaseSlot()
		return
	}

	client := *event.Client()
	textChannelID := event.Channel().ID()

	safeGo(func() {
		ctx, cancelFetch := context.WithTimeout(AppContext, 2*time.Minute)
		defer cancelFetch()

		spotify := GetSpotifySystem(GlobalConfig)
		name, _, err := spotify.ValidatePlaylist(ctx, playlistID)
		if err != nil {
			releaseSlot()
			quizEditInteraction(client, event.ApplicationCommandInteraction, fmt.Sprintf(MsgQuizPlaylistInvalid, err))
			return
		}

		tracks, err := spotify.FetchPlaylistTracks(ctx, playlistID)
		if err != nil {
			releaseSlot()
			quizEditInteraction(client, event.ApplicationCommandInteraction, fmt.Sprintf(MsgQuizPlaylistInvalid, err))
			return
		}
		if len(tracks) < quizMinTracks {
			releaseSlot()
			quizEditInteraction(client, event.ApplicationCommandInteraction, fmt.Sprintf(MsgQuizTooFewTracks, name, len(tracks), quizMinTracks))
			return
		}

		gameID, err := RecordGameStart(ctx, guildID, textChannelID, userID, playlistID, rounds)
		if err != nil {
			LogQuiz("Failed to record game start: %v", err)
		}

		gameCtx, cancel := context.WithCancel(AppContext)
		game := &QuizGame{
			guildID:        guildID,
			textChannelID:  textChannelID,
			voiceChannelID: voiceChannelID,
			hostID:         userID,
			client:         client,
			mode:           mode,
			timeLimit:      timeLimit,
			roundsTotal:    rounds,
			tracks:         tracks,
			playlistName:   name,
			gameID:         gameID,
			ctx:            gameCtx,
			cancel:         cancel,
			phase:          PhaseStarting,
			usedIdx:        make(map[int]bool),
			scores:         make(map[snowflake.ID]*quizPlayer),
		}

		activeQuizGamesMu.Lock()
		activeQuizGames[guildID] = game
		activeQuizGamesMu.Unlock()

		modeLabel := "Multiple Choice"
		if mode == ModeOpen {
			modeLabel = "Open Answers"
		}
		container := NewV2Container(
			NewTextDisplay(fmt.Sprintf("## 🎵 Music Quiz\nPlaylist: **%s** (%d tracks)\nRounds: **%d** · Time per round: **%s** · Mode: **%s**\nHosted by <@%d>",
				name, len(tracks), rounds, FormatDuration(timeLimit), modeLabel, userID)),
		)
		if err := EditInteractionV2(client, event.ApplicationCommandInteraction, container); err != nil {
			LogQuiz("Failed to announce quiz start: %v", err)
		}

		LogQuiz("Quiz started: guild=%d playlist=%s tracks=%d rounds=%d", guildID, playlistID, len(tracks), rounds)
		game.run()
	})
}

func handleQuizStop(event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		return
	}
	game := getQuizGame(*event.GuildID())
	if game == nil {
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizNoGame).SetEphemeral(true).Build())
		return
	}
	if event.User().ID != game.hostID {
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(fmt.Sprintf(MsgQuizNotHost, game.hostID)).SetEphemeral(true).Build())
		return
	}

	game.Stop()
	event.CreateMessage(discord.NewMessageCreateBuilder().SetContent("🛑 Quiz stopped.").Build())
}

func handleQuizSkip(event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		return
	}
	game := getQuizGame(*event.GuildID())
	if game == nil {
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizNoGame).SetEphemeral(true).Build())
		return
	}

	votes, needed, counted := game.VoteSkip(event.User().ID)
	if !counted {
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizNoRound).SetEphemeral(true).Build())
		return
	}
	event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(fmt.Sprintf(MsgQuizSkipCounted, votes, needed)).SetEphemeral(true).Build())
}

func handleQuizHint(event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		return
	}
	game := getQuizGame(*event.GuildID())
	if game == nil {
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizNoGame).SetEphemeral(true).Build())
		return
	}

	hint, err := game.NextHint()
	if err != nil {
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(err.Error()).SetEphemeral(true).Build())
		return
	}
	container := NewV2Container(NewTextDisplay(fmt.Sprintf("💡 `%s`", hint)))
	if err := RespondInteractionV2(*event.Client(), event.ApplicationCommandInteraction, container, false); err != nil {
		LogQuiz("Failed to send hint: %v", err)
	}
}

func handleQuizStats(event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		return
	}
	guildID := *event.GuildID()
	client := *event.Client()

	if err := event.DeferCreateMessage(false); err != nil {
		return
	}

	safeGo(func() {
		ctx, cancel := context.WithTimeout(AppContext, 15*time.Second)
		defer cancel()

		top, err := GetTopPlayers(ctx, guildID, 10)
		if err != nil {
			quizEditInteraction(client, event.ApplicationCommandInteraction, "❌ Couldn't load the leaderboard.")
			return
		}

		var sb strings.Builder
		sb.WriteString("## 🏆 Quiz Leaderboard\n")
		if len(top) == 0 {
			sb.WriteString("Nobody has scored yet. Start a quiz with `/quiz start`!")
		}
		medals := []string{"🥇", "🥈", "🥉"}
		for i, p := range top {
			rank := fmt.Sprintf("`#%d`", i+1)
			if i < len(medals) {
				rank = medals[i]
			}
			sb.WriteString(fmt.Sprintf("%s <@%d> · **%d** pts · %d correct · %d games\n", rank, p.UserID, p.Points, p.Correct, p.Games))
		}

		if mine, err := GetPlayerStats(ctx, guildID, event.User().ID); err == nil && mine.Games > 0 {
			sb.WriteString(fmt.Sprintf("\nYou: **%d** pts · %d correct · %d games\n", mine.Points, mine.Correct, mine.Games))
		}

		cached, hits := GetAudioResolver(GetSpotifySystem(GlobalConfig)).CacheStats(ctx)
		sb.WriteString(fmt.Sprintf("\n-# %d tracks cached · sources: %s", cached, formatResolverStats(hits)))

		container := NewV2Container(NewTextDisplay(sb.String()))
		if err := EditInteractionV2(client, event.ApplicationCommandInteraction, container); err != nil {
			LogQuiz("Failed to send stats: %v", err)
		}
	})
}

func handleQuizResetScores(event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		return
	}
	guildID := *event.GuildID()
	client := *event.Client()

	if err := event.DeferCreateMessage(true); err != nil {
		return
	}

	safeGo(func() {
		ctx, cancel := context.WithTimeout(AppContext, 15*time.Second)
		defer cancel()

		removed, err := ResetGuildScores(ctx, guildID)
		if err != nil {
			LogQuiz("Failed to reset scores for guild %d: %v", guildID, err)
			quizEditInteraction(client, event.ApplicationCommandInteraction, "❌ Couldn't reset the leaderboard.")
			return
		}
		quizEditInteraction(client, event.ApplicationCommandInteraction, fmt.Sprintf("🧹 Leaderboard wiped. Removed %d player entries.", removed))
	})
}

func handleQuizFlushCache(event *events.ApplicationCommandInteractionCreate) {
	removed := GetAudioResolver(GetSpotifySystem(GlobalConfig)).FlushCache()
	event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf("🗑️ Flushed %d cached audio files.", removed)).
		SetEphemeral(true).
		Build())
}

func formatResolverStats(hits map[string]int) string {
	if len(hits) == 0 {
		return "none yet"
	}
	keys := make([]string, 0, len(hits))
	for k := range hits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, hits[k]))
	}
	return strings.Join(parts, " · ")
}

func quizEditInteraction(client bot.Client, interaction discord.ApplicationCommandInteraction, content string) {
	_, err := client.Rest.UpdateInteractionResponse(interaction.ApplicationID(), interaction.Token(),
		discord.NewMessageUpdateBuilder().SetContent(content).Build())
	if err != nil {
		LogQuiz("Failed to edit interaction response: %v", err)
	}
}

// ===========================
// Component & Message Handlers
// ===========================

// Custom IDs: quiz:answer:<round>:<optionIdx> and quiz:skip:<round>.
func handleQuizComponent(event *events.ComponentInteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			LogError("Panic in handleQuizComponent: %v", r)
			fmt.Printf("%s\n", debug.Stack())
		}
	}()

	if event.GuildID() == nil {
		return
	}
	game := getQuizGame(*event.GuildID())
	if game == nil {
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizNoGame).SetEphemeral(true).Build())
		return
	}

	parts := strings.Split(event.Data.CustomID(), ":")
	if len(parts) < 3 {
		return
	}
	roundNum, err := strconv.Atoi(parts[2])
	if err != nil {
		return
	}

	switch parts[1] {
	case "answer":
		if len(parts) != 4 {
			return
		}
		optionIdx, err := strconv.Atoi(parts[3])
		if err != nil {
			return
		}
		reply := game.SubmitChoice(event.User().ID, roundNum, optionIdx)
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(reply).SetEphemeral(true).Build())
	case "skip":
		votes, needed, counted := game.VoteSkipForRound(event.User().ID, roundNum)
		if !counted {
			event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(MsgQuizNoRound).SetEphemeral(true).Build())
			return
		}
		event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(fmt.Sprintf(MsgQuizSkipCounted, votes, needed)).SetEphemeral(true).Build())
	}
}

// handleQuizMessage evaluates typed guesses during open-answer rounds.
func handleQuizMessage(event *events.MessageCreate) {
	if event.Message.Author.Bot || event.GuildID == nil {
		return
	}
	game := getQuizGame(*event.GuildID)
	if game == nil || game.mode != ModeOpen {
		return
	}
	if event.ChannelID != game.textChannelID {
		return
	}

	verdict := game.SubmitGuess(event.Message.Author.ID, event.Message.Content)
	if verdict == "" {
		return
	}
	err := event.Client().Rest.AddReaction(event.ChannelID, event.MessageID, verdict)
	if err != nil {
		LogQuiz("Failed to react to guess: %v", err)
	}
}

// ===========================
// Game Loop
// ===========================

func (g *QuizGame) run() {
	defer func() {
		if r := recover(); r != nil {
			LogError("Panic in quiz loop: %v", r)
			fmt.Printf("%s\n", debug.Stack())
		}
		g.finish()
	}()

	for roundNum := 1; roundNum <= g.roundsTotal; roundNum++ {
		if g.ctx.Err() != nil {
			return
		}

		aborted := g.playRound(roundNum)
		if aborted {
			return
		}

		g.mu.Lock()
		g.phase = PhaseNextRound
		last := roundNum == g.roundsTotal || g.stopped
		g.mu.Unlock()
		if last {
			return
		}

		select {
		case <-time.After(quizRoundDelay):
		case <-g.ctx.Done():
			return
		}
	}
}

// playRound runs one full round. Returns true when the game should abort
// (voice failure or stop), false to continue with the next round.
func (g *QuizGame) playRound(roundNum int) bool {
	track := g.nextTrack()

	round := &quizRound{
		number:    roundNum,
		track:     track,
		timeLimit: g.timeLimit,
		skipVotes: make(map[snowflake.ID]bool),
		guessed:   make(map[snowflake.ID]bool),
		done:      make(chan struct{}),
	}
	round.options, round.correctIdx = g.buildOptions(track)

	g.mu.Lock()
	g.phase = PhaseAwaitingAudio
	g.round = round
	g.mu.Unlock()

	// Connection first, then audio. The connection persists across
	// rounds; only a fresh round ensures it is still alive.
	sess, err := GetVoiceManager().EnsureConnection(g.ctx, g.client, g.guildID, g.voiceChannelID)
	if err != nil {
		if errors.Is(err, ErrConnectionTimeout) || g.ctx.Err() != nil {
			g.announce(MsgQuizVoiceLost)
			return true
		}
		LogQuiz("Voice connection failed: %v", err)
		g.announce(MsgQuizVoiceLost)
		return true
	}

	desc, err := GetAudioResolver(GetSpotifySystem(GlobalConfig)).Resolve(g.ctx, track)
	if err != nil {
		if g.ctx.Err() != nil {
			return true
		}
		var apf *AllProvidersFailed
		if errors.As(err, &apf) {
			LogQuiz("Round %d: no playable source for %s - %s: %v", roundNum, track.Title, track.Artist, err)
			g.mu.Lock()
			g.roundsPlayed++
			g.mu.Unlock()
			g.announce(fmt.Sprintf("⏭️ Round %d/%d skipped: couldn't find audio for this track.", roundNum, g.roundsTotal))
			return false
		}
		LogQuiz("Round %d: resolve failed: %v", roundNum, err)
		g.announce(fmt.Sprintf("⏭️ Round %d/%d skipped: %v", roundNum, g.roundsTotal, err))
		return false
	}

	if err := sess.PlayStream(desc); err != nil {
		LogQuiz("Round %d: playback failed: %v", roundNum, err)
		g.announce(MsgQuizVoiceLost)
		return true
	}

	g.mu.Lock()
	g.phase = PhaseInProgress
	round.startedAt = time.Now()
	round.timer = time.AfterFunc(round.timeLimit, func() {
		g.resolveRound(round, outcomeTimeout, 0)
	})
	if track.AlbumArtURL != "" {
		g.playedArt = append(g.playedArt, track.AlbumArtURL)
	}
	g.mu.Unlock()

	g.announceRoundStart(round)

	select {
	case <-round.done:
	case <-g.ctx.Done():
		g.resolveRound(round, outcomeSkipped, 0)
		<-round.done
	}

	g.mu.Lock()
	g.phase = PhaseResolving
	g.roundsPlayed++
	stopped := g.stopped
	g.mu.Unlock()

	// Stop the stream but keep the voice connection for the next round.
	sess.StopAudio()
	if !stopped {
		g.announceRoundResult(round)
	}
	return false
}

// nextTrack picks a uniformly random track among those not yet played.
// When every track has been used the pool resets.
func (g *QuizGame) nextTrack() Track {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.usedIdx) >= len(g.tracks) {
		g.usedIdx = make(map[int]bool)
	}

	unused := make([]int, 0, len(g.tracks)-len(g.usedIdx))
	for i := range g.tracks {
		if !g.usedIdx[i] {
			unused = append(unused, i)
		}
	}
	idx := unused[rand.Intn(len(unused))]
	g.usedIdx[idx] = true
	return g.tracks[idx]
}

var syntheticSuffixes = []string{" (Live)", " (Remix)", " (Acoustic)", " (Radio Edit)"}

// buildOptions assembles the multiple-choice labels: the correct track
// plus three distractors from the playlist, deduplicated by identity.
// When the playlist can't supply three distinct distractors, synthetic
// variants of the correct title fill the gap.
func (g *QuizGame) buildOptions(track Track) ([]string, int) {
	seen := map[string]bool{track.Key(): true}
	distractors := make([]Track, 0, quizOptionCount-1)

	perm := rand.Perm(len(g.tracks))
	for _, i := range perm {
		if len(distractors) == quizOptionCount-1 {
			break
		}
		cand := g.tracks[i]
		if seen[cand.Key()] {
			continue
		}
		seen[cand.Key()] = true
		distractors = append(distractors, cand)
	}
	for i := 0; len(distractors) < quizOptionCount-1; i++ {
		distractors = append(distractors, Track{
			Title:  track.Title + syntheticSuffixes[i%len(syntheticSuffixes)],
			Artist: track.Artist,
		})
	}

	options := make([]string, 0, quizOptionCount)
	options = append(options, FormatTrackLabel(track.Title, track.Artist, 80))
	for _, d := range distractors {
		options = append(options, FormatTrackLabel(d.Title, d.Artist, 80))
	}

	correctIdx := 0
	for i := len(options) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		options[i], options[j] = options[j], options[i]
		if correctIdx == i {
			correctIdx = j
		} else if correctIdx == j {
			correctIdx = i
		}
	}
	return options, correctIdx
}

// resolveRound is the single point where a round ends. Exactly one
// caller wins the check-and-set; everyone else is a no-op.
func (g *QuizGame) resolveRound(round *quizRound, outcome roundOutcome, winnerID snowflake.ID) bool {
	g.mu.Lock()
	if round.resolved {
		g.mu.Unlock()
		return false
	}
	round.resolved = true
	round.outcome = outcome
	round.winnerID = winnerID
	if round.timer != nil {
		round.timer.Stop()
	}

	if outcome == outcomeGuessed {
		points := scoreFor(round.timeLimit, time.Since(round.startedAt))
		round.winPoints = points
		p := g.scores[winnerID]
		if p == nil {
			p = &quizPlayer{}
			g.scores[winnerID] = p
		}
		p.points += points
		p.correct++
	}
	g.mu.Unlock()

	close(round.done)
	return true
}

// scoreFor awards more points the faster the answer came in. Even a
// last-second answer is worth at least one point.
func scoreFor(timeLimit, elapsed time.Duration) int {
	remaining := int((timeLimit - elapsed) / time.Second)
	remaining = Max(remaining, 1)
	return Max(remaining/3+1, 1)
}

// ===========================
// Player Input
// ===========================

func (g *QuizGame) currentRound(roundNum int) *quizRound {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseInProgress || g.round == nil || g.round.resolved {
		return nil
	}
	if roundNum > 0 && g.round.number != roundNum {
		return nil
	}
	return g.round
}

// SubmitChoice handles a button answer. Each player gets one attempt
// per round.
func (g *QuizGame) SubmitChoice(userID snowflake.ID, roundNum, optionIdx int) string {
	round := g.currentRound(roundNum)
	if round == nil {
		return MsgQuizNoRound
	}

	g.mu.Lock()
	if round.guessed[userID] {
		g.mu.Unlock()
		return MsgQuizAlreadyGuessed
	}
	round.guessed[userID] = true
	correct := optionIdx == round.correctIdx
	g.mu.Unlock()

	if !correct {
		return MsgQuizWrongAnswer
	}
	if g.resolveRound(round, outcomeGuessed, userID) {
		return fmt.Sprintf("✅ Correct! **+%d** points.", round.winPoints)
	}
	return MsgQuizNoRound
}

// SubmitGuess handles a typed answer in open mode. Returns the reaction
// emoji to add, or empty for no feedback.
func (g *QuizGame) SubmitGuess(userID snowflake.ID, content string) string {
	round := g.currentRound(0)
	if round == nil {
		return ""
	}

	correct, similarity := EvaluateGuess(content, round.track)
	if correct {
		if g.resolveRound(round, outcomeGuessed, userID) {
			return "✅"
		}
		return ""
	}
	if IsWarm(similarity) {
		return "🔥"
	}
	return "❄️"
}

func (g *QuizGame) VoteSkip(userID snowflake.ID) (votes, needed int, counted bool) {
	round := g.currentRound(0)
	if round == nil {
		return 0, 0, false
	}
	return g.voteSkip(round, userID)
}

func (g *QuizGame) VoteSkipForRound(userID snowflake.ID, roundNum int) (votes, needed int, counted bool) {
	round := g.currentRound(roundNum)
	if round == nil {
		return 0, 0, false
	}
	return g.voteSkip(round, userID)
}

// voteSkip records a vote and resolves the round once a strict majority
// of humans in the voice channel want to move on.
func (g *QuizGame) voteSkip(round *quizRound, userID snowflake.ID) (int, int, bool) {
	humans := HumanCountInChannel(g.client, g.guildID, g.voiceChannelID)
	needed := humans/2 + 1
	if needed < 1 {
		needed = 1
	}

	g.mu.Lock()
	round.skipVotes[userID] = true
	votes := len(round.skipVotes)
	g.mu.Unlock()

	if votes >= needed {
		g.resolveRound(round, outcomeSkipped, 0)
	}
	return votes, needed, true
}

// NextHint reveals a few more letters of the current title.
func (g *QuizGame) NextHint() (string, error) {
	round := g.currentRound(0)
	if round == nil {
		return "", errors.New(MsgQuizNoRound)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if round.hintsUsed >= quizMaxHints {
		return "", errors.New(MsgQuizHintLimit)
	}
	round.hintsUsed++
	return maskTitle(round.track.Title, round.hintsUsed), nil
}

// maskTitle hides the title behind underscores, revealing roughly a
// third more of the letters per hint level.
func maskTitle(title string, level int) string {
	runes := []rune(title)
	reveal := len(runes) * level / (quizMaxHints + 1)

	out := make([]rune, len(runes))
	shown := 0
	for i, r := range runes {
		switch {
		case r == ' ':
			out[i] = ' '
		case i == 0 || shown < reveal:
			out[i] = r
			shown++
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// ===========================
// Announcements
// ===========================

func (g *QuizGame) announce(content string) {
	_, err := SendMessageV2(g.client, g.textChannelID, NewV2Container(NewTextDisplay(content)), nil)
	if err != nil {
		LogQuiz("Failed to send announcement: %v", err)
	}
}

func (g *QuizGame) announceRoundStart(round *quizRound) {
	header := fmt.Sprintf("## 🎧 Round %d/%d\nGuess the track! You have **%s**.",
		round.number, g.roundsTotal, FormatDuration(round.timeLimit))

	parts := []interface{}{NewTextDisplay(header)}
	if g.mode == ModeChoices {
		buttons := make([]discord.InteractiveComponent, 0, quizOptionCount)
		for i, opt := range round.options {
			buttons = append(buttons, discord.NewButton(discord.ButtonStyleSecondary, opt, fmt.Sprintf("quiz:answer:%d:%d", round.number, i), "", 0))
		}
		parts = append(parts,
			NewSeparator(true),
			discord.NewActionRow(buttons[:2]...),
			discord.NewActionRow(buttons[2:]...),
		)
	} else {
		parts = append(parts, NewTextDisplay("-# Type your guess in this channel."))
	}
	parts = append(parts, discord.NewActionRow(
		discord.NewButton(discord.ButtonStyleDanger, "⏭️ Skip", fmt.Sprintf("quiz:skip:%d", round.number), "", 0),
	))

	msg, err := SendMessageV2(g.client, g.textChannelID, NewV2Container(parts...), nil)
	if err != nil {
		LogQuiz("Failed to send round start: %v", err)
		return
	}
	g.mu.Lock()
	round.messageID = msg.ID
	g.mu.Unlock()
}

func (g *QuizGame) announceRoundResult(round *quizRound) {
	g.mu.Lock()
	outcome := round.outcome
	winnerID := round.winnerID
	points := round.winPoints
	messageID := round.messageID
	g.mu.Unlock()

	// Strip the answer buttons from the question message now that the
	// round can no longer be answered
	if messageID != 0 {
		closed := fmt.Sprintf("## 🎧 Round %d/%d\n-# Round over.", round.number, g.roundsTotal)
		if _, err := EditMessageV2(g.client, g.textChannelID, messageID, NewV2Container(NewTextDisplay(closed))); err != nil {
			LogQuiz("Failed to close round message: %v", err)
		}
	}

	label := FormatTrackLabel(round.track.Title, round.track.Artist, 100)
	var body string
	switch outcome {
	case outcomeGuessed:
		body = fmt.Sprintf("## ✅ <@%d> got it! (+%d pts)\nThe track was **%s**.", winnerID, points, label)
	case outcomeSkipped:
		body = fmt.Sprintf("## ⏭️ Skipped\nThe track was **%s**.", label)
	default:
		body = fmt.Sprintf("## ⏱️ Time's up!\nThe track was **%s**.", label)
	}

	parts := []interface{}{NewTextDisplay(body)}
	if round.track.AlbumArtURL != "" {
		parts = []interface{}{NewSection(body, NewThumbnail(round.track.AlbumArtURL))}
	}

	_, err := SendMessageV2(g.client, g.textChannelID, NewV2Container(parts...), nil)
	if err != nil {
		LogQuiz("Failed to send round result: %v", err)
	}
}

// ===========================
// Game End
// ===========================

func (g *QuizGame) Stop() {
	g.mu.Lock()
	g.stopped = true
	round := g.round
	g.mu.Unlock()

	if round != nil {
		g.resolveRound(round, outcomeSkipped, 0)
	}
	g.cancel()
}

// finish tears down the game: the voice connection is destroyed, the
// summary is posted, and scores are persisted.
func (g *QuizGame) finish() {
	g.mu.Lock()
	if g.phase == PhaseEnded {
		g.mu.Unlock()
		return
	}
	g.phase = PhaseEnded
	roundsPlayed := g.roundsPlayed
	scores := make(map[snowflake.ID]*quizPlayer, len(g.scores))
	for id, p := range g.scores {
		scores[id] = p
	}
	g.mu.Unlock()

	g.cancel()

	activeQuizGamesMu.Lock()
	delete(activeQuizGames, g.guildID)
	activeQuizGamesMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	GetVoiceManager().Leave(ctx, g.guildID)

	for userID, p := range scores {
		if err := AddPlayerResult(ctx, g.guildID, userID, p.points, p.correct); err != nil {
			LogQuiz("Failed to persist score for %d: %v", userID, err)
		}
	}
	if g.gameID != 0 {
		if err := RecordGameEnd(ctx, g.gameID, roundsPlayed); err != nil {
			LogQuiz("Failed to record game end: %v", err)
		}
	}

	g.announceSummary(roundsPlayed, scores)
	LogQuiz("Quiz ended: guild=%d rounds=%d players=%d", g.guildID, roundsPlayed, len(scores))
}

type quizStanding struct {
	userID snowflake.ID
	player *quizPlayer
}

func (g *QuizGame) announceSummary(roundsPlayed int, scores map[snowflake.ID]*quizPlayer) {
	standings := make([]quizStanding, 0, len(scores))
	for id, p := range scores {
		standings = append(standings, quizStanding{id, p})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].player.points != standings[j].player.points {
			return standings[i].player.points > standings[j].player.points
		}
		return standings[i].player.correct > standings[j].player.correct
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## 🏁 Quiz Over\n%s · %d rounds played\n", TruncateWithPreserve(g.playlistName, 80, "**", "**"), roundsPlayed))
	if len(standings) == 0 {
		sb.WriteString("Nobody scored a single point. Rough crowd.")
	} else {
		sb.WriteString(fmt.Sprintf("\n🏆 Winner: <@%d> with **%d** points!\n\n", standings[0].userID, standings[0].player.points))
		medals := []string{"🥇", "🥈", "🥉", "4.", "5."}
		for i, s := range standings {
			if i >= len(medals) {
				break
			}
			sb.WriteString(fmt.Sprintf("%s <@%d> · **%d** pts · %d correct\n", medals[i], s.userID, s.player.points, s.player.correct))
		}
	}

	parts := []interface{}{NewTextDisplay(sb.String())}

	g.mu.Lock()
	art := dedupeStrings(g.playedArt, quizSummaryArtMax)
	g.mu.Unlock()
	if len(art) > 0 {
		parts = append(parts, NewMediaGallery(art...))
	}

	_, err := SendMessageV2(g.client, g.textChannelID, NewV2Container(parts...), nil)
	if err != nil {
		LogQuiz("Failed to send quiz summary: %v", err)
	}
}

// dedupeStrings keeps first occurrences, capped at max.
func dedupeStrings(in []string, max int) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, max)
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}
