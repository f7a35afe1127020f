package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/cue"
)

// Timing rules of a session.
const (
	QuestionSeconds = 30
	RevealSeconds   = 5

	// PenaltyLock is the personal lock applied for buzzing while locked.
	PenaltyLock = 2 * time.Second

	// indefiniteLock arms the global buzzer lock until the host explicitly
	// releases it or the question resolves.
	indefiniteLock = 24 * time.Hour

	thinkMusicDelay = 3 * time.Second
	introStepDelay  = 2 * time.Second
	introFinalDelay = time.Second
)

// Engine owns the authoritative GameState and applies the transition rules.
// All methods must be called from the single goroutine that owns the session
// loop; scheduler callbacks re-enter the engine through that same loop. Every
// accepted mutation is pushed to onChange, which drives snapshot replication.
type Engine struct {
	state    *GameState
	clock    clockwork.Clock
	cues     cue.Player
	sched    *Scheduler
	onChange func(*GameState)
}

// NewEngine wraps an initial state. cues may be cue.NopPlayer{}; onChange may
// be nil for tests that inspect state directly.
func NewEngine(state *GameState, clock clockwork.Clock, cues cue.Player, sched *Scheduler, onChange func(*GameState)) *Engine {
	return &Engine{
		state:    state,
		clock:    clock,
		cues:     cues,
		sched:    sched,
		onChange: onChange,
	}
}

// State returns the authoritative state. Callers outside the session loop
// must treat it as read-only.
func (e *Engine) State() *GameState { return e.state }

func (e *Engine) emit() {
	if e.onChange != nil {
		e.onChange(e.state)
	}
}

func (e *Engine) nowMillis() int64 { return e.clock.Now().UnixMilli() }

func (e *Engine) drop(reason string) bool {
	log.Debug().Str("reason", reason).Str("status", string(e.state.Status)).Msg("message dropped by guard")
	return false
}

// HandleJoin adds a player on first sight of its id. A duplicate join is
// idempotent: no state change, but the caller still sends the joining link a
// fresh snapshot. Returns whether the roster changed.
func (e *Engine) HandleJoin(p Player) bool {
	if p.ID == "" || p.Name == "" {
		return e.drop("join missing id or name")
	}
	if e.state.FindPlayer(p.ID) != nil {
		log.Debug().Str("player_id", p.ID).Msg("duplicate join ignored")
		return false
	}
	e.state.Players = append(e.state.Players, Player{
		ID:    p.ID,
		Name:  p.Name,
		Score: p.Score,
	})
	log.Info().Str("player_id", p.ID).Str("name", p.Name).Int("players", len(e.state.Players)).Msg("player joined")
	e.emit()
	return true
}

// HandleBuzz accepts a buzz if the question is open, nobody holds the floor,
// and neither the global nor the sender's personal lock is active. Racing
// buzzes resolve first-applied-wins: the second one fails the no-active-player
// guard.
func (e *Engine) HandleBuzz(playerID string) bool {
	st := e.state
	if st.Status != StatusQuestionActive {
		return e.drop("buzz outside active question")
	}
	if st.ActivePlayerID != "" {
		return e.drop("buzz with floor already taken")
	}
	p := st.FindPlayer(playerID)
	if p == nil {
		return e.drop("buzz from unknown player")
	}
	now := e.nowMillis()
	if st.BuzzerLockUntil != 0 && now < st.BuzzerLockUntil {
		return e.drop("buzz under global lock")
	}
	if p.BuzzerLockUntil != 0 && now < p.BuzzerLockUntil {
		return e.drop("buzz under personal lock")
	}
	st.ActivePlayerID = p.ID
	p.IsBuzzed = true
	e.sched.Cancel(taskThinkMusic)
	e.cues.StopThinkMusic()
	e.cues.PlayBuzz()
	log.Info().Str("player_id", p.ID).Msg("buzz accepted")
	e.emit()
	return true
}

// HandleLockedBuzz applies the personal penalty for a buzz attempted while a
// lock was active: the sender is locked out for a fixed window even after the
// global lock clears.
func (e *Engine) HandleLockedBuzz(playerID string) bool {
	p := e.state.FindPlayer(playerID)
	if p == nil {
		return e.drop("locked buzz from unknown player")
	}
	p.BuzzerLockUntil = e.nowMillis() + PenaltyLock.Milliseconds()
	log.Debug().Str("player_id", p.ID).Int64("locked_until", p.BuzzerLockUntil).Msg("personal buzzer penalty applied")
	e.emit()
	return true
}

// StartGame moves the lobby into the per-player intro sequence.
func (e *Engine) StartGame() bool {
	st := e.state
	if st.Status != StatusLobby {
		return e.drop("start outside lobby")
	}
	if len(st.Players) == 0 {
		return e.drop("start with no players")
	}
	st.Status = StatusIntro
	idx := 0
	st.IntroPlayerIndex = &idx
	e.cues.PlayIntro(st.Players[0].Name)
	e.sched.After(taskIntro, introStepDelay, e.AdvanceIntro)
	log.Info().Int("players", len(st.Players)).Msg("game started, introducing players")
	e.emit()
	return true
}

// AdvanceIntro steps the intro cursor to the next player, or after the last
// player schedules the short final pause before play begins.
func (e *Engine) AdvanceIntro() {
	st := e.state
	if st.Status != StatusIntro || st.IntroPlayerIndex == nil {
		return
	}
	next := *st.IntroPlayerIndex + 1
	if next < len(st.Players) {
		st.IntroPlayerIndex = &next
		e.cues.PlayIntro(st.Players[next].Name)
		e.sched.After(taskIntro, introStepDelay, e.AdvanceIntro)
		e.emit()
		return
	}
	e.sched.After(taskIntro, introFinalDelay, e.BeginPlay)
}

// BeginPlay ends the intro sequence and opens the board.
func (e *Engine) BeginPlay() {
	st := e.state
	if st.Status != StatusIntro {
		return
	}
	e.sched.CancelAll()
	st.Status = StatusPlaying
	st.IntroPlayerIndex = nil
	log.Info().Msg("board open")
	e.emit()
}

// SelectQuestion activates an unanswered question: the countdown starts, the
// global lock is armed until the host releases it, and the think-music cue is
// scheduled a few seconds out.
func (e *Engine) SelectQuestion(questionID string) bool {
	st := e.state
	if st.Status != StatusPlaying {
		return e.drop("select outside playing phase")
	}
	q := st.FindQuestion(questionID)
	if q == nil {
		return e.drop("select of unknown question")
	}
	if q.IsAnswered {
		return e.drop("select of answered question")
	}
	shown := *q
	st.ActiveQuestion = &shown
	st.Status = StatusQuestionActive
	st.Timer = QuestionSeconds
	st.BuzzerLockUntil = e.nowMillis() + indefiniteLock.Milliseconds()
	e.sched.CancelAll()
	e.sched.Every(taskCountdown, time.Second, e.TickQuestion)
	e.sched.After(taskThinkMusic, thinkMusicDelay, e.cues.PlayThinkMusic)
	log.Info().Str("question_id", q.ID).Int("value", q.Value).Str("category", q.Category).Msg("question selected")
	e.emit()
	return true
}

// TickQuestion advances the question countdown by one second. The countdown
// holds still while a player is answering; at zero with nobody on the floor
// the question times out and is skipped.
func (e *Engine) TickQuestion() {
	st := e.state
	if st.Status != StatusQuestionActive || st.ActivePlayerID != "" {
		return
	}
	st.Timer--
	if st.Timer <= 0 {
		st.Timer = 0
		e.cues.PlayTimeout()
		log.Info().Msg("question timed out")
		e.resolveToReveal()
		return
	}
	e.emit()
}

// MarkCorrect resolves the active answer as correct: the active player is
// awarded value times multiplier and the session moves to the reveal phase.
// playerID, when non-empty, must match the player on the floor.
func (e *Engine) MarkCorrect(playerID string) bool {
	st := e.state
	if st.ActiveQuestion == nil || st.ActivePlayerID == "" {
		return e.drop("correct without active question and answerer")
	}
	if playerID != "" && playerID != st.ActivePlayerID {
		return e.drop("correct naming a different player")
	}
	p := st.FindPlayer(st.ActivePlayerID)
	if p == nil {
		return e.drop("correct for missing player")
	}
	p.Score += st.ActiveQuestion.Value * st.ActiveQuestion.Multiplier()
	e.cues.PlayCorrect()
	log.Info().Str("player_id", p.ID).Int("score", p.Score).Msg("answer correct")
	e.resolveToReveal()
	return true
}

// MarkIncorrect resolves the active answer as wrong: the active player loses
// value times multiplier, the floor reopens, the countdown resets, and the
// global lock is re-armed pending another release.
func (e *Engine) MarkIncorrect(playerID string) bool {
	st := e.state
	if st.ActiveQuestion == nil || st.ActivePlayerID == "" {
		return e.drop("incorrect without active question and answerer")
	}
	if playerID != "" && playerID != st.ActivePlayerID {
		return e.drop("incorrect naming a different player")
	}
	p := st.FindPlayer(st.ActivePlayerID)
	if p == nil {
		return e.drop("incorrect for missing player")
	}
	p.Score -= st.ActiveQuestion.Value * st.ActiveQuestion.Multiplier()
	p.IsBuzzed = false
	st.ActivePlayerID = ""
	st.Timer = QuestionSeconds
	st.BuzzerLockUntil = e.nowMillis() + indefiniteLock.Milliseconds()
	e.sched.After(taskThinkMusic, thinkMusicDelay, e.cues.PlayThinkMusic)
	e.cues.PlayIncorrect()
	log.Info().Str("player_id", p.ID).Int("score", p.Score).Msg("answer incorrect, floor reopened")
	e.emit()
	return true
}

// Skip marks the active question answered without awarding points and moves
// to the reveal phase. Valid from any phase with an active question.
func (e *Engine) Skip() bool {
	if e.state.ActiveQuestion == nil {
		return e.drop("skip without active question")
	}
	log.Info().Str("question_id", e.state.ActiveQuestion.ID).Msg("question skipped")
	e.state.ActivePlayerID = ""
	e.resolveToReveal()
	return true
}

// resolveToReveal marks the active question answered (monotonic, on both the
// board cell and the displayed copy), clears buzz state, and starts the
// reveal countdown. The active player reference is kept for display and
// cleared when the reveal ends.
func (e *Engine) resolveToReveal() {
	st := e.state
	if q := st.FindQuestion(st.ActiveQuestion.ID); q != nil {
		q.IsAnswered = true
	}
	st.ActiveQuestion.IsAnswered = true
	for i := range st.Players {
		st.Players[i].IsBuzzed = false
	}
	st.Status = StatusReveal
	st.RevealTimer = RevealSeconds
	st.BuzzerLockUntil = 0
	e.sched.CancelAll()
	e.sched.Every(taskReveal, time.Second, e.TickReveal)
	e.emit()
}

// TickReveal advances the reveal countdown; at zero the session continues on
// its own.
func (e *Engine) TickReveal() {
	st := e.state
	if st.Status != StatusReveal {
		return
	}
	st.RevealTimer--
	if st.RevealTimer <= 0 {
		st.RevealTimer = 0
		e.Continue()
		return
	}
	e.emit()
}

// Continue ends the reveal phase: back to the board, or to FINISHED once
// every question has been answered.
func (e *Engine) Continue() bool {
	st := e.state
	if st.Status != StatusReveal {
		return e.drop("continue outside reveal")
	}
	e.sched.CancelAll()
	st.ActiveQuestion = nil
	st.ActivePlayerID = ""
	st.RevealTimer = 0
	if st.AllAnswered() {
		st.Status = StatusFinished
		log.Info().Msg("board exhausted, game finished")
	} else {
		st.Status = StatusPlaying
	}
	e.emit()
	return true
}

// ReleaseBuzzer clears the global lock so players may buzz.
func (e *Engine) ReleaseBuzzer() bool {
	st := e.state
	if st.Status != StatusQuestionActive {
		return e.drop("release outside active question")
	}
	st.BuzzerLockUntil = 0
	log.Info().Msg("buzzer released")
	e.emit()
	return true
}

// RenamePlayer changes a player's display name.
func (e *Engine) RenamePlayer(playerID, newName string) bool {
	p := e.state.FindPlayer(playerID)
	if p == nil {
		return e.drop("rename of unknown player")
	}
	if newName == "" {
		return e.drop("rename to empty name")
	}
	p.Name = newName
	e.emit()
	return true
}

// OverrideScore sets a player's score directly.
func (e *Engine) OverrideScore(playerID string, newScore int) bool {
	p := e.state.FindPlayer(playerID)
	if p == nil {
		return e.drop("score override of unknown player")
	}
	p.Score = newScore
	e.emit()
	return true
}

// KickPlayer removes a player from the roster. This is the only way a player
// leaves the roster; a disconnect alone never removes one. If the kicked
// player held the floor, the floor is cleared to keep the active-player
// invariant.
func (e *Engine) KickPlayer(playerID string) bool {
	st := e.state
	idx := -1
	for i := range st.Players {
		if st.Players[i].ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return e.drop("kick of unknown player")
	}
	st.Players = append(st.Players[:idx], st.Players[idx+1:]...)
	if st.ActivePlayerID == playerID {
		st.ActivePlayerID = ""
	}
	if st.Status == StatusIntro && st.IntroPlayerIndex != nil {
		if len(st.Players) == 0 {
			e.sched.CancelAll()
			st.Status = StatusLobby
			st.IntroPlayerIndex = nil
		} else if *st.IntroPlayerIndex >= len(st.Players) {
			last := len(st.Players) - 1
			st.IntroPlayerIndex = &last
		}
	}
	log.Info().Str("player_id", playerID).Int("players", len(st.Players)).Msg("player kicked")
	e.emit()
	return true
}

// SetControllerConnected flags whether the controller slot is occupied.
func (e *Engine) SetControllerConnected(connected bool) {
	if e.state.IsHostControllerConnected == connected {
		return
	}
	e.state.IsHostControllerConnected = connected
	e.emit()
}

// Teardown cancels every scheduled task. Called when the session ends.
func (e *Engine) Teardown() {
	e.sched.CancelAll()
}
