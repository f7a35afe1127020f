package cue

import "github.com/rs/zerolog/log"

// Player receives fire-and-forget audio/visual cue notifications at game
// transition points. The engine never waits on or branches over a cue.
type Player interface {
	PlayBuzz()
	PlayCorrect()
	PlayIncorrect()
	PlayTimeout()
	PlayThinkMusic()
	StopThinkMusic()
	PlayIntro(playerName string)
}

// LogPlayer logs cues instead of playing them, for headless hosts.
type LogPlayer struct{}

func (LogPlayer) PlayBuzz()      { log.Debug().Str("cue", "buzz").Msg("cue fired") }
func (LogPlayer) PlayCorrect()   { log.Debug().Str("cue", "correct").Msg("cue fired") }
func (LogPlayer) PlayIncorrect() { log.Debug().Str("cue", "incorrect").Msg("cue fired") }
func (LogPlayer) PlayTimeout()   { log.Debug().Str("cue", "timeout").Msg("cue fired") }
func (LogPlayer) PlayThinkMusic() {
	log.Debug().Str("cue", "think_music").Msg("cue fired")
}
func (LogPlayer) StopThinkMusic() {
	log.Debug().Str("cue", "think_music").Msg("cue stopped")
}
func (LogPlayer) PlayIntro(playerName string) {
	log.Debug().Str("cue", "intro").Str("player", playerName).Msg("cue fired")
}

// NopPlayer discards all cues.
type NopPlayer struct{}

func (NopPlayer) PlayBuzz()        {}
func (NopPlayer) PlayCorrect()     {}
func (NopPlayer) PlayIncorrect()   {}
func (NopPlayer) PlayTimeout()     {}
func (NopPlayer) PlayThinkMusic()  {}
func (NopPlayer) StopThinkMusic()  {}
func (NopPlayer) PlayIntro(string) {}
