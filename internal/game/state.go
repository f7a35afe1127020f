package game

// Status is the phase of a trivia session.
type Status string

const (
	StatusLobby          Status = "LOBBY"
	StatusIntro          Status = "INTRO"
	StatusPlaying        Status = "PLAYING"
	StatusQuestionActive Status = "QUESTION_ACTIVE"
	StatusReveal         Status = "REVEAL"
	StatusFinished       Status = "FINISHED"
)

// Scoring multipliers. A red question overrides golden.
const (
	GoldenMultiplier = 2
	RedMultiplier    = 5
)

// Question is a single board cell. IsAnswered only ever goes false to true.
type Question struct {
	ID         string `json:"id"`
	Value      int    `json:"value"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Category   string `json:"category"`
	IsAnswered bool   `json:"isAnswered"`
	IsGolden   bool   `json:"isGolden,omitempty"`
	IsRed      bool   `json:"isRed,omitempty"`
}

// Multiplier returns the point multiplier applied to this question's value.
func (q *Question) Multiplier() int {
	switch {
	case q.IsRed:
		return RedMultiplier
	case q.IsGolden:
		return GoldenMultiplier
	default:
		return 1
	}
}

// Category is a titled column of exactly five questions.
type Category struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Player is a scored participant. The id is client-generated and opaque.
// BuzzerLockUntil is an absolute epoch-millisecond penalty deadline.
type Player struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Score           int    `json:"score"`
	IsBuzzed        bool   `json:"isBuzzed"`
	BuzzerLockUntil int64  `json:"buzzerLockUntil,omitempty"`
}

// GameState is the authoritative session state. Exactly one instance is owned
// by the host; every other endpoint holds a replica that is replaced wholesale
// on each UPDATE_STATE, never merged.
type GameState struct {
	RoomCode                  string     `json:"roomCode"`
	Status                    Status     `json:"status"`
	ActiveQuestion            *Question  `json:"activeQuestion,omitempty"`
	ActivePlayerID            string     `json:"activePlayerId,omitempty"`
	Players                   []Player   `json:"players"`
	Categories                []Category `json:"categories"`
	Theme                     string     `json:"theme"`
	Timer                     int        `json:"timer"`
	BuzzerLockUntil           int64      `json:"buzzerLockUntil,omitempty"`
	RevealTimer               int        `json:"revealTimer,omitempty"`
	IsHostControllerConnected bool       `json:"isHostControllerConnected,omitempty"`
	IntroPlayerIndex          *int       `json:"introPlayerIndex,omitempty"`
}

// NewGameState returns a fresh lobby-phase state for a room.
func NewGameState(roomCode, theme string, categories []Category) *GameState {
	return &GameState{
		RoomCode:   roomCode,
		Status:     StatusLobby,
		Players:    []Player{},
		Categories: categories,
		Theme:      theme,
	}
}

// FindPlayer returns the player with the given id, or nil.
func (s *GameState) FindPlayer(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// FindQuestion returns the board question with the given id, or nil.
func (s *GameState) FindQuestion(id string) *Question {
	for ci := range s.Categories {
		for qi := range s.Categories[ci].Questions {
			if s.Categories[ci].Questions[qi].ID == id {
				return &s.Categories[ci].Questions[qi]
			}
		}
	}
	return nil
}

// AllAnswered reports whether every question on the board has been answered.
func (s *GameState) AllAnswered() bool {
	for ci := range s.Categories {
		for qi := range s.Categories[ci].Questions {
			if !s.Categories[ci].Questions[qi].IsAnswered {
				return false
			}
		}
	}
	return true
}
