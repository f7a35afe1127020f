// Package board produces the 5x5 question grid a session plays on.
package board

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/hari-na/hari-jeopardy/internal/game"
)

// Board shape invariants.
const (
	CategoryCount   = 5
	QuestionsPerCat = 5
	GoldenCount     = 3
	RedCount        = 1
	// StaticTheme selects the embedded dataset instead of a generator call.
	StaticTheme = "static"
)

// QuestionValues are the point values of each category column, in order.
var QuestionValues = [QuestionsPerCat]int{200, 400, 600, 800, 1000}

var (
	// ErrMissingConfig means the generator lacks required configuration.
	// Fatal at initialization; never retried.
	ErrMissingConfig = errors.New("board generator configuration missing")
	// ErrMalformedBoard means a generator returned an unusable board.
	ErrMalformedBoard = errors.New("malformed board response")
)

// Generator produces the raw categories for a theme. Implementations return
// ErrMissingConfig or ErrMalformedBoard for the two fatal failure classes.
type Generator interface {
	Generate(ctx context.Context, theme string) ([]game.Category, error)
}

// Validate checks the board shape: five categories of five questions with the
// standard value ladder.
func Validate(cats []game.Category) error {
	if len(cats) != CategoryCount {
		return fmt.Errorf("%w: got %d categories, want %d", ErrMalformedBoard, len(cats), CategoryCount)
	}
	for ci, cat := range cats {
		if cat.Title == "" {
			return fmt.Errorf("%w: category %d has no title", ErrMalformedBoard, ci)
		}
		if len(cat.Questions) != QuestionsPerCat {
			return fmt.Errorf("%w: category %q has %d questions, want %d", ErrMalformedBoard, cat.Title, len(cat.Questions), QuestionsPerCat)
		}
		for qi, q := range cat.Questions {
			if q.Value != QuestionValues[qi] {
				return fmt.Errorf("%w: category %q question %d has value %d, want %d", ErrMalformedBoard, cat.Title, qi, q.Value, QuestionValues[qi])
			}
			if q.Question == "" || q.Answer == "" {
				return fmt.Errorf("%w: category %q question %d missing text", ErrMalformedBoard, cat.Title, qi)
			}
		}
	}
	return nil
}

// Decorate assigns ids and category back-references, then flags exactly three
// distinct golden questions and one red question drawn from the remaining
// cells, so the red cell is never golden.
func Decorate(cats []game.Category, rng *rand.Rand) {
	total := 0
	for ci := range cats {
		for qi := range cats[ci].Questions {
			q := &cats[ci].Questions[qi]
			q.ID = uuid.NewString()
			q.Category = cats[ci].Title
			q.IsAnswered = false
			q.IsGolden = false
			q.IsRed = false
			total++
		}
	}

	perm := rng.Perm(total)
	flag := func(flat int, golden bool) {
		ci := flat / QuestionsPerCat
		qi := flat % QuestionsPerCat
		if golden {
			cats[ci].Questions[qi].IsGolden = true
		} else {
			cats[ci].Questions[qi].IsRed = true
		}
	}
	for i := 0; i < GoldenCount && i < len(perm); i++ {
		flag(perm[i], true)
	}
	if GoldenCount < len(perm) {
		flag(perm[GoldenCount], false)
	}
}

// Build runs a generator, validates the result, and decorates it into a
// playable board.
func Build(ctx context.Context, gen Generator, theme string, rng *rand.Rand) ([]game.Category, error) {
	cats, err := gen.Generate(ctx, theme)
	if err != nil {
		return nil, err
	}
	if err := Validate(cats); err != nil {
		return nil, err
	}
	Decorate(cats, rng)
	return cats, nil
}
