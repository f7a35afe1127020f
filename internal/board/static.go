package board

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/hari-na/hari-jeopardy/internal/game"
)

//go:embed static_board.json
var staticBoard []byte

// StaticGenerator serves the embedded fallback board regardless of theme.
// Selected when the session is initialized with the static sentinel theme.
type StaticGenerator struct{}

func (StaticGenerator) Generate(_ context.Context, _ string) ([]game.Category, error) {
	var cats []game.Category
	if err := json.Unmarshal(staticBoard, &cats); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBoard, err)
	}
	return cats, nil
}
