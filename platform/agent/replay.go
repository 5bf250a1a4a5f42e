package agent

import (
	"context"
	"sync"

	"github.com/DedS3t/monopoly-arena/platform/engine"
)

// Replay hands out scripted decisions per seat, then ends every turn.
type Replay struct {
	mu     sync.Mutex
	script map[string][]Decision
}

func NewReplay(script map[string][]Decision) *Replay {
	copied := make(map[string][]Decision, len(script))
	for seat, decisions := range script {
		copied[seat] = append([]Decision(nil), decisions...)
	}
	return &Replay{script: copied}
}

func (r *Replay) Decide(ctx context.Context, state *engine.GameState, p Profile) (Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.script[p.SeatId]
	if len(queue) == 0 {
		return EndTurn("script exhausted"), nil
	}
	r.script[p.SeatId] = queue[1:]
	return queue[0], nil
}
