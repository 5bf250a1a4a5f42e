package engine

import (
	"fmt"
	"sort"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/board"
)

// SeatPhase is where a seat is in its own turn cycle.
type SeatPhase int

const (
	PhaseWaitingTurn SeatPhase = iota
	PhaseRolling
	PhaseResolving
	PhaseTurnEnded
)

var phaseNames = map[SeatPhase]string{
	PhaseWaitingTurn: "WAITING_TURN",
	PhaseRolling:     "ROLLING",
	PhaseResolving:   "RESOLVING",
	PhaseTurnEnded:   "TURN_ENDED",
}

func (p SeatPhase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

func (p SeatPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Next is the only legal successor of p.
func (p SeatPhase) Next() SeatPhase {
	switch p {
	case PhaseWaitingTurn:
		return PhaseRolling
	case PhaseRolling:
		return PhaseResolving
	case PhaseResolving:
		return PhaseTurnEnded
	default:
		return PhaseWaitingTurn
	}
}

// PhaseOf derives the persisted phase of a seat. RESOLVING only exists
// inside a roll transaction.
func PhaseOf(game *models.Game, seat *models.Seat) SeatPhase {
	if game.Status != models.StatusRunning || game.NextPlayerId != seat.Id {
		return PhaseWaitingTurn
	}
	if seat.RollsThisRound == 0 {
		return PhaseRolling
	}
	return PhaseTurnEnded
}

// CanRoll checks roll eligibility. Callers must hold the game and seat locks.
func CanRoll(game *models.Game, seat *models.Seat) error {
	if game.Status != models.StatusRunning {
		return fmt.Errorf("%w: game %s is %s", ErrInvalidState, game.Id, game.Status)
	}
	if seat.GameId != game.Id {
		return fmt.Errorf("%w: seat %s is not in game %s", ErrInvalidState, seat.Id, game.Id)
	}
	if game.NextPlayerId != seat.Id {
		return ErrNotYourTurn
	}
	if seat.RollsThisRound >= 1 {
		return ErrAlreadyRolled
	}
	if !seat.Active {
		return fmt.Errorf("%w: seat %s left the game", ErrInvalidState, seat.Id)
	}
	if seat.Balance <= 0 {
		return fmt.Errorf("%w: seat %s is bankrupt", ErrInvalidState, seat.Id)
	}
	if seat.InJail && seat.Position != board.JailPosition {
		return fmt.Errorf("%w: seat %s jailed off the jail square", ErrInvalidState, seat.Id)
	}
	return nil
}

func sortByTurnOrder(seats []*models.Seat) {
	sort.SliceStable(seats, func(i, j int) bool { return seats[i].TurnOrder < seats[j].TurnOrder })
}

// nextHolder picks the next live seat after current in turn order. When no
// other seat is live it returns current.
func nextHolder(seats []*models.Seat, current *models.Seat) *models.Seat {
	idx := -1
	for i, s := range seats {
		if s.Id == current.Id {
			idx = i
			break
		}
	}
	for step := 1; step < len(seats); step++ {
		candidate := seats[(idx+step+len(seats))%len(seats)]
		if candidate.Live() {
			return candidate
		}
	}
	return current
}

// roundComplete is true once every live seat has rolled this round.
func roundComplete(seats []*models.Seat) bool {
	for _, s := range seats {
		if s.Live() && s.RollsThisRound < 1 {
			return false
		}
	}
	return true
}
