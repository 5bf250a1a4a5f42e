package runner

import (
	"fmt"
	"strconv"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/engine"
)

// LiveSnapshot is the at-a-glance view of an autonomous game.
type LiveSnapshot struct {
	CurrentTurn     string            `json:"current_turn"`
	RoundNumber     int               `json:"round_number"`
	RemainingAgents int               `json:"remaining_agents"`
	LastAction      string            `json:"last_action"`
	Status          models.GameStatus `json:"status"`
}

func snapshotOf(state *engine.GameState, lastAction string) LiveSnapshot {
	return LiveSnapshot{
		CurrentTurn:     state.Game.NextPlayerId,
		RoundNumber:     state.Game.RoundNumber,
		RemainingAgents: len(state.LiveSeats()),
		LastAction:      lastAction,
		Status:          state.Game.Status,
	}
}

// Fields flattens the snapshot for a Redis hash.
func (l LiveSnapshot) Fields() map[string]string {
	return map[string]string{
		"current_turn":     l.CurrentTurn,
		"round_number":     strconv.Itoa(l.RoundNumber),
		"remaining_agents": strconv.Itoa(l.RemainingAgents),
		"last_action":      l.LastAction,
		"status":           string(l.Status),
	}
}

// SnapshotFromFields is the inverse of Fields.
func SnapshotFromFields(f map[string]string) LiveSnapshot {
	round, _ := strconv.Atoi(f["round_number"])
	remaining, _ := strconv.Atoi(f["remaining_agents"])
	return LiveSnapshot{
		CurrentTurn:     f["current_turn"],
		RoundNumber:     round,
		RemainingAgents: remaining,
		LastAction:      f["last_action"],
		Status:          models.GameStatus(f["status"]),
	}
}

type LogEntry struct {
	At      time.Time `json:"at"`
	Round   int       `json:"round"`
	SeatId  string    `json:"seat_id,omitempty"`
	Message string    `json:"message"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s round=%d seat=%s %s", e.At.Format(time.RFC3339), e.Round, e.SeatId, e.Message)
}

func describe(seat *models.Seat, res *engine.TurnResult) string {
	msg := fmt.Sprintf("%s rolled %d+%d: %d -> %d (%s)", seat.Username, res.Dice[0], res.Dice[1], res.OldPosition, res.NewPosition, res.Action)
	if res.PassedGo {
		msg += ", passed GO"
	}
	if res.Card != nil {
		msg += ", drew \"" + res.Card.Info + "\""
	}
	if res.RentPaid != nil {
		msg += fmt.Sprintf(", paid %d", res.RentPaid.Player)
	}
	if res.TaxPaid > 0 {
		msg += fmt.Sprintf(", paid %d tax", res.TaxPaid)
	}
	if res.InJail {
		msg += ", in jail"
	}
	return msg
}
