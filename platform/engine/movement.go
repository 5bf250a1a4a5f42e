package engine

import (
	"fmt"

	"github.com/DedS3t/monopoly-arena/platform/board"
)

type MoveInput struct {
	Position      int
	DiceA, DiceB  int
	Pending       int // steps carried over from an earlier partial move
	InJail        bool
	JailRollCount int
	// AssumeEscape is set by callers that expect the roll to leave jail.
	AssumeEscape bool
}

type MoveResult struct {
	OldPosition   int
	NewPosition   int
	Total         int
	Doubles       bool
	PassedGo      bool
	GoBonus       int
	StayedInJail  bool
	Escaped       bool
	SentToJail    bool
	InJail        bool
	JailRollCount int
}

// Move resolves where a roll takes the token. It does not touch balances;
// GoBonus is what the caller must credit.
func Move(in MoveInput) (MoveResult, error) {
	if in.DiceA < 1 || in.DiceA > 6 || in.DiceB < 1 || in.DiceB > 6 {
		return MoveResult{}, fmt.Errorf("%w: dice %d,%d", ErrInvalidMove, in.DiceA, in.DiceB)
	}
	res := MoveResult{
		OldPosition:   in.Position,
		NewPosition:   in.Position,
		Total:         in.DiceA + in.DiceB + in.Pending,
		Doubles:       in.DiceA == in.DiceB,
		InJail:        in.InJail,
		JailRollCount: in.JailRollCount,
	}

	if in.InJail {
		jail, escaped := JailStatus{InJail: true, RollCount: in.JailRollCount}.Roll(in.DiceA, in.DiceB)
		res.InJail, res.JailRollCount = jail.InJail, jail.RollCount
		if !escaped {
			if in.AssumeEscape {
				return MoveResult{}, fmt.Errorf("%w: roll %d,%d does not leave jail", ErrInvalidMove, in.DiceA, in.DiceB)
			}
			res.StayedInJail = true
			return res, nil
		}
		res.Escaped = true
		res.OldPosition = board.JailPosition
	}

	res.NewPosition = board.Wrap(res.OldPosition + res.Total)
	if res.NewPosition < res.OldPosition {
		res.PassedGo = true
		res.GoBonus = board.GoBonus
	}
	if res.NewPosition == board.GoToJailPosition {
		res.SentToJail = true
		res.NewPosition = board.JailPosition
		res.InJail, res.JailRollCount = true, 0
	}
	return res, nil
}
