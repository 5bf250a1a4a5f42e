package engine

import (
	"fmt"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/board"
)

// resolveRoll moves the seat and resolves the square it lands on. Every
// change is buffered in ts.
func (e *Engine) resolveRoll(ts *turnState, seat *models.Seat, a, b int) (*TurnResult, error) {
	move, err := Move(MoveInput{
		Position:      seat.Position,
		DiceA:         a,
		DiceB:         b,
		InJail:        seat.InJail,
		JailRollCount: seat.JailRollCount,
	})
	if err != nil {
		return nil, err
	}

	seat.RollsThisRound++
	JailStatus{InJail: move.InJail, RollCount: move.JailRollCount}.apply(seat)
	ts.touch(seat)

	res := &TurnResult{
		SeatId:      seat.Id,
		Dice:        [2]int{a, b},
		OldPosition: seat.Position,
	}

	if move.StayedInJail {
		res.NewPosition = seat.Position
		res.Action = models.ActionJail
		res.InJail = true
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Action:      models.ActionJail,
			Rolled:      move.Total,
			Active:      true,
			Comment:     fmt.Sprintf("stayed in jail (attempt %d)", seat.JailRollCount),
		})
		return res, nil
	}

	seat.Position = move.NewPosition
	if move.PassedGo {
		seat.Balance += move.GoBonus
		seat.Laps++
	}
	res.NewPosition = seat.Position
	res.PassedGo = move.PassedGo

	action := board.Classify(seat.Position)
	comment := fmt.Sprintf("rolled %d, moved %d -> %d", move.Total, move.OldPosition, move.NewPosition)
	if move.Escaped {
		comment = "left jail, " + comment
	}
	if move.PassedGo {
		comment += ", passed GO"
	}
	if move.SentToJail {
		action = models.ActionGoToJail
		comment = fmt.Sprintf("rolled %d, sent to jail", move.Total)
	}
	res.Action = action
	ts.record(models.PlayHistory{
		SeatId:      seat.Id,
		OldPosition: move.OldPosition,
		NewPosition: seat.Position,
		Action:      action,
		Amount:      move.GoBonus,
		Rolled:      move.Total,
		Active:      true,
		Comment:     comment,
	})

	if move.SentToJail {
		res.InJail = true
		return res, ts.endTurnEarly(seat, res)
	}
	if err := e.resolveLanding(ts, seat, res, move.Total); err != nil {
		return nil, err
	}
	return res, nil
}

func (ts *turnState) endTurnEarly(seat *models.Seat, res *TurnResult) error {
	next, err := ts.endTurn(seat)
	if err != nil {
		return err
	}
	res.TurnEnded = true
	res.NextPlayerId = next.Id
	return nil
}

func (e *Engine) resolveLanding(ts *turnState, seat *models.Seat, res *TurnResult, diceTotal int) error {
	square, err := board.GetByPos(seat.Position)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	switch square.Type {
	case models.SquareTax:
		ts.adjust(seat, -square.Price)
		res.TaxPaid = square.Price
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Action:      models.ActionTax,
			Amount:      -square.Price,
			Comment:     fmt.Sprintf("paid %s of %d", square.Name, square.Price),
		})
	case models.SquareChance:
		return e.resolveCard(ts, seat, models.DeckChance, res)
	case models.SquareCommunity:
		return e.resolveCard(ts, seat, models.DeckCommunity, res)
	case models.SquareLand, models.SquareRailway, models.SquareUtility:
		return ts.resolveRent(seat, square, res, diceTotal)
	}
	return nil
}

func (ts *turnState) resolveRent(seat *models.Seat, square models.Property, res *TurnResult, diceTotal int) error {
	gp, err := ts.lockProperty(square.Id)
	if err != nil {
		return err
	}
	if gp == nil || gp.OwnerSeatId == "" {
		res.Buyable = true
		return nil
	}
	if gp.OwnerSeatId == seat.Id || gp.Mortgaged {
		return nil
	}
	owner, err := ts.seat(gp.OwnerSeatId)
	if err != nil {
		return err
	}
	count, err := ts.ownedCount(owner.Id, square.Type)
	if err != nil {
		return err
	}
	rent := Rent(square, gp.Level, count, diceTotal)
	if rent == 0 {
		return nil
	}
	ts.pay(seat, owner, rent, square, board.Classify(square.Id), "rent")
	res.RentPaid = &RentPaid{Player: rent, Owner: rent}
	return nil
}

func (e *Engine) resolveCard(ts *turnState, seat *models.Seat, deck models.Deck, res *TurnResult) error {
	card, err := Draw(board.Deck(deck), e.rng)
	if err != nil {
		return err
	}
	others := ts.others(seat)
	ids := make([]string, 0, len(others))
	for _, s := range others {
		ids = append(ids, s.Id)
	}
	eff, err := ApplyCard(card, seat.Position, ids)
	if err != nil {
		return err
	}
	res.Card = &card
	action := board.Classify(seat.Position)

	if eff.JailCard {
		if deck == models.DeckChance {
			seat.ChanceJailCard = true
		} else {
			seat.CommunityJailCard = true
		}
		ts.touch(seat)
	}

	if eff.Delta != 0 || eff.Moved || eff.JailCard {
		ts.adjust(seat, eff.Delta)
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: eff.OldPosition,
			NewPosition: eff.NewPosition,
			Action:      action,
			Amount:      eff.Delta,
			Comment:     card.Info,
		})
	}

	if eff.Payees != nil {
		for _, other := range others {
			amount := eff.Payees[other.Id]
			ts.adjust(other, amount)
			ts.record(models.PlayHistory{
				SeatId:      other.Id,
				OldPosition: other.Position,
				NewPosition: other.Position,
				Action:      action,
				Amount:      amount,
				Comment:     fmt.Sprintf("received %d from %s: %s", amount, seat.Username, card.Info),
			})
			ts.transfers = append(ts.transfers, &models.Transfer{
				Id:         newID(),
				GameId:     ts.game.Id,
				FromSeatId: seat.Id,
				ToSeatId:   other.Id,
				Amount:     amount,
				PropertyId: seat.Position,
				Reason:     models.RulePerPlayer.String(),
				CreatedAt:  ts.now,
			})
		}
		res.RentPaid = &RentPaid{Player: -eff.Delta, Players: eff.Payees}
	}

	if eff.Moved {
		seat.Position = eff.NewPosition
		res.NewPosition = eff.NewPosition
	}
	if eff.Jailed {
		JailStatus{}.Enter().apply(seat)
		res.InJail = true
		return ts.endTurnEarly(seat, res)
	}
	if eff.Moved {
		square := board.MustGet(seat.Position)
		if square.Type.Ownable() {
			gp, err := ts.lockProperty(square.Id)
			if err != nil {
				return err
			}
			res.Buyable = gp == nil || gp.OwnerSeatId == ""
		}
	}
	return nil
}
