package engine

import (
	"context"
	"fmt"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/board"
)

// HotelLevel is the highest development level.
const HotelLevel = 5

// afford refuses voluntary spending that would leave the seat at or below
// zero.
func afford(seat *models.Seat, cost int) error {
	if seat.Balance <= cost {
		return ErrInsufficientFunds
	}
	return nil
}

// BuyProperty buys the square the seat is standing on from the bank.
func (e *Engine) BuyProperty(ctx context.Context, gameID, seatID string) (*models.GameProperty, error) {
	var bought *models.GameProperty
	err := e.run(ctx, "buy_property", func(tx Tx) error {
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		seat, err := ts.actor(seatID)
		if err != nil {
			return err
		}
		if seat.RollsThisRound == 0 {
			return fmt.Errorf("%w: roll before buying", ErrInvalidState)
		}
		square := board.MustGet(seat.Position)
		if !square.Type.Ownable() {
			return fmt.Errorf("%w: %s cannot be bought", ErrInvalidState, square.Name)
		}
		gp, err := ts.lockProperty(square.Id)
		if err != nil {
			return err
		}
		if gp != nil && gp.OwnerSeatId != "" {
			return fmt.Errorf("%w: %s is already owned", ErrInvalidState, square.Name)
		}
		if err := afford(seat, square.Price); err != nil {
			return err
		}
		if gp == nil {
			gp = &models.GameProperty{Id: newID(), GameId: gameID, PropertyId: square.Id}
		}
		gp.OwnerSeatId = seat.Id
		ts.saveProperty(gp)
		ts.adjust(seat, -square.Price)
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Action:      board.Classify(square.Id),
			Amount:      -square.Price,
			Comment:     fmt.Sprintf("bought %s for %d", square.Name, square.Price),
		})
		if err := ts.flush(); err != nil {
			return err
		}
		bought = gp
		return nil
	})
	return bought, err
}

// BuildHouse adds one development level (the fifth is the hotel). The seat
// must own the whole colour group with nothing in it mortgaged.
func (e *Engine) BuildHouse(ctx context.Context, gameID, seatID string, propertyID int) (int, error) {
	var level int
	err := e.run(ctx, "build_house", func(tx Tx) error {
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		seat, err := ts.actor(seatID)
		if err != nil {
			return err
		}
		square, err := board.GetByPos(propertyID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if square.Type != models.SquareLand {
			return fmt.Errorf("%w: cannot build on %s", ErrInvalidState, square.Name)
		}
		gp, err := ts.lockProperty(square.Id)
		if err != nil {
			return err
		}
		if gp == nil || gp.OwnerSeatId != seat.Id {
			return fmt.Errorf("%w: %s is not yours", ErrInvalidState, square.Name)
		}
		if gp.Mortgaged {
			return fmt.Errorf("%w: %s is mortgaged", ErrInvalidState, square.Name)
		}
		if gp.Level >= HotelLevel {
			return fmt.Errorf("%w: %s already has a hotel", ErrInvalidState, square.Name)
		}
		for _, id := range board.Group(square.Group) {
			member := ts.props[id]
			if member == nil || member.OwnerSeatId != seat.Id || member.Mortgaged {
				return fmt.Errorf("%w: %s group is not complete", ErrInvalidState, square.Group)
			}
		}
		if err := afford(seat, square.HouseCost); err != nil {
			return err
		}
		gp.Level++
		ts.saveProperty(gp)
		ts.adjust(seat, -square.HouseCost)
		what := "house"
		if gp.Level == HotelLevel {
			what = "hotel"
		}
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Action:      models.ActionLand,
			Amount:      -square.HouseCost,
			Comment:     fmt.Sprintf("built %s on %s", what, square.Name),
		})
		if err := ts.flush(); err != nil {
			return err
		}
		level = gp.Level
		return nil
	})
	return level, err
}

// Mortgage borrows half the price of an undeveloped square from the bank.
func (e *Engine) Mortgage(ctx context.Context, gameID, seatID string, propertyID int) (int, error) {
	var amount int
	err := e.run(ctx, "mortgage", func(tx Tx) error {
		ts, seat, gp, square, err := e.ownedSquare(ctx, tx, gameID, seatID, propertyID)
		if err != nil {
			return err
		}
		if gp.Mortgaged {
			return fmt.Errorf("%w: %s is already mortgaged", ErrInvalidState, square.Name)
		}
		if gp.Level > 0 {
			return fmt.Errorf("%w: sell buildings on %s first", ErrInvalidState, square.Name)
		}
		gp.Mortgaged = true
		ts.saveProperty(gp)
		amount = square.MortgageValue()
		ts.adjust(seat, amount)
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Action:      board.Classify(square.Id),
			Amount:      amount,
			Comment:     fmt.Sprintf("mortgaged %s", square.Name),
		})
		return ts.flush()
	})
	return amount, err
}

// Unmortgage repays the mortgage plus 10% interest.
func (e *Engine) Unmortgage(ctx context.Context, gameID, seatID string, propertyID int) (int, error) {
	var cost int
	err := e.run(ctx, "unmortgage", func(tx Tx) error {
		ts, seat, gp, square, err := e.ownedSquare(ctx, tx, gameID, seatID, propertyID)
		if err != nil {
			return err
		}
		if !gp.Mortgaged {
			return fmt.Errorf("%w: %s is not mortgaged", ErrInvalidState, square.Name)
		}
		cost = square.MortgageValue() + square.MortgageValue()/10
		if err := afford(seat, cost); err != nil {
			return err
		}
		gp.Mortgaged = false
		ts.saveProperty(gp)
		ts.adjust(seat, -cost)
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Action:      board.Classify(square.Id),
			Amount:      -cost,
			Comment:     fmt.Sprintf("unmortgaged %s", square.Name),
		})
		return ts.flush()
	})
	return cost, err
}

func (e *Engine) ownedSquare(ctx context.Context, tx Tx, gameID, seatID string, propertyID int) (*turnState, *models.Seat, *models.GameProperty, models.Property, error) {
	ts, err := e.begin(ctx, tx, gameID)
	if err != nil {
		return nil, nil, nil, models.Property{}, err
	}
	seat, err := ts.actor(seatID)
	if err != nil {
		return nil, nil, nil, models.Property{}, err
	}
	square, err := board.GetByPos(propertyID)
	if err != nil {
		return nil, nil, nil, models.Property{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	gp, err := ts.lockProperty(square.Id)
	if err != nil {
		return nil, nil, nil, models.Property{}, err
	}
	if gp == nil || gp.OwnerSeatId != seat.Id {
		return nil, nil, nil, models.Property{}, fmt.Errorf("%w: %s is not yours", ErrInvalidState, square.Name)
	}
	return ts, seat, gp, square, nil
}

// UseJailCard spends a get-out-of-jail-free card, chance first.
func (e *Engine) UseJailCard(ctx context.Context, gameID, seatID string) error {
	return e.run(ctx, "use_jail_card", func(tx Tx) error {
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		seat, err := ts.actor(seatID)
		if err != nil {
			return err
		}
		if !seat.InJail {
			return fmt.Errorf("%w: seat is not in jail", ErrInvalidState)
		}
		switch {
		case seat.ChanceJailCard:
			seat.ChanceJailCard = false
		case seat.CommunityJailCard:
			seat.CommunityJailCard = false
		default:
			return fmt.Errorf("%w: no get out of jail card", ErrInvalidState)
		}
		jailOf(seat).Release().apply(seat)
		ts.touch(seat)
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Action:      models.ActionJail,
			Comment:     "used get out of jail free card",
		})
		return ts.flush()
	})
}

// PayOutOfJail releases a jailed seat for a fee before it rolls.
func (e *Engine) PayOutOfJail(ctx context.Context, gameID, seatID string) error {
	return e.run(ctx, "pay_out_of_jail", func(tx Tx) error {
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		seat, err := ts.actor(seatID)
		if err != nil {
			return err
		}
		if !seat.InJail {
			return fmt.Errorf("%w: seat is not in jail", ErrInvalidState)
		}
		if seat.RollsThisRound > 0 {
			return ErrAlreadyRolled
		}
		if err := afford(seat, PayOutOfJailFee); err != nil {
			return err
		}
		jailOf(seat).Release().apply(seat)
		ts.adjust(seat, -PayOutOfJailFee)
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Action:      models.ActionJail,
			Amount:      -PayOutOfJailFee,
			Comment:     "paid to leave jail",
		})
		return ts.flush()
	})
}
