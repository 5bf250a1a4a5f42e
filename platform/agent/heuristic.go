package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/board"
	"github.com/DedS3t/monopoly-arena/platform/engine"
)

// Heuristic is a rule-based decision source. It keeps a cash reserve that
// depends on the profile's strategy, buys what it can afford above it,
// develops complete colour groups evenly and mortgages when short.
type Heuristic struct{}

func (Heuristic) Decide(ctx context.Context, state *engine.GameState, p Profile) (Decision, error) {
	seat := state.Seat(p.SeatId)
	if seat == nil {
		return Decision{}, fmt.Errorf("seat %s not in game %s", p.SeatId, state.Game.Id)
	}
	reserve := p.reserve()

	if d, ok := buy(state, seat, reserve); ok {
		return d, nil
	}
	if seat.Balance < reserve {
		if d, ok := mortgage(state, seat); ok {
			return d, nil
		}
		return EndTurn("short on cash, nothing left to mortgage"), nil
	}
	if d, ok := build(state, seat, reserve); ok {
		return d, nil
	}
	if d, ok := unmortgage(state, seat, reserve); ok {
		return d, nil
	}
	return EndTurn("nothing worth doing"), nil
}

func buy(state *engine.GameState, seat *models.Seat, reserve int) (Decision, bool) {
	square, err := board.GetByPos(seat.Position)
	if err != nil || !square.Type.Ownable() {
		return Decision{}, false
	}
	if gp := state.Ownership(square.Id); gp != nil && gp.OwnerSeatId != "" {
		return Decision{}, false
	}
	if seat.Balance-square.Price < reserve {
		return Decision{}, false
	}
	return Decision{
		Type:       ActionBuyProperty,
		Data:       Data{PropertyId: square.Id, Reasoning: fmt.Sprintf("%s costs %d", square.Name, square.Price)},
		Confidence: 0.9,
	}, true
}

// mortgage picks the cheapest undeveloped, unmortgaged square.
func mortgage(state *engine.GameState, seat *models.Seat) (Decision, bool) {
	var candidates []models.Property
	for _, gp := range state.OwnedBy(seat.Id) {
		if gp.Mortgaged || gp.Level > 0 {
			continue
		}
		candidates = append(candidates, board.MustGet(gp.PropertyId))
	}
	if len(candidates) == 0 {
		return Decision{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Price < candidates[j].Price })
	return Decision{
		Type:       ActionMortgage,
		Data:       Data{PropertyId: candidates[0].Id, Reasoning: "below cash reserve"},
		Confidence: 0.7,
	}, true
}

func unmortgage(state *engine.GameState, seat *models.Seat, reserve int) (Decision, bool) {
	for _, gp := range state.OwnedBy(seat.Id) {
		if !gp.Mortgaged {
			continue
		}
		square := board.MustGet(gp.PropertyId)
		cost := square.MortgageValue() + square.MortgageValue()/10
		if seat.Balance-cost >= 2*reserve {
			return Decision{
				Type:       ActionUnmortgage,
				Data:       Data{PropertyId: square.Id},
				Confidence: 0.6,
			}, true
		}
	}
	return Decision{}, false
}

// build develops the least developed square of a complete group.
func build(state *engine.GameState, seat *models.Seat, reserve int) (Decision, bool) {
	owned := make(map[int]models.GameProperty)
	for _, gp := range state.OwnedBy(seat.Id) {
		owned[gp.PropertyId] = gp
	}
	seen := make(map[string]bool)
	for _, gp := range state.OwnedBy(seat.Id) {
		square := board.MustGet(gp.PropertyId)
		if square.Type != models.SquareLand || seen[square.Group] {
			continue
		}
		seen[square.Group] = true

		var lowest *models.GameProperty
		complete := true
		for _, id := range board.Group(square.Group) {
			member, ok := owned[id]
			if !ok || member.Mortgaged {
				complete = false
				break
			}
			if lowest == nil || member.Level < lowest.Level {
				m := member
				lowest = &m
			}
		}
		if !complete || lowest.Level >= engine.HotelLevel {
			continue
		}
		target := board.MustGet(lowest.PropertyId)
		if seat.Balance-target.HouseCost < 2*reserve {
			continue
		}
		action := ActionBuildHouse
		if lowest.Level == engine.HotelLevel-1 {
			action = ActionBuildHotel
		}
		return Decision{
			Type:       action,
			Data:       Data{PropertyId: target.Id, Reasoning: "complete " + square.Group + " group"},
			Confidence: 0.8,
		}, true
	}
	return Decision{}, false
}
