package engine

import (
	"fmt"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/board"
)

// GoToJailPenalty is charged by a go_to_jail card when the drawer's old
// position is past the card's target.
const GoToJailPenalty = 200

// Drawer is the random source for card draws. *rand.Rand satisfies it.
type Drawer interface {
	Intn(n int) int
}

func Draw(deck []models.Card, r Drawer) (models.Card, error) {
	if len(deck) == 0 {
		return models.Card{}, fmt.Errorf("%w: empty deck", ErrInvalidState)
	}
	return deck[r.Intn(len(deck))], nil
}

type CardEffect struct {
	Card        models.Card
	OldPosition int
	NewPosition int
	Moved       bool
	// Delta is the signed change to the drawer's balance.
	Delta    int
	JailCard bool
	Jailed   bool
	Penalty  bool
	// Payees maps each other seat to what it receives from the drawer.
	Payees map[string]int
}

// ApplyCard computes a card's effect for a drawer standing on position.
// others are the ids of the other seats still in the game.
func ApplyCard(card models.Card, position int, others []string) (CardEffect, error) {
	eff := CardEffect{Card: card, OldPosition: position, NewPosition: position}

	switch card.Type {
	case models.CardCredit, models.CardCreditAndMove:
		eff.Delta = card.Amount
	case models.CardDebit, models.CardDebitAndMove:
		eff.Delta = -card.Amount
	case models.CardMove:
	default:
		return CardEffect{}, fmt.Errorf("%w: card %d has type %q", ErrInvalidState, card.Id, card.Type)
	}
	if card.Position != nil {
		eff.NewPosition = target(position, *card.Position)
		eff.Moved = true
	}

	switch card.Rule {
	case models.RuleNone:
	case models.RuleNearestUtility:
		eff.NewPosition = board.NextOfType(position, models.SquareUtility)
		eff.Moved = true
	case models.RuleNearestRailroad:
		eff.NewPosition = board.NextOfType(position, models.SquareRailway)
		eff.Moved = true
	case models.RuleGetOutOfJailFree:
		eff = CardEffect{Card: card, OldPosition: position, NewPosition: position, JailCard: true}
	case models.RuleGoToJail:
		// compares against the base target, so it also fires on plain
		// backward moves to the jail square
		if eff.OldPosition > eff.NewPosition {
			eff.Delta = -GoToJailPenalty
			eff.Penalty = true
		}
		eff.NewPosition = board.JailPosition
		eff.Moved = true
		eff.Jailed = true
	case models.RulePerPlayer:
		eff.Delta = -card.Amount * len(others)
		eff.Payees = make(map[string]int, len(others))
		for _, id := range others {
			eff.Payees[id] = card.Amount
		}
	default:
		return CardEffect{}, fmt.Errorf("%w: card %d has rule %s", ErrInvalidState, card.Id, card.Rule)
	}
	return eff, nil
}

func target(position, cardPosition int) int {
	if cardPosition < 0 {
		return board.Wrap(position + cardPosition)
	}
	return board.Wrap(cardPosition)
}
