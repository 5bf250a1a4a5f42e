package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/DedS3t/monopoly-arena/platform/engine"
)

type ActionType string

const (
	ActionBuyProperty  ActionType = "buy_property"
	ActionPayRent      ActionType = "pay_rent"
	ActionMortgage     ActionType = "mortgage"
	ActionUnmortgage   ActionType = "unmortgage"
	ActionBuildHouse   ActionType = "build_house"
	ActionBuildHotel   ActionType = "build_hotel"
	ActionProposeTrade ActionType = "propose_trade"
	ActionEndTurn      ActionType = "end_turn"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionBuyProperty, ActionPayRent, ActionMortgage, ActionUnmortgage,
		ActionBuildHouse, ActionBuildHotel, ActionProposeTrade, ActionEndTurn:
		return true
	}
	return false
}

type Data struct {
	PropertyId int    `json:"property_id,omitempty"`
	Target     string `json:"target,omitempty"`
	Amount     int    `json:"amount,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
}

type Decision struct {
	Type       ActionType `json:"type"`
	Data       Data       `json:"data"`
	Confidence float64    `json:"confidence"`
}

func EndTurn(reason string) Decision {
	return Decision{Type: ActionEndTurn, Data: Data{Reasoning: reason}, Confidence: 1}
}

type Strategy string

const (
	Balanced     Strategy = "balanced"
	Aggressive   Strategy = "aggressive"
	Conservative Strategy = "conservative"
)

var reserves = map[Strategy]int{
	Aggressive:   100,
	Balanced:     200,
	Conservative: 400,
}

func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return Balanced, nil
	}
	if _, ok := reserves[st]; !ok {
		return "", fmt.Errorf("unknown strategy %q", s)
	}
	return st, nil
}

// Profile describes the agent sitting in one seat.
type Profile struct {
	SeatId   string   `json:"seat_id"`
	Name     string   `json:"name"`
	Strategy Strategy `json:"strategy"`
	// Reserve is the cash the agent tries to keep; zero uses the
	// strategy's default.
	Reserve int `json:"reserve,omitempty"`
}

func (p Profile) reserve() int {
	if p.Reserve > 0 {
		return p.Reserve
	}
	if r, ok := reserves[p.Strategy]; ok {
		return r
	}
	return reserves[Balanced]
}

// DecisionSource picks the next action for the seat in p. It is called
// after the seat has rolled, and again after each action until it returns
// end_turn.
type DecisionSource interface {
	Decide(ctx context.Context, state *engine.GameState, p Profile) (Decision, error)
}
