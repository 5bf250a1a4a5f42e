package models

import (
	"encoding/json"
	"fmt"
)

type SquareType string

const (
	SquareGo        SquareType = "go"
	SquareLand      SquareType = "land"
	SquareRailway   SquareType = "railway"
	SquareUtility   SquareType = "utility"
	SquareTax       SquareType = "tax"
	SquareChance    SquareType = "chance"
	SquareCommunity SquareType = "community"
	SquareJail      SquareType = "jail"
	SquareFree      SquareType = "free"
	SquareGoToJail  SquareType = "go_to_jail"
)

func (t SquareType) Valid() bool {
	switch t {
	case SquareGo, SquareLand, SquareRailway, SquareUtility, SquareTax,
		SquareChance, SquareCommunity, SquareJail, SquareFree, SquareGoToJail:
		return true
	}
	return false
}

// Ownable reports whether a square of this type can be bought.
func (t SquareType) Ownable() bool {
	return t == SquareLand || t == SquareRailway || t == SquareUtility
}

func (t *SquareType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	st := SquareType(s)
	if !st.Valid() {
		return fmt.Errorf("unknown square type %q", s)
	}
	*t = st
	return nil
}

// Property is one of the 40 static board squares. Id is the board position.
type Property struct {
	Id        int        `json:"id"`
	Name      string     `json:"name"`
	Type      SquareType `json:"type"`
	Group     string     `json:"group,omitempty"`
	Price     int        `json:"price"`
	Rent      []int      `json:"rent,omitempty"` // site, 1-4 houses, hotel
	HouseCost int        `json:"housecost,omitempty"`
}

// MortgageValue is what the bank lends against the property.
func (p Property) MortgageValue() int {
	return p.Price / 2
}

type Deck string

const (
	DeckChance    Deck = "chance"
	DeckCommunity Deck = "community"
)

type CardType string

const (
	CardCredit        CardType = "credit"
	CardDebit         CardType = "debit"
	CardMove          CardType = "move"
	CardCreditAndMove CardType = "credit_and_move"
	CardDebitAndMove  CardType = "debit_and_move"
)

func (t *CardType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch ct := CardType(s); ct {
	case CardCredit, CardDebit, CardMove, CardCreditAndMove, CardDebitAndMove:
		*t = ct
		return nil
	}
	return fmt.Errorf("unknown card type %q", s)
}

// CardRule is the optional special behaviour layered on top of a card's base effect.
type CardRule int

const (
	RuleNone CardRule = iota
	RuleNearestUtility
	RuleNearestRailroad
	RuleGetOutOfJailFree
	RuleGoToJail
	RulePerPlayer
)

var ruleNames = map[CardRule]string{
	RuleNone:             "",
	RuleNearestUtility:   "nearest_utility",
	RuleNearestRailroad:  "nearest_railroad",
	RuleGetOutOfJailFree: "get_out_of_jail_free",
	RuleGoToJail:         "go_to_jail",
	RulePerPlayer:        "per_player",
}

func (r CardRule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RULE_%d", int(r))
}

func ParseCardRule(s string) (CardRule, error) {
	for rule, name := range ruleNames {
		if name == s {
			return rule, nil
		}
	}
	return RuleNone, fmt.Errorf("unknown card rule %q", s)
}

func (r CardRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *CardRule) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	rule, err := ParseCardRule(s)
	if err != nil {
		return err
	}
	*r = rule
	return nil
}

// Card is a chance or community chest card. A negative Position is a relative move.
type Card struct {
	Id       int      `json:"id"`
	Deck     Deck     `json:"deck"`
	Info     string   `json:"info"`
	Type     CardType `json:"type"`
	Amount   int      `json:"amount"`
	Position *int     `json:"position,omitempty"`
	Rule     CardRule `json:"rule,omitempty"`
}
