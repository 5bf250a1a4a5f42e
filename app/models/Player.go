package models

type OwnerKind string

const (
	OwnerHuman OwnerKind = "human"
	OwnerAgent OwnerKind = "agent"
)

// Seat is one player slot in one game.
type Seat struct {
	tableName struct{} `pg:"seats"`

	Id                string    `pg:"id,pk" json:"id"`
	GameId            string    `json:"game_id"`
	OwnerKind         OwnerKind `json:"owner_kind"`
	OwnerId           string    `json:"owner_id"`
	Username          string    `json:"username"`
	Balance           int       `pg:",use_zero" json:"balance"`
	Position          int       `pg:",use_zero" json:"position"`
	TurnOrder         int       `pg:",use_zero" json:"turn_order"`
	RollsThisRound    int       `pg:",use_zero" json:"rolls_this_round"`
	InJail            bool      `pg:",use_zero" json:"in_jail"`
	JailRollCount     int       `pg:",use_zero" json:"jail_roll_count"`
	ChanceJailCard    bool      `pg:",use_zero" json:"chance_jail_card"`
	CommunityJailCard bool      `pg:",use_zero" json:"community_jail_card"`
	Laps              int       `pg:",use_zero" json:"laps"`
	Active            bool      `pg:",use_zero" json:"active"`
}

// Live reports whether the seat still takes turns.
func (s *Seat) Live() bool {
	return s.Active && s.Balance > 0
}

func (s *Seat) HasJailCard() bool {
	return s.ChanceJailCard || s.CommunityJailCard
}

type JoinDto struct {
	Game_id string `json:"game_id"`
	User_id string `json:"user_id"`
}
