package models

import "time"

type GameStatus string

const (
	StatusPending   GameStatus = "PENDING"
	StatusRunning   GameStatus = "RUNNING"
	StatusCompleted GameStatus = "COMPLETED"
	StatusStopped   GameStatus = "STOPPED"
)

func (s GameStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped
}

type GameMode string

const (
	ModeHuman GameMode = "human"
	ModeAgent GameMode = "agent"
)

type Game struct {
	tableName struct{} `pg:"games"`

	Id              string     `pg:"id,pk" json:"id"`
	Code            string     `pg:"code,unique" json:"code"`
	Name            string     `json:"name"`
	Status          GameStatus `pg:"status" json:"status"`
	Mode            GameMode   `json:"mode"`
	NextPlayerId    string     `json:"next_player_id"`
	NumberOfPlayers int        `pg:",use_zero" json:"number_of_players"`
	RoundNumber     int        `pg:",use_zero" json:"round_number"`
	WinnerSeatId    string     `json:"winner_seat_id,omitempty"`
	CreatedAt       time.Time  `pg:"default:now()" json:"created_at"`
}

type GameCreateDto struct {
	Name    string `json:"name"`
	Players int    `json:"players"`
	Mode    string `json:"mode"`
}

type AgentGameDto struct {
	Name   string   `json:"name"`
	Agents []string `json:"agents"`
}

type VerifyGameDto struct {
	Code    string `query:"code"`
	User_id string `query:"user_id"`
}

// GameProperty is the per-game ownership record of a board square.
// An empty OwnerSeatId is stored as NULL and means the bank owns it.
type GameProperty struct {
	tableName struct{} `pg:"game_properties"`

	Id          string `pg:"id,pk" json:"id"`
	GameId      string `pg:"game_id,unique:game_property" json:"game_id"`
	PropertyId  int    `pg:"property_id,use_zero,unique:game_property" json:"property_id"`
	OwnerSeatId string `json:"owner_seat_id,omitempty"`
	Mortgaged   bool   `pg:",use_zero" json:"mortgaged"`
	Level       int    `pg:",use_zero" json:"level"`
}

type Action string

const (
	ActionGo        Action = "go"
	ActionLand      Action = "land"
	ActionRailway   Action = "railway"
	ActionUtility   Action = "utility"
	ActionTax       Action = "tax"
	ActionChance    Action = "chance"
	ActionCommunity Action = "community"
	ActionJail      Action = "jail"
	ActionGoToJail  Action = "go-to-jail"
	ActionFree      Action = "free"
)

type PlayHistory struct {
	tableName struct{} `pg:"play_history"`

	Id          string    `pg:"id,pk" json:"id"`
	GameId      string    `json:"game_id"`
	SeatId      string    `json:"seat_id"`
	OldPosition int       `pg:",use_zero" json:"old_position"`
	NewPosition int       `pg:",use_zero" json:"new_position"`
	Action      Action    `json:"action"`
	Amount      int       `pg:",use_zero" json:"amount"`
	Comment     string    `json:"comment"`
	Rolled      int       `pg:",use_zero" json:"rolled"`
	Active      bool      `pg:",use_zero" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Transfer struct {
	tableName struct{} `pg:"transfers"`

	Id         string    `pg:"id,pk" json:"id"`
	GameId     string    `json:"game_id"`
	FromSeatId string    `json:"from_seat_id"`
	ToSeatId   string    `json:"to_seat_id"`
	Amount     int       `pg:",use_zero" json:"amount"`
	PropertyId int       `pg:",use_zero" json:"property_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
