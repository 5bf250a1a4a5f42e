package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/board"
	uuid "github.com/satori/go.uuid"
)

// RentPaid is the monetary summary of a landing. Player is what the lander
// paid, Owner what the square's owner received and Players the per-seat
// legs of a per_player card.
type RentPaid struct {
	Player  int            `json:"player"`
	Owner   int            `json:"owner"`
	Players map[string]int `json:"players,omitempty"`
}

// TurnResult is the payload handed to sockets and the runner after a roll.
type TurnResult struct {
	SeatId       string        `json:"seat_id"`
	Dice         [2]int        `json:"dice"`
	OldPosition  int           `json:"old_position"`
	NewPosition  int           `json:"new_position"`
	Action       models.Action `json:"action"`
	PassedGo     bool          `json:"passed_go"`
	RentPaid     *RentPaid     `json:"rent_paid,omitempty"`
	TaxPaid      int           `json:"tax_paid,omitempty"`
	Card         *models.Card  `json:"card,omitempty"`
	Buyable      bool          `json:"buyable"`
	InJail       bool          `json:"in_jail"`
	TurnEnded    bool          `json:"turn_ended"`
	NextPlayerId string        `json:"next_player_id,omitempty"`
}

// GameState is the observable state of one game.
type GameState struct {
	Game       models.Game           `json:"game"`
	Seats      []models.Seat         `json:"seats"`
	Properties []models.GameProperty `json:"properties"`
	History    []models.PlayHistory  `json:"history,omitempty"`
}

func (s *GameState) Seat(id string) *models.Seat {
	for i := range s.Seats {
		if s.Seats[i].Id == id {
			return &s.Seats[i]
		}
	}
	return nil
}

// Holder returns the seat holding the turn, or nil.
func (s *GameState) Holder() *models.Seat {
	return s.Seat(s.Game.NextPlayerId)
}

func (s *GameState) Ownership(propertyID int) *models.GameProperty {
	for i := range s.Properties {
		if s.Properties[i].PropertyId == propertyID {
			return &s.Properties[i]
		}
	}
	return nil
}

func (s *GameState) OwnedBy(seatID string) []models.GameProperty {
	var out []models.GameProperty
	for _, gp := range s.Properties {
		if gp.OwnerSeatId == seatID {
			out = append(out, gp)
		}
	}
	return out
}

func (s *GameState) LiveSeats() []models.Seat {
	var out []models.Seat
	for _, seat := range s.Seats {
		if seat.Live() {
			out = append(out, seat)
		}
	}
	return out
}

func (s *GameState) Phase(seatID string) SeatPhase {
	seat := s.Seat(seatID)
	if seat == nil {
		return PhaseWaitingTurn
	}
	return PhaseOf(&s.Game, seat)
}

func newID() string {
	return uuid.NewV4().String()
}

// turnState buffers every change made while handling one request and
// writes it in flush, inside the same transaction.
type turnState struct {
	ctx   context.Context
	tx    Tx
	game  *models.Game
	seats []*models.Seat
	props map[int]*models.GameProperty
	now   time.Time

	dirtyGame  bool
	dirtySeats map[string]bool
	dirtyProps map[int]bool
	history    []*models.PlayHistory
	transfers  []*models.Transfer
}

func (e *Engine) begin(ctx context.Context, tx Tx, gameID string) (*turnState, error) {
	game, err := tx.GetGame(ctx, gameID, true)
	if err != nil {
		return nil, err
	}
	seats, err := tx.GetSeats(ctx, gameID, true)
	if err != nil {
		return nil, err
	}
	sortByTurnOrder(seats)
	return &turnState{
		ctx:        ctx,
		tx:         tx,
		game:       game,
		seats:      seats,
		now:        e.now(),
		dirtySeats: make(map[string]bool),
		dirtyProps: make(map[int]bool),
	}, nil
}

func (ts *turnState) seat(id string) (*models.Seat, error) {
	for _, s := range ts.seats {
		if s.Id == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: seat %s not found in game %s", ErrInvalidState, id, ts.game.Id)
}

// actor returns the seat if it may act right now.
func (ts *turnState) actor(id string) (*models.Seat, error) {
	if ts.game.Status != models.StatusRunning {
		return nil, fmt.Errorf("%w: game %s is %s", ErrInvalidState, ts.game.Id, ts.game.Status)
	}
	seat, err := ts.seat(id)
	if err != nil {
		return nil, err
	}
	if ts.game.NextPlayerId != seat.Id {
		return nil, ErrNotYourTurn
	}
	return seat, nil
}

// others lists the seats still present besides seat, in turn order.
func (ts *turnState) others(seat *models.Seat) []*models.Seat {
	var out []*models.Seat
	for _, s := range ts.seats {
		if s.Id != seat.Id && s.Active {
			out = append(out, s)
		}
	}
	return out
}

func (ts *turnState) touch(seat *models.Seat) {
	ts.dirtySeats[seat.Id] = true
}

func (ts *turnState) adjust(seat *models.Seat, amount int) {
	seat.Balance += amount
	ts.touch(seat)
}

func (ts *turnState) record(h models.PlayHistory) *models.PlayHistory {
	h.Id = newID()
	h.GameId = ts.game.Id
	h.CreatedAt = ts.now.Add(time.Duration(len(ts.history)) * time.Microsecond)
	ts.history = append(ts.history, &h)
	return &h
}

// pay moves amount from payer to payee and writes one history row per leg
// plus a transfer record.
func (ts *turnState) pay(payer, payee *models.Seat, amount int, square models.Property, action models.Action, reason string) {
	ts.adjust(payer, -amount)
	ts.adjust(payee, amount)
	ts.record(models.PlayHistory{
		SeatId:      payer.Id,
		OldPosition: payer.Position,
		NewPosition: payer.Position,
		Action:      action,
		Amount:      -amount,
		Comment:     fmt.Sprintf("paid %d %s to %s on %s", amount, reason, payee.Username, square.Name),
	})
	ts.record(models.PlayHistory{
		SeatId:      payee.Id,
		OldPosition: payee.Position,
		NewPosition: payee.Position,
		Action:      action,
		Amount:      amount,
		Comment:     fmt.Sprintf("received %d %s from %s on %s", amount, reason, payer.Username, square.Name),
	})
	ts.transfers = append(ts.transfers, &models.Transfer{
		Id:         newID(),
		GameId:     ts.game.Id,
		FromSeatId: payer.Id,
		ToSeatId:   payee.Id,
		Amount:     amount,
		PropertyId: square.Id,
		Reason:     reason,
		CreatedAt:  ts.now,
	})
}

func (ts *turnState) loadProperties() error {
	if ts.props != nil {
		return nil
	}
	list, err := ts.tx.GetGameProperties(ts.ctx, ts.game.Id)
	if err != nil {
		return err
	}
	ts.props = make(map[int]*models.GameProperty, len(list))
	for _, gp := range list {
		ts.props[gp.PropertyId] = gp
	}
	return nil
}

// lockProperty row-locks the ownership record of a square. It returns nil
// for squares the bank still owns.
func (ts *turnState) lockProperty(id int) (*models.GameProperty, error) {
	if err := ts.loadProperties(); err != nil {
		return nil, err
	}
	gp, err := ts.tx.LockGameProperty(ts.ctx, ts.game.Id, id)
	if err != nil {
		return nil, err
	}
	if gp != nil {
		ts.props[id] = gp
	}
	return gp, nil
}

func (ts *turnState) saveProperty(gp *models.GameProperty) {
	ts.props[gp.PropertyId] = gp
	ts.dirtyProps[gp.PropertyId] = true
}

// ownedCount counts the squares of type t the seat owns, mortgaged or not.
func (ts *turnState) ownedCount(ownerID string, t models.SquareType) (int, error) {
	if err := ts.loadProperties(); err != nil {
		return 0, err
	}
	n := 0
	for id, gp := range ts.props {
		if gp.OwnerSeatId != ownerID {
			continue
		}
		square, err := board.GetByPos(id)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if square.Type == t {
			n++
		}
	}
	return n, nil
}

// endTurn hands the turn to the next live seat and closes the round when
// everyone has rolled or the rotation wrapped.
func (ts *turnState) endTurn(seat *models.Seat) (*models.Seat, error) {
	if ts.game.NextPlayerId != seat.Id {
		return nil, ErrNotYourTurn
	}
	for _, h := range ts.history {
		if h.SeatId == seat.Id {
			h.Active = false
		}
	}
	if err := ts.tx.DeactivateHistory(ts.ctx, ts.game.Id, seat.Id); err != nil {
		return nil, err
	}

	next := nextHolder(ts.seats, seat)
	wrapped := next.TurnOrder <= seat.TurnOrder
	ts.game.NextPlayerId = next.Id
	ts.dirtyGame = true
	if wrapped || roundComplete(ts.seats) {
		for _, s := range ts.seats {
			if s.RollsThisRound != 0 {
				s.RollsThisRound = 0
				ts.touch(s)
			}
		}
		ts.game.RoundNumber++
	}
	ts.settle()
	return next, nil
}

// settle completes a running game once a single live seat remains.
func (ts *turnState) settle() {
	if ts.game.Status != models.StatusRunning || len(ts.seats) < 2 {
		return
	}
	var live []*models.Seat
	for _, s := range ts.seats {
		if s.Live() {
			live = append(live, s)
		}
	}
	if len(live) == 1 {
		ts.game.Status = models.StatusCompleted
		ts.game.WinnerSeatId = live[0].Id
		ts.dirtyGame = true
	}
}

func (ts *turnState) flush() error {
	if ts.dirtyGame {
		if err := ts.tx.UpdateGame(ts.ctx, ts.game); err != nil {
			return err
		}
	}
	for _, s := range ts.seats {
		if !ts.dirtySeats[s.Id] {
			continue
		}
		if err := ts.tx.UpdateSeat(ts.ctx, s); err != nil {
			return err
		}
	}
	ids := make([]int, 0, len(ts.dirtyProps))
	for id := range ts.dirtyProps {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := ts.tx.SaveGameProperty(ts.ctx, ts.props[id]); err != nil {
			return err
		}
	}
	for _, h := range ts.history {
		if err := ts.tx.InsertHistory(ts.ctx, h); err != nil {
			return err
		}
	}
	for _, t := range ts.transfers {
		if err := ts.tx.InsertTransfer(ts.ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func snapshot(game *models.Game, seats []*models.Seat, props []*models.GameProperty, history []*models.PlayHistory) *GameState {
	state := &GameState{Game: *game}
	for _, s := range seats {
		state.Seats = append(state.Seats, *s)
	}
	sort.SliceStable(state.Seats, func(i, j int) bool { return state.Seats[i].TurnOrder < state.Seats[j].TurnOrder })
	for _, gp := range props {
		state.Properties = append(state.Properties, *gp)
	}
	sort.Slice(state.Properties, func(i, j int) bool { return state.Properties[i].PropertyId < state.Properties[j].PropertyId })
	for _, h := range history {
		state.History = append(state.History, *h)
	}
	return state
}
