package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/pkg"
	"github.com/sirupsen/logrus"
)

const (
	DefaultStartingBalance = 1500
	MinPlayers             = 2
	MaxPlayers             = 8
	recentHistory          = 20
)

// Engine runs every game operation as one transaction against the store.
// It is safe for concurrent use; serialization between requests on the
// same game comes from the store's row locks.
type Engine struct {
	store           Store
	rng             Drawer
	retries         int
	backoff         time.Duration
	startingBalance int
	log             *logrus.Entry
	now             func() time.Time
}

type Option func(*Engine)

// WithRand replaces the dice and card source. The Drawer must be safe for
// concurrent use if the engine is shared between goroutines.
func WithRand(d Drawer) Option {
	return func(e *Engine) { e.rng = d }
}

// WithSeed uses a deterministic, goroutine-safe source.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = newLockedRand(seed) }
}

func WithRetries(n int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.retries = n
		e.backoff = backoff
	}
}

func WithStartingBalance(balance int) Option {
	return func(e *Engine) { e.startingBalance = balance }
}

func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		rng:             newLockedRand(time.Now().UnixNano()),
		retries:         3,
		backoff:         50 * time.Millisecond,
		startingBalance: DefaultStartingBalance,
		log:             logrus.WithField("component", "engine"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// run executes fn in a transaction, retrying the whole operation while the
// store reports lock timeouts.
func (e *Engine) run(ctx context.Context, op string, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			e.log.WithFields(logrus.Fields{"op": op, "attempt": attempt}).WithError(err).Warn("retrying transaction")
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrTransientLockTimeout, ctx.Err())
			case <-time.After(e.backoff * time.Duration(attempt)):
			}
		}
		err = e.store.RunInTransaction(ctx, fn)
		if !Retryable(err) {
			return err
		}
	}
	return err
}

func (e *Engine) Dice() (int, int) {
	return e.rng.Intn(6) + 1, e.rng.Intn(6) + 1
}

func (e *Engine) CreateGame(ctx context.Context, name string, players int, mode models.GameMode) (*models.Game, error) {
	if players < MinPlayers || players > MaxPlayers {
		return nil, fmt.Errorf("%w: %d players, need %d to %d", ErrInvalidState, players, MinPlayers, MaxPlayers)
	}
	if mode == "" {
		mode = models.ModeHuman
	}
	if mode != models.ModeHuman && mode != models.ModeAgent {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidState, mode)
	}
	game := &models.Game{
		Id:              newID(),
		Code:            pkg.RandString(8),
		Name:            name,
		Status:          models.StatusPending,
		Mode:            mode,
		NumberOfPlayers: players,
		CreatedAt:       e.now(),
	}
	err := e.run(ctx, "create_game", func(tx Tx) error {
		return tx.InsertGame(ctx, game)
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"game_id": game.Id, "code": game.Code}).Info("game created")
	return game, nil
}

// Join seats an owner in a pending game. When the last seat fills the game
// starts and started is true. Joining twice returns the existing seat.
func (e *Engine) Join(ctx context.Context, gameID string, kind models.OwnerKind, ownerID, username string) (*models.Seat, bool, error) {
	var (
		joined  *models.Seat
		started bool
	)
	err := e.run(ctx, "join", func(tx Tx) error {
		joined, started = nil, false
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		active := 0
		for _, s := range ts.seats {
			if s.OwnerId == ownerID && s.Active {
				joined = s
				return nil
			}
			if s.Active {
				active++
			}
		}
		if ts.game.Status != models.StatusPending {
			return fmt.Errorf("%w: game %s is %s", ErrInvalidState, gameID, ts.game.Status)
		}
		if active >= ts.game.NumberOfPlayers {
			return fmt.Errorf("%w: game %s is full", ErrInvalidState, gameID)
		}
		seat := &models.Seat{
			Id:        newID(),
			GameId:    gameID,
			OwnerKind: kind,
			OwnerId:   ownerID,
			Username:  username,
			Balance:   e.startingBalance,
			TurnOrder: len(ts.seats),
			Active:    true,
		}
		if err := tx.InsertSeat(ctx, seat); err != nil {
			return err
		}
		ts.seats = append(ts.seats, seat)
		joined = seat

		if active+1 == ts.game.NumberOfPlayers {
			for _, s := range ts.seats {
				if s.Active {
					ts.game.NextPlayerId = s.Id
					break
				}
			}
			ts.game.Status = models.StatusRunning
			ts.game.RoundNumber = 1
			ts.dirtyGame = true
			started = true
		}
		return ts.flush()
	})
	if err != nil {
		return nil, false, err
	}
	if started {
		e.log.WithField("game_id", gameID).Info("game started")
	}
	return joined, started, nil
}

// Leave removes a seat from play. A holder passes the turn on; when a single
// live seat remains the game completes with it as winner.
func (e *Engine) Leave(ctx context.Context, gameID, seatID string) error {
	return e.run(ctx, "leave", func(tx Tx) error {
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		seat, err := ts.seat(seatID)
		if err != nil {
			return err
		}
		if !seat.Active {
			return nil
		}
		if ts.game.Status == models.StatusRunning && ts.game.NextPlayerId == seat.Id {
			if _, err := ts.endTurn(seat); err != nil {
				return err
			}
		}
		seat.Active = false
		ts.touch(seat)
		ts.settle()
		ts.record(models.PlayHistory{
			SeatId:      seat.Id,
			OldPosition: seat.Position,
			NewPosition: seat.Position,
			Comment:     seat.Username + " left the game",
		})
		return ts.flush()
	})
}

// CanRoll reports whether the seat may roll right now.
func (e *Engine) CanRoll(ctx context.Context, gameID, seatID string) error {
	return e.run(ctx, "can_roll", func(tx Tx) error {
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		seat, err := ts.seat(seatID)
		if err != nil {
			return err
		}
		return CanRoll(ts.game, seat)
	})
}

// Roll throws two dice for the seat and resolves the turn.
func (e *Engine) Roll(ctx context.Context, gameID, seatID string) (*TurnResult, error) {
	a, b := e.Dice()
	return e.RollDice(ctx, gameID, seatID, a, b)
}

// RollDice resolves a turn for a known roll. Movement, rent, card effects
// and history commit together or not at all.
func (e *Engine) RollDice(ctx context.Context, gameID, seatID string, a, b int) (*TurnResult, error) {
	var res *TurnResult
	err := e.run(ctx, "roll", func(tx Tx) error {
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if ts.game.Status != models.StatusRunning {
			return fmt.Errorf("%w: game %s is %s", ErrInvalidState, gameID, ts.game.Status)
		}
		seat, err := ts.seat(seatID)
		if err != nil {
			return err
		}
		if err := CanRoll(ts.game, seat); err != nil {
			return err
		}
		r, err := e.resolveRoll(ts, seat, a, b)
		if err != nil {
			return err
		}
		if err := ts.flush(); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"game_id": gameID,
		"seat_id": seatID,
		"dice":    res.Dice,
		"to":      res.NewPosition,
	}).Debug("turn resolved")
	return res, nil
}

// EndTurn passes the turn on and returns the new holder's seat id.
func (e *Engine) EndTurn(ctx context.Context, gameID, seatID string) (string, error) {
	var (
		nextID string
		winner string
	)
	err := e.run(ctx, "end_turn", func(tx Tx) error {
		ts, err := e.begin(ctx, tx, gameID)
		if err != nil {
			return err
		}
		seat, err := ts.actor(seatID)
		if err != nil {
			return err
		}
		next, err := ts.endTurn(seat)
		if err != nil {
			return err
		}
		if err := ts.flush(); err != nil {
			return err
		}
		nextID = next.Id
		winner = ts.game.WinnerSeatId
		return nil
	})
	if err == nil && winner != "" {
		e.log.WithFields(logrus.Fields{"game_id": gameID, "winner": winner}).Info("game completed")
	}
	return nextID, err
}

// Complete ends a running game with a winner.
func (e *Engine) Complete(ctx context.Context, gameID, winnerSeatID string) error {
	return e.finish(ctx, gameID, models.StatusCompleted, winnerSeatID)
}

// Stop ends a game without a winner.
func (e *Engine) Stop(ctx context.Context, gameID string) error {
	return e.finish(ctx, gameID, models.StatusStopped, "")
}

func (e *Engine) finish(ctx context.Context, gameID string, status models.GameStatus, winner string) error {
	return e.run(ctx, "finish", func(tx Tx) error {
		game, err := tx.GetGame(ctx, gameID, true)
		if err != nil {
			return err
		}
		if game.Status.Terminal() {
			return fmt.Errorf("%w: game %s is already %s", ErrInvalidState, gameID, game.Status)
		}
		game.Status = status
		game.WinnerSeatId = winner
		return tx.UpdateGame(ctx, game)
	})
}

// State reads the game without taking row locks.
func (e *Engine) State(ctx context.Context, gameID string) (*GameState, error) {
	var state *GameState
	err := e.run(ctx, "state", func(tx Tx) error {
		game, err := tx.GetGame(ctx, gameID, false)
		if err != nil {
			return err
		}
		seats, err := tx.GetSeats(ctx, gameID, false)
		if err != nil {
			return err
		}
		props, err := tx.GetGameProperties(ctx, gameID)
		if err != nil {
			return err
		}
		history, err := tx.ListHistory(ctx, gameID, recentHistory)
		if err != nil {
			return err
		}
		state = snapshot(game, seats, props, history)
		return nil
	})
	return state, err
}

// History returns up to limit rows, newest first.
func (e *Engine) History(ctx context.Context, gameID string, limit int) ([]models.PlayHistory, error) {
	var out []models.PlayHistory
	err := e.run(ctx, "history", func(tx Tx) error {
		if _, err := tx.GetGame(ctx, gameID, false); err != nil {
			return err
		}
		rows, err := tx.ListHistory(ctx, gameID, limit)
		if err != nil {
			return err
		}
		out = make([]models.PlayHistory, 0, len(rows))
		for _, h := range rows {
			out = append(out, *h)
		}
		return nil
	})
	return out, err
}

func (e *Engine) GameByCode(ctx context.Context, code string) (*models.Game, error) {
	var game *models.Game
	err := e.run(ctx, "game_by_code", func(tx Tx) error {
		var err error
		game, err = tx.GetGameByCode(ctx, code)
		return err
	})
	return game, err
}

// Games lists games in a status; an empty status lists all of them.
func (e *Engine) Games(ctx context.Context, status models.GameStatus) ([]*models.Game, error) {
	var games []*models.Game
	err := e.run(ctx, "games", func(tx Tx) error {
		var err error
		games, err = tx.ListGames(ctx, status)
		return err
	})
	return games, err
}
