package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/DedS3t/monopoly-arena/platform/queries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedDrawer always draws the same card index.
type fixedDrawer int

func (f fixedDrawer) Intn(n int) int { return int(f) % n }

type table struct {
	eng    *engine.Engine
	store  *queries.MemoryStore
	gameID string
	seats  []*models.Seat
}

func newTable(t *testing.T, players int, opts ...engine.Option) *table {
	t.Helper()
	ctx := context.Background()
	store := queries.NewMemoryStore(time.Second)
	opts = append([]engine.Option{engine.WithRand(fixedDrawer(0))}, opts...)
	eng := engine.New(store, opts...)

	game, err := eng.CreateGame(ctx, "test", players, models.ModeHuman)
	require.NoError(t, err)
	tb := &table{eng: eng, store: store, gameID: game.Id}
	for i := 0; i < players; i++ {
		seat, started, err := eng.Join(ctx, game.Id, models.OwnerHuman, "user-"+string(rune('a'+i)), "player "+string(rune('a'+i)))
		require.NoError(t, err)
		assert.Equal(t, i == players-1, started)
		tb.seats = append(tb.seats, seat)
	}
	return tb
}

func (tb *table) seat(t *testing.T, i int) models.Seat {
	t.Helper()
	for _, s := range tb.store.Seats(tb.gameID) {
		if s.Id == tb.seats[i].Id {
			return s
		}
	}
	t.Fatalf("seat %d missing", i)
	return models.Seat{}
}

func (tb *table) edit(t *testing.T, i int, fn func(s *models.Seat)) {
	t.Helper()
	s := tb.seat(t, i)
	fn(&s)
	tb.store.PutSeat(s)
}

func (tb *table) total(t *testing.T) int {
	sum := 0
	for _, s := range tb.store.Seats(tb.gameID) {
		sum += s.Balance
	}
	return sum
}

func TestCreateGameValidatesPlayers(t *testing.T) {
	eng := engine.New(queries.NewMemoryStore(time.Second))
	_, err := eng.CreateGame(context.Background(), "x", 1, models.ModeHuman)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
	_, err = eng.CreateGame(context.Background(), "x", engine.MaxPlayers+1, models.ModeHuman)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestJoinStartsGameWhenFull(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 3)

	game, ok := tb.store.Game(tb.gameID)
	require.True(t, ok)
	assert.Equal(t, models.StatusRunning, game.Status)
	assert.Equal(t, tb.seats[0].Id, game.NextPlayerId)
	assert.Equal(t, 1, game.RoundNumber)

	again, started, err := tb.eng.Join(ctx, tb.gameID, models.OwnerHuman, "user-b", "player b")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, tb.seats[1].Id, again.Id)

	_, _, err = tb.eng.Join(ctx, tb.gameID, models.OwnerHuman, "late", "late")
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	for _, s := range tb.store.Seats(tb.gameID) {
		assert.Equal(t, engine.DefaultStartingBalance, s.Balance)
	}

	found, err := tb.eng.GameByCode(ctx, game.Code)
	require.NoError(t, err)
	assert.Equal(t, game.Id, found.Id)
}

func TestRollRequiresTurnAndOneRollPerRound(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)

	_, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[1].Id, 1, 2)
	assert.ErrorIs(t, err, engine.ErrNotYourTurn)

	res, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NewPosition)
	assert.True(t, res.Buyable)
	assert.False(t, res.TurnEnded)

	_, err = tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 1, 2)
	assert.ErrorIs(t, err, engine.ErrAlreadyRolled)
	assert.ErrorIs(t, tb.eng.CanRoll(ctx, tb.gameID, tb.seats[0].Id), engine.ErrAlreadyRolled)

	_, err = tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 0, 2)
	assert.Error(t, err)
}

func TestRotationResetsRound(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 3)

	for i := range tb.seats {
		_, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[i].Id, 1, 2)
		require.NoError(t, err)
		next, err := tb.eng.EndTurn(ctx, tb.gameID, tb.seats[i].Id)
		require.NoError(t, err)
		assert.Equal(t, tb.seats[(i+1)%3].Id, next)
	}

	game, _ := tb.store.Game(tb.gameID)
	assert.Equal(t, 2, game.RoundNumber)
	assert.Equal(t, tb.seats[0].Id, game.NextPlayerId)
	for _, s := range tb.store.Seats(tb.gameID) {
		assert.Zero(t, s.RollsThisRound)
		assert.Equal(t, 3, s.Position)
	}
	assert.NoError(t, tb.eng.CanRoll(ctx, tb.gameID, tb.seats[0].Id))
}

func TestEndTurnSkipsBankruptSeat(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 3)
	tb.edit(t, 1, func(s *models.Seat) { s.Balance = 0 })

	_, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 1, 2)
	require.NoError(t, err)
	next, err := tb.eng.EndTurn(ctx, tb.gameID, tb.seats[0].Id)
	require.NoError(t, err)
	assert.Equal(t, tb.seats[2].Id, next)
}

func TestPassingGoPaysBonus(t *testing.T) {
	ctx := context.Background()
	// index 1 of the community deck is a 200 credit
	tb := newTable(t, 2, engine.WithRand(fixedDrawer(1)))
	tb.edit(t, 0, func(s *models.Seat) { s.Position = 35 })

	res, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewPosition)
	assert.True(t, res.PassedGo)
	require.NotNil(t, res.Card)
	assert.Equal(t, 18, res.Card.Id)

	s := tb.seat(t, 0)
	assert.Equal(t, 1900, s.Balance)
	assert.Equal(t, 1, s.Laps)
}

func TestRailwayRentMovesMoney(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	for _, id := range []int{5, 15, 25, 35} {
		tb.store.PutProperty(models.GameProperty{GameId: tb.gameID, PropertyId: id, OwnerSeatId: tb.seats[1].Id})
	}
	before := tb.total(t)

	res, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 2, 3)
	require.NoError(t, err)
	require.NotNil(t, res.RentPaid)
	assert.Equal(t, 200, res.RentPaid.Player)
	assert.Equal(t, 200, res.RentPaid.Owner)
	assert.False(t, res.Buyable)

	assert.Equal(t, 1300, tb.seat(t, 0).Balance)
	assert.Equal(t, 1700, tb.seat(t, 1).Balance)
	assert.Equal(t, before, tb.total(t))

	transfers := tb.store.Transfers(tb.gameID)
	require.Len(t, transfers, 1)
	assert.Equal(t, tb.seats[0].Id, transfers[0].FromSeatId)
	assert.Equal(t, tb.seats[1].Id, transfers[0].ToSeatId)
	assert.Equal(t, 200, transfers[0].Amount)
}

func TestMortgagedSquareChargesNothing(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	tb.store.PutProperty(models.GameProperty{GameId: tb.gameID, PropertyId: 5, OwnerSeatId: tb.seats[1].Id, Mortgaged: true})

	res, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 2, 3)
	require.NoError(t, err)
	assert.Nil(t, res.RentPaid)
	assert.Equal(t, 1500, tb.seat(t, 0).Balance)
}

func TestPerPlayerCardPaysEveryone(t *testing.T) {
	ctx := context.Background()
	// community deck index 8 is "pay each player $10"
	tb := newTable(t, 4, engine.WithRand(fixedDrawer(8)))
	tb.edit(t, 0, func(s *models.Seat) { s.Position = 15 })
	before := tb.total(t)

	res, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, res.Card)
	assert.Equal(t, 25, res.Card.Id)
	require.NotNil(t, res.RentPaid)
	assert.Equal(t, 30, res.RentPaid.Player)
	assert.Len(t, res.RentPaid.Players, 3)

	assert.Equal(t, 1470, tb.seat(t, 0).Balance)
	for i := 1; i < 4; i++ {
		assert.Equal(t, 1510, tb.seat(t, i).Balance)
	}
	assert.Equal(t, before, tb.total(t))
	assert.Len(t, tb.store.Transfers(tb.gameID), 3)
}

func TestLandingOnGoToJail(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	tb.edit(t, 0, func(s *models.Seat) { s.Position = 25 })

	res, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, models.ActionGoToJail, res.Action)
	assert.Equal(t, 10, res.NewPosition)
	assert.True(t, res.InJail)
	assert.True(t, res.TurnEnded)
	assert.Equal(t, tb.seats[1].Id, res.NextPlayerId)

	s := tb.seat(t, 0)
	assert.True(t, s.InJail)
	assert.Equal(t, 10, s.Position)
	assert.Equal(t, 1500, s.Balance)
}

func TestJailRolls(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	tb.edit(t, 0, func(s *models.Seat) { s.Position, s.InJail = 10, true })

	res, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 1, 2)
	require.NoError(t, err)
	assert.True(t, res.InJail)
	assert.Equal(t, models.ActionJail, res.Action)
	s := tb.seat(t, 0)
	assert.Equal(t, 1, s.JailRollCount)
	assert.Equal(t, 10, s.Position)

	_, err = tb.eng.EndTurn(ctx, tb.gameID, tb.seats[0].Id)
	require.NoError(t, err)
	_, err = tb.eng.RollDice(ctx, tb.gameID, tb.seats[1].Id, 1, 2)
	require.NoError(t, err)
	_, err = tb.eng.EndTurn(ctx, tb.gameID, tb.seats[1].Id)
	require.NoError(t, err)

	res, err = tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 3, 3)
	require.NoError(t, err)
	assert.False(t, res.InJail)
	assert.Equal(t, 16, res.NewPosition)
	s = tb.seat(t, 0)
	assert.False(t, s.InJail)
	assert.Zero(t, s.JailRollCount)
}

func TestLeavingJail(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)

	assert.ErrorIs(t, tb.eng.PayOutOfJail(ctx, tb.gameID, tb.seats[0].Id), engine.ErrInvalidState)

	tb.edit(t, 0, func(s *models.Seat) { s.Position, s.InJail, s.CommunityJailCard = 10, true, true })
	require.NoError(t, tb.eng.UseJailCard(ctx, tb.gameID, tb.seats[0].Id))
	s := tb.seat(t, 0)
	assert.False(t, s.InJail)
	assert.False(t, s.HasJailCard())

	tb.edit(t, 0, func(s *models.Seat) { s.InJail = true })
	assert.ErrorIs(t, tb.eng.UseJailCard(ctx, tb.gameID, tb.seats[0].Id), engine.ErrInvalidState)
	require.NoError(t, tb.eng.PayOutOfJail(ctx, tb.gameID, tb.seats[0].Id))
	s = tb.seat(t, 0)
	assert.False(t, s.InJail)
	assert.Equal(t, 1500-engine.PayOutOfJailFee, s.Balance)

	assert.ErrorIs(t, tb.eng.PayOutOfJail(ctx, tb.gameID, tb.seats[1].Id), engine.ErrNotYourTurn)
}

func TestBuyBuildMortgage(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	me := tb.seats[0].Id

	_, err := tb.eng.BuyProperty(ctx, tb.gameID, me)
	assert.ErrorIs(t, err, engine.ErrInvalidState, "must roll first")

	_, err = tb.eng.RollDice(ctx, tb.gameID, me, 1, 2)
	require.NoError(t, err)
	gp, err := tb.eng.BuyProperty(ctx, tb.gameID, me)
	require.NoError(t, err)
	assert.Equal(t, 3, gp.PropertyId)
	assert.Equal(t, 1440, tb.seat(t, 0).Balance)

	_, err = tb.eng.BuyProperty(ctx, tb.gameID, me)
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	_, err = tb.eng.BuildHouse(ctx, tb.gameID, me, 3)
	assert.ErrorIs(t, err, engine.ErrInvalidState, "group incomplete")

	tb.store.PutProperty(models.GameProperty{GameId: tb.gameID, PropertyId: 1, OwnerSeatId: me})
	level, err := tb.eng.BuildHouse(ctx, tb.gameID, me, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, level)
	assert.Equal(t, 1390, tb.seat(t, 0).Balance)

	_, err = tb.eng.Mortgage(ctx, tb.gameID, me, 3)
	assert.ErrorIs(t, err, engine.ErrInvalidState, "developed")

	amount, err := tb.eng.Mortgage(ctx, tb.gameID, me, 1)
	require.NoError(t, err)
	assert.Equal(t, 30, amount)
	_, err = tb.eng.BuildHouse(ctx, tb.gameID, me, 3)
	assert.ErrorIs(t, err, engine.ErrInvalidState, "group has a mortgage")

	cost, err := tb.eng.Unmortgage(ctx, tb.gameID, me, 1)
	require.NoError(t, err)
	assert.Equal(t, 33, cost)
	assert.Equal(t, 1390+30-33, tb.seat(t, 0).Balance)

	_, err = tb.eng.Mortgage(ctx, tb.gameID, tb.seats[1].Id, 1)
	assert.ErrorIs(t, err, engine.ErrNotYourTurn)

	state, err := tb.eng.State(ctx, tb.gameID)
	require.NoError(t, err)
	require.NotNil(t, state.Ownership(3))
	assert.Equal(t, me, state.Ownership(3).OwnerSeatId)
	assert.Len(t, state.OwnedBy(me), 2)
}

func TestFailedWriteRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	for _, id := range []int{5, 15, 25, 35} {
		tb.store.PutProperty(models.GameProperty{GameId: tb.gameID, PropertyId: id, OwnerSeatId: tb.seats[1].Id})
	}
	historyBefore := len(tb.store.History(tb.gameID))

	tb.store.Fault = func(op string) error {
		if op == "InsertHistory" {
			return errors.New("disk full")
		}
		return nil
	}
	_, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 2, 3)
	require.Error(t, err)

	s := tb.seat(t, 0)
	assert.Zero(t, s.Position)
	assert.Zero(t, s.RollsThisRound)
	assert.Equal(t, 1500, s.Balance)
	assert.Equal(t, 1500, tb.seat(t, 1).Balance)
	assert.Empty(t, tb.store.Transfers(tb.gameID))
	assert.Len(t, tb.store.History(tb.gameID), historyBefore)

	tb.store.Fault = nil
	_, err = tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 1300, tb.seat(t, 0).Balance)
}

func TestLockTimeoutIsRetried(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2, engine.WithRetries(3, time.Millisecond))

	var calls int32
	tb.store.Fault = func(op string) error {
		if op == "GetGame" && atomic.AddInt32(&calls, 1) == 1 {
			return engine.ErrTransientLockTimeout
		}
		return nil
	}
	_, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	tb.store.Fault = func(op string) error { return engine.ErrTransientLockTimeout }
	_, err = tb.eng.EndTurn(ctx, tb.gameID, tb.seats[0].Id)
	assert.ErrorIs(t, err, engine.ErrTransientLockTimeout)
}

func TestHistoryIsClosedAtEndOfTurn(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	me := tb.seats[0].Id

	_, err := tb.eng.RollDice(ctx, tb.gameID, me, 1, 2)
	require.NoError(t, err)
	rows, err := tb.eng.History(ctx, tb.gameID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, me, rows[0].SeatId)
	assert.True(t, rows[0].Active)
	assert.Equal(t, 3, rows[0].Rolled)

	_, err = tb.eng.EndTurn(ctx, tb.gameID, me)
	require.NoError(t, err)
	rows, err = tb.eng.History(ctx, tb.gameID, 10)
	require.NoError(t, err)
	assert.False(t, rows[0].Active)
}

func TestLeaveCompletesGame(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)

	require.NoError(t, tb.eng.Leave(ctx, tb.gameID, tb.seats[0].Id))
	game, _ := tb.store.Game(tb.gameID)
	assert.Equal(t, models.StatusCompleted, game.Status)
	assert.Equal(t, tb.seats[1].Id, game.WinnerSeatId)
	assert.False(t, tb.seat(t, 0).Active)

	_, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[1].Id, 1, 2)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
	assert.ErrorIs(t, tb.eng.Stop(ctx, tb.gameID), engine.ErrInvalidState)
}

func TestStopAndListGames(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)

	running, err := tb.eng.Games(ctx, models.StatusRunning)
	require.NoError(t, err)
	assert.Len(t, running, 1)

	require.NoError(t, tb.eng.Stop(ctx, tb.gameID))
	game, _ := tb.store.Game(tb.gameID)
	assert.Equal(t, models.StatusStopped, game.Status)
	assert.Empty(t, game.WinnerSeatId)

	running, err = tb.eng.Games(ctx, models.StatusRunning)
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestEndTurnCompletesWhenOneSeatIsLive(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	tb.edit(t, 1, func(s *models.Seat) { s.Balance = 0 })

	_, err := tb.eng.RollDice(ctx, tb.gameID, tb.seats[0].Id, 1, 2)
	require.NoError(t, err)
	_, err = tb.eng.EndTurn(ctx, tb.gameID, tb.seats[0].Id)
	require.NoError(t, err)

	game, _ := tb.store.Game(tb.gameID)
	assert.Equal(t, models.StatusCompleted, game.Status)
	assert.Equal(t, tb.seats[0].Id, game.WinnerSeatId)
}

func TestSpendingCannotBankruptHolder(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	me := tb.seats[0].Id
	tb.edit(t, 0, func(s *models.Seat) {
		s.Balance = engine.PayOutOfJailFee
		s.InJail = true
		s.Position = 10
	})
	tb.store.PutProperty(models.GameProperty{GameId: tb.gameID, PropertyId: 1, OwnerSeatId: me})
	tb.store.PutProperty(models.GameProperty{GameId: tb.gameID, PropertyId: 3, OwnerSeatId: me})

	assert.ErrorIs(t, tb.eng.PayOutOfJail(ctx, tb.gameID, me), engine.ErrInsufficientFunds)
	_, err := tb.eng.BuildHouse(ctx, tb.gameID, me, 1)
	assert.ErrorIs(t, err, engine.ErrInsufficientFunds)

	assert.Equal(t, engine.PayOutOfJailFee, tb.seat(t, 0).Balance)
	assert.NoError(t, tb.eng.CanRoll(ctx, tb.gameID, me))
}

func TestConcurrentRollsApplyOnce(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	me := tb.seats[0].Id

	const callers = 32
	var ok, already int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tb.eng.RollDice(ctx, tb.gameID, me, 1, 2)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, engine.ErrAlreadyRolled):
				atomic.AddInt32(&already, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok)
	assert.EqualValues(t, callers-1, already)
	s := tb.seat(t, 0)
	assert.Equal(t, 3, s.Position)
	assert.Equal(t, 1, s.RollsThisRound)
}

func TestConcurrentRentAndLedgerConserveMoney(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, 2)
	me, owner := tb.seats[0].Id, tb.seats[1].Id
	// Baltic Avenue (3) belongs to the other seat; Mediterranean (1) is ours.
	tb.store.PutProperty(models.GameProperty{GameId: tb.gameID, PropertyId: 3, OwnerSeatId: owner})
	tb.store.PutProperty(models.GameProperty{GameId: tb.gameID, PropertyId: 1, OwnerSeatId: me})
	before := tb.total(t)

	const rounds = 8
	var rolled, bought, mortgaged int32
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			if _, err := tb.eng.RollDice(ctx, tb.gameID, me, 1, 2); err == nil {
				atomic.AddInt32(&rolled, 1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := tb.eng.BuyProperty(ctx, tb.gameID, me); err == nil {
				atomic.AddInt32(&bought, 1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := tb.eng.Mortgage(ctx, tb.gameID, me, 1); err == nil {
				atomic.AddInt32(&mortgaged, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, rolled)
	assert.Zero(t, bought)
	assert.EqualValues(t, 1, mortgaged)

	assert.Equal(t, before+30, tb.total(t))
	assert.Equal(t, engine.DefaultStartingBalance-4+30, tb.seat(t, 0).Balance)
	assert.Equal(t, engine.DefaultStartingBalance+4, tb.seat(t, 1).Balance)

	transfers := tb.store.Transfers(tb.gameID)
	require.Len(t, transfers, 1)
	assert.Equal(t, 4, transfers[0].Amount)
	assert.Equal(t, owner, transfers[0].ToSeatId)
}
