package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/DedS3t/monopoly-arena/platform/events"
	"github.com/DedS3t/monopoly-arena/platform/queries"
	jwt "github.com/form3tech-oss/jwt-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroDrawer rolls double ones and draws the top card.
type zeroDrawer struct{}

func (zeroDrawer) Intn(int) int { return 0 }

type fakeClient struct {
	mu      sync.Mutex
	id      string
	rooms   map[string]bool
	emitted map[string][]interface{}
}

func newFakeClient(id string) *fakeClient {
	return &fakeClient{id: id, rooms: map[string]bool{}, emitted: map[string][]interface{}{}}
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Emit(msg string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted[msg] = append(c.emitted[msg], v...)
}

func (c *fakeClient) Join(room string)  { c.rooms[room] = true }
func (c *fakeClient) Leave(room string) { delete(c.rooms, room) }

func (c *fakeClient) errors() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted[events.ErrorMessage]
}

type fixture struct {
	srv    *Server
	eng    *engine.Engine
	store  *queries.MemoryStore
	bus    *events.Recorder
	gameID string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	users := queries.NewMemoryUserStore()
	for _, id := range []string{"ann", "bob"} {
		require.NoError(t, users.CreateUser(ctx, &models.User{Id: id, Email: id + "@example.com"}))
	}
	store := queries.NewMemoryStore(time.Second)
	eng := engine.New(store, engine.WithRand(zeroDrawer{}))
	game, err := eng.CreateGame(ctx, "table", 2, models.ModeHuman)
	require.NoError(t, err)

	bus := events.NewRecorder()
	srv, err := NewServer(eng, users, bus, opts...)
	require.NoError(t, err)
	return &fixture{srv: srv, eng: eng, store: store, bus: bus, gameID: game.Id}
}

func (f *fixture) send(c client, h handler, body map[string]string) {
	raw, _ := json.Marshal(body)
	f.srv.dispatch(c, "test", string(raw), h)
}

func (f *fixture) req(user string) map[string]string {
	return map[string]string{"game_id": f.gameID, "user_id": user}
}

func TestJoinStartsGameAndAnnouncesTurn(t *testing.T) {
	f := newFixture(t)
	ann, bob := newFakeClient("1"), newFakeClient("2")

	f.send(ann, f.srv.joinGame, f.req("ann"))
	assert.Empty(t, ann.errors())
	assert.True(t, ann.rooms[f.gameID])
	assert.Empty(t, f.bus.Named(events.GameStarted))

	f.send(bob, f.srv.joinGame, f.req("bob"))
	assert.Empty(t, bob.errors())
	require.Len(t, f.bus.Named(events.GameStarted), 1)
	turns := f.bus.Named(events.ChangeTurn)
	require.Len(t, turns, 1)

	state, err := f.eng.State(context.Background(), f.gameID)
	require.NoError(t, err)
	assert.Equal(t, state.Game.NextPlayerId, turns[0].Payload)
	assert.Len(t, f.bus.Named(events.PlayerJoined), 2)
}

func TestTurnFlowErrors(t *testing.T) {
	f := newFixture(t)
	ann, bob := newFakeClient("1"), newFakeClient("2")
	f.send(ann, f.srv.joinGame, f.req("ann"))
	f.send(bob, f.srv.joinGame, f.req("bob"))

	f.send(bob, f.srv.rollDice, f.req("bob"))
	assert.Equal(t, []interface{}{"Not your turn"}, bob.errors())

	f.send(ann, f.srv.endTurn, f.req("ann"))
	assert.Equal(t, []interface{}{"You must roll the die first!"}, ann.errors())

	f.send(ann, f.srv.rollDice, f.req("ann"))
	require.Len(t, f.bus.Named(events.DiceRolled), 1)
	res := f.bus.Named(events.DiceRolled)[0].Payload.(*engine.TurnResult)
	assert.Equal(t, [2]int{1, 1}, res.Dice)
	assert.False(t, res.TurnEnded)

	f.send(ann, f.srv.rollDice, f.req("ann"))
	assert.Contains(t, ann.errors(), "You have already rolled the dice")

	f.send(ann, f.srv.endTurn, f.req("ann"))
	turns := f.bus.Named(events.ChangeTurn)
	last := turns[len(turns)-1]
	state, err := f.eng.State(context.Background(), f.gameID)
	require.NoError(t, err)
	assert.Equal(t, state.Game.NextPlayerId, last.Payload)
	assert.Equal(t, "bob@example.com", state.Seat(state.Game.NextPlayerId).Username)
}

func (f *fixture) seat(t *testing.T, owner string) models.Seat {
	t.Helper()
	for _, s := range f.store.Seats(f.gameID) {
		if s.OwnerId == owner {
			return s
		}
	}
	t.Fatalf("no seat for %s", owner)
	return models.Seat{}
}

func TestBrokeHolderCanStillEndTurn(t *testing.T) {
	f := newFixture(t)
	ann, bob := newFakeClient("1"), newFakeClient("2")
	f.send(ann, f.srv.joinGame, f.req("ann"))
	f.send(bob, f.srv.joinGame, f.req("bob"))

	holder := f.seat(t, "ann")
	holder.Balance = 50
	f.store.PutSeat(holder)
	for _, pos := range []int{1, 3} {
		f.store.PutProperty(models.GameProperty{GameId: f.gameID, PropertyId: pos, OwnerSeatId: holder.Id})
	}

	house := f.req("ann")
	house["card_pos"] = "1"
	f.send(ann, f.srv.buyHouse, house)
	assert.Equal(t, []interface{}{"Insufficient funds"}, ann.errors())
	assert.Equal(t, 50, f.seat(t, "ann").Balance)

	holder = f.seat(t, "ann")
	holder.Balance = 0
	f.store.PutSeat(holder)

	f.send(ann, f.srv.rollDice, f.req("ann"))
	require.Len(t, ann.errors(), 2)
	f.send(ann, f.srv.endTurn, f.req("ann"))
	assert.Len(t, ann.errors(), 2)

	require.Len(t, f.bus.Named(events.GameEnded), 1)
	game := f.bus.Named(events.GameEnded)[0].Payload.(models.Game)
	assert.Equal(t, models.StatusCompleted, game.Status)
	assert.Equal(t, f.seat(t, "bob").Id, game.WinnerSeatId)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)
	c := newFakeClient("1")

	f.srv.dispatch(c, "roll-dice", "{not json", f.srv.rollDice)
	f.send(c, f.srv.rollDice, map[string]string{"game_id": f.gameID})
	f.send(c, f.srv.rollDice, map[string]string{"user_id": "ann"})
	f.send(c, f.srv.joinGame, f.req("nobody"))
	f.send(c, f.srv.buyHouse, map[string]string{"game_id": f.gameID, "user_id": "ann", "card_pos": "x"})

	errs := c.errors()
	require.Len(t, errs, 5)
	assert.Equal(t, "Malformed request", errs[0])
	assert.Equal(t, "User not authenticated", errs[1])
	assert.Equal(t, "Invalid game", errs[2])
	assert.Equal(t, "User retrieval failed", errs[3])
}

func TestTokenAuthentication(t *testing.T) {
	f := newFixture(t, WithTokenSecret("s3cret"))
	c := newFakeClient("1")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "ann"})
	signed, err := token.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	f.send(c, f.srv.joinGame, map[string]string{"game_id": f.gameID, "user_id": "bob", "token": signed})
	assert.Empty(t, c.errors())
	state, err := f.eng.State(context.Background(), f.gameID)
	require.NoError(t, err)
	require.Len(t, state.Seats, 1)
	assert.Equal(t, "ann", state.Seats[0].OwnerId)

	f.send(c, f.srv.joinGame, map[string]string{"game_id": f.gameID, "token": "garbage"})
	assert.Equal(t, []interface{}{"User not authenticated"}, c.errors())
}

func TestLeaveEndsTwoSeatGame(t *testing.T) {
	f := newFixture(t)
	ann, bob := newFakeClient("1"), newFakeClient("2")
	f.send(ann, f.srv.joinGame, f.req("ann"))
	f.send(bob, f.srv.joinGame, f.req("bob"))

	f.send(ann, f.srv.leaveGame, f.req("ann"))
	assert.Empty(t, ann.errors())
	assert.False(t, ann.rooms[f.gameID])
	require.Len(t, f.bus.Named(events.GameEnded), 1)
	game := f.bus.Named(events.GameEnded)[0].Payload.(models.Game)
	assert.Equal(t, models.StatusCompleted, game.Status)
}

type downBus struct{}

func (downBus) Broadcast(events.Event) error { return errors.New("broker unreachable") }

type downMirror struct{}

func (downMirror) SetTurn(string, string) error { return errors.New("redis down") }
func (downMirror) Finish(string) error          { return errors.New("redis down") }

func TestSideEffectFailuresAreLogged(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	f := newFixture(t, WithTurnMirror(downMirror{}))
	f.srv.bus = downBus{}
	ann, bob := newFakeClient("1"), newFakeClient("2")
	f.send(ann, f.srv.joinGame, f.req("ann"))
	f.send(bob, f.srv.joinGame, f.req("bob"))
	f.send(ann, f.srv.leaveGame, f.req("ann"))
	assert.Empty(t, ann.errors())
	assert.Empty(t, bob.errors())

	warnings := map[string]int{}
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings[e.Message]++
		}
	}
	assert.Equal(t, 1, warnings["turn mirror finish failed"])
	assert.Equal(t, 1, warnings["turn mirror failed"])
	assert.GreaterOrEqual(t, warnings["broadcast failed"], 4)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Insufficient funds", Message(engine.ErrInsufficientFunds))
	assert.Equal(t, "Server busy, try again", Message(engine.ErrTransientLockTimeout))
	assert.Equal(t, "invalid state", Message(engine.ErrInvalidState))
}
