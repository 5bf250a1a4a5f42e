package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/DedS3t/monopoly-arena/platform/events"
	"github.com/DedS3t/monopoly-arena/platform/queries"
	jwt "github.com/form3tech-oss/jwt-go"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const namespace = "/"

var errMustRoll = fmt.Errorf("%w: roll before ending the turn", engine.ErrInvalidState)

// Engine is what the socket handlers need from *engine.Engine.
type Engine interface {
	State(ctx context.Context, gameID string) (*engine.GameState, error)
	Join(ctx context.Context, gameID string, kind models.OwnerKind, ownerID, username string) (*models.Seat, bool, error)
	Leave(ctx context.Context, gameID, seatID string) error
	Roll(ctx context.Context, gameID, seatID string) (*engine.TurnResult, error)
	EndTurn(ctx context.Context, gameID, seatID string) (string, error)
	BuyProperty(ctx context.Context, gameID, seatID string) (*models.GameProperty, error)
	BuildHouse(ctx context.Context, gameID, seatID string, propertyID int) (int, error)
	Mortgage(ctx context.Context, gameID, seatID string, propertyID int) (int, error)
	Unmortgage(ctx context.Context, gameID, seatID string, propertyID int) (int, error)
	PayOutOfJail(ctx context.Context, gameID, seatID string) error
	UseJailCard(ctx context.Context, gameID, seatID string) error
}

// TurnMirror records the current turn holder outside the database.
type TurnMirror interface {
	SetTurn(gameID, seatID string) error
	Finish(gameID string) error
}

// client is the part of socketio.Conn the handlers use.
type client interface {
	ID() string
	Emit(msg string, v ...interface{})
	Join(room string)
	Leave(room string)
}

type request struct {
	GameID  string `json:"game_id"`
	UserID  string `json:"user_id"`
	Token   string `json:"token"`
	CardPos string `json:"card_pos"`
}

type Server struct {
	io      *socketio.Server
	eng     Engine
	users   queries.UserStore
	bus     events.Broadcaster
	turns   TurnMirror
	secret  []byte
	timeout time.Duration
	log     *logrus.Entry
}

type Option func(*Server)

// WithTokenSecret makes every request carry a JWT whose user_id claim
// replaces the user_id field.
func WithTokenSecret(secret string) Option {
	return func(s *Server) { s.secret = []byte(secret) }
}

func WithTurnMirror(m TurnMirror) Option {
	return func(s *Server) { s.turns = m }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer registers the game handlers. Events caused by players are sent
// to bus, which is expected to include the server itself.
func NewServer(eng Engine, users queries.UserStore, bus events.Broadcaster, opts ...Option) (*Server, error) {
	io, err := socketio.NewServer(nil)
	if err != nil {
		return nil, err
	}
	s := &Server{
		io:      io,
		eng:     eng,
		users:   users,
		bus:     bus,
		timeout: 10 * time.Second,
		log:     logrus.WithField("component", "sockets"),
	}
	for _, opt := range opts {
		opt(s)
	}

	io.OnConnect(namespace, func(c socketio.Conn) error {
		c.SetContext("")
		s.log.WithField("conn", c.ID()).Debug("connected")
		return nil
	})
	s.on("join-game", s.joinGame)
	s.on("leave-game", s.leaveGame)
	s.on("roll-dice", s.rollDice)
	s.on("request-buy", s.requestBuy)
	s.on("pay-out-jail", s.payOutOfJail)
	s.on("use-jail-card", s.useJailCard)
	s.on("buy-house", s.buyHouse)
	s.on("mortgage", s.mortgage)
	s.on("unmortgage", s.unmortgage)
	s.on("end-turn", s.endTurn)

	io.OnError(namespace, func(c socketio.Conn, err error) {
		s.log.WithError(err).Warn("socket error")
	})
	io.OnDisconnect(namespace, func(c socketio.Conn, reason string) {
		for _, room := range c.Rooms() {
			s.io.BroadcastToRoom(namespace, room, events.PlayerLeft)
		}
		c.LeaveAll()
	})
	return s, nil
}

type handler func(ctx context.Context, c client, req request) error

// on wraps a handler with payload parsing, a deadline and error reporting.
func (s *Server) on(event string, h handler) {
	s.io.OnEvent(namespace, event, func(c socketio.Conn, msg string) {
		s.dispatch(c, event, msg, h)
	})
}

func (s *Server) dispatch(c client, event, msg string, h handler) {
	var req request
	if err := json.Unmarshal([]byte(msg), &req); err != nil {
		c.Emit(events.ErrorMessage, "Malformed request")
		return
	}
	if err := s.authenticate(&req); err != nil {
		c.Emit(events.ErrorMessage, "User not authenticated")
		return
	}
	if req.GameID == "" {
		c.Emit(events.ErrorMessage, "Invalid game")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := h(ctx, c, req); err != nil {
		s.log.WithFields(logrus.Fields{"event": event, "game_id": req.GameID, "user_id": req.UserID}).WithError(err).Debug("request rejected")
		c.Emit(events.ErrorMessage, Message(err))
	}
}

func (s *Server) authenticate(req *request) error {
	if len(s.secret) == 0 {
		if req.UserID == "" {
			return errors.New("missing user_id")
		}
		return nil
	}
	token, err := jwt.Parse(req.Token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("bad claims")
	}
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return errors.New("missing user_id claim")
	}
	req.UserID = id
	return nil
}

// Message turns an engine error into the text shown to a player.
func Message(err error) string {
	switch {
	case errors.Is(err, errMustRoll):
		return "You must roll the die first!"
	case errors.Is(err, engine.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, engine.ErrAlreadyRolled):
		return "You have already rolled the dice"
	case errors.Is(err, engine.ErrInsufficientFunds):
		return "Insufficient funds"
	case errors.Is(err, engine.ErrTransientLockTimeout):
		return "Server busy, try again"
	case errors.Is(err, queries.ErrUserNotFound):
		return "User retrieval failed"
	}
	return err.Error()
}

// seatOf finds the seat a user holds in a game.
func (s *Server) seatOf(ctx context.Context, req request) (*engine.GameState, *models.Seat, error) {
	state, err := s.eng.State(ctx, req.GameID)
	if err != nil {
		return nil, nil, err
	}
	for i := range state.Seats {
		seat := &state.Seats[i]
		if seat.OwnerId == req.UserID && seat.Active {
			return state, seat, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: user %s has no seat in game %s", engine.ErrInvalidState, req.UserID, req.GameID)
}

func (s *Server) publish(name, gameID string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Broadcast(events.New(name, gameID, payload)); err != nil {
		s.log.WithFields(logrus.Fields{"game_id": gameID, "event": name}).WithError(err).Warn("broadcast failed")
	}
}

func (s *Server) changeTurn(gameID, seatID string) {
	if s.turns != nil {
		if err := s.turns.SetTurn(gameID, seatID); err != nil {
			s.log.WithField("game_id", gameID).WithError(err).Warn("turn mirror failed")
		}
	}
	s.publish(events.ChangeTurn, gameID, seatID)
}

func (s *Server) joinGame(ctx context.Context, c client, req request) error {
	user, err := s.users.UserByID(ctx, req.UserID)
	if err != nil {
		return err
	}
	seat, started, err := s.eng.Join(ctx, req.GameID, models.OwnerHuman, user.Id, user.Email)
	if err != nil {
		return err
	}
	c.Join(req.GameID)
	s.publish(events.PlayerJoined, req.GameID, seat)
	c.Emit("joined-game", seat)
	if started {
		state, err := s.eng.State(ctx, req.GameID)
		if err != nil {
			return err
		}
		s.publish(events.GameStarted, req.GameID, state)
		s.changeTurn(req.GameID, state.Game.NextPlayerId)
	}
	return nil
}

func (s *Server) leaveGame(ctx context.Context, c client, req request) error {
	_, seat, err := s.seatOf(ctx, req)
	if err != nil {
		return err
	}
	if err := s.eng.Leave(ctx, req.GameID, seat.Id); err != nil {
		return err
	}
	c.Leave(req.GameID)
	s.publish(events.PlayerLeft, req.GameID, seat.Id)
	return s.passTurn(ctx, req.GameID)
}

// passTurn announces the new holder, or the result once the game is over.
func (s *Server) passTurn(ctx context.Context, gameID string) error {
	state, err := s.eng.State(ctx, gameID)
	if err != nil {
		return err
	}
	switch state.Game.Status {
	case models.StatusCompleted:
		if s.turns != nil {
			if err := s.turns.Finish(gameID); err != nil {
				s.log.WithField("game_id", gameID).WithError(err).Warn("turn mirror finish failed")
			}
		}
		s.publish(events.GameEnded, gameID, state.Game)
	case models.StatusRunning:
		s.changeTurn(gameID, state.Game.NextPlayerId)
	}
	return nil
}

func (s *Server) rollDice(ctx context.Context, c client, req request) error {
	_, seat, err := s.seatOf(ctx, req)
	if err != nil {
		return err
	}
	res, err := s.eng.Roll(ctx, req.GameID, seat.Id)
	if err != nil {
		return err
	}
	s.publish(events.DiceRolled, req.GameID, res)
	if res.TurnEnded {
		return s.passTurn(ctx, req.GameID)
	}
	return nil
}

func (s *Server) requestBuy(ctx context.Context, c client, req request) error {
	_, seat, err := s.seatOf(ctx, req)
	if err != nil {
		return err
	}
	gp, err := s.eng.BuyProperty(ctx, req.GameID, seat.Id)
	if err != nil {
		return err
	}
	s.publish(events.PropertyChanged, req.GameID, gp)
	return nil
}

func (s *Server) payOutOfJail(ctx context.Context, c client, req request) error {
	_, seat, err := s.seatOf(ctx, req)
	if err != nil {
		return err
	}
	if err := s.eng.PayOutOfJail(ctx, req.GameID, seat.Id); err != nil {
		return err
	}
	return s.seatChanged(ctx, req.GameID, seat.Id)
}

func (s *Server) useJailCard(ctx context.Context, c client, req request) error {
	_, seat, err := s.seatOf(ctx, req)
	if err != nil {
		return err
	}
	if err := s.eng.UseJailCard(ctx, req.GameID, seat.Id); err != nil {
		return err
	}
	return s.seatChanged(ctx, req.GameID, seat.Id)
}

func (s *Server) seatChanged(ctx context.Context, gameID, seatID string) error {
	state, err := s.eng.State(ctx, gameID)
	if err != nil {
		return err
	}
	s.publish(events.SeatChanged, gameID, state.Seat(seatID))
	return nil
}

// property runs a development or mortgage action on the square in card_pos.
func (s *Server) property(op func(ctx context.Context, gameID, seatID string, propertyID int) (int, error)) handler {
	return func(ctx context.Context, c client, req request) error {
		pos, err := strconv.Atoi(req.CardPos)
		if err != nil {
			return fmt.Errorf("%w: bad card_pos %q", engine.ErrInvalidState, req.CardPos)
		}
		state, seat, err := s.seatOf(ctx, req)
		if err != nil {
			return err
		}
		if _, err := op(ctx, req.GameID, seat.Id, pos); err != nil {
			return err
		}
		if state, err = s.eng.State(ctx, req.GameID); err != nil {
			return err
		}
		s.publish(events.PropertyChanged, req.GameID, state.Ownership(pos))
		s.publish(events.SeatChanged, req.GameID, state.Seat(seat.Id))
		return nil
	}
}

func (s *Server) buyHouse(ctx context.Context, c client, req request) error {
	return s.property(s.eng.BuildHouse)(ctx, c, req)
}

func (s *Server) mortgage(ctx context.Context, c client, req request) error {
	return s.property(s.eng.Mortgage)(ctx, c, req)
}

func (s *Server) unmortgage(ctx context.Context, c client, req request) error {
	return s.property(s.eng.Unmortgage)(ctx, c, req)
}

func (s *Server) endTurn(ctx context.Context, c client, req request) error {
	state, seat, err := s.seatOf(ctx, req)
	if err != nil {
		return err
	}
	if engine.CanRoll(&state.Game, seat) == nil {
		return errMustRoll
	}
	if _, err := s.eng.EndTurn(ctx, req.GameID, seat.Id); err != nil {
		return err
	}
	return s.passTurn(ctx, req.GameID)
}

// Broadcast sends an event to the room named after its game.
func (s *Server) Broadcast(e events.Event) error {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	s.io.BroadcastToRoom(namespace, e.GameID, e.Name, string(body))
	return nil
}

// HTTPServer serves socket.io on addr behind CORS for origins.
func (s *Server) HTTPServer(addr string, origins []string) *http.Server {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
	})
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", s.io)
	return &http.Server{Addr: addr, Handler: c.Handler(mux)}
}

func (s *Server) Serve() {
	if err := s.io.Serve(); err != nil {
		s.log.WithError(err).Error("socket.io stopped")
	}
}

func (s *Server) Close() error {
	return s.io.Close()
}
