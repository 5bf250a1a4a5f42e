package controllers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/agent"
	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/DedS3t/monopoly-arena/platform/events"
	"github.com/DedS3t/monopoly-arena/platform/runner"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const defaultHistory = 50

// Mirror serves what the runners and sockets copied to Redis, so any
// process can answer for a game. *cache.GameMirror implements it.
type Mirror interface {
	Live(gameID string) (map[string]string, error)
	RecentLog(gameID string, n int) ([]string, error)
	Turn(gameID string) (string, error)
	Clear(gameID string) error
}

type GameController struct {
	Engine *engine.Engine
	Runner *runner.Scheduler
	Bus    events.Broadcaster
	Mirror Mirror
}

func NewGameController(eng *engine.Engine, sched *runner.Scheduler, bus events.Broadcaster, mirror Mirror) *GameController {
	return &GameController{Engine: eng, Runner: sched, Bus: bus, Mirror: mirror}
}

// status maps engine and runner errors onto HTTP codes.
func status(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotYourTurn):
		return fiber.StatusForbidden
	case errors.Is(err, engine.ErrAlreadyRolled), errors.Is(err, runner.ErrAlreadyRunning):
		return fiber.StatusConflict
	case errors.Is(err, engine.ErrTransientLockTimeout), errors.Is(err, runner.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrInvalidMove):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	code := status(err)
	if code == fiber.StatusInternalServerError {
		logrus.WithField("path", c.Path()).WithError(err).Error("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// lookup loads a game's state, answering 404 for unknown ids.
func (g *GameController) lookup(c *fiber.Ctx) (*engine.GameState, error) {
	state, err := g.Engine.State(c.Context(), c.Params("id"))
	if errors.Is(err, engine.ErrInvalidState) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return nil, fail(c, err)
	}
	return state, nil
}

func (g *GameController) broadcast(e events.Event) {
	if g.Bus == nil {
		return
	}
	if err := g.Bus.Broadcast(e); err != nil {
		logrus.WithFields(logrus.Fields{"game_id": e.GameID, "event": e.Name}).WithError(err).Warn("broadcast failed")
	}
}

func (g *GameController) CreateGame(c *fiber.Ctx) error {
	gameCreateDto := new(models.GameCreateDto)
	if err := c.BodyParser(gameCreateDto); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	game, err := g.Engine.CreateGame(c.Context(), gameCreateDto.Name, gameCreateDto.Players, models.GameMode(gameCreateDto.Mode))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"id": game.Id, "code": game.Code})
}

func (g *GameController) GetAllAvailGames(c *fiber.Ctx) error {
	games, err := g.Engine.Games(c.Context(), models.StatusPending)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(games)
}

// FindAvailGame returns the oldest pending game humans can join.
func (g *GameController) FindAvailGame(c *fiber.Ctx) error {
	games, err := g.Engine.Games(c.Context(), models.StatusPending)
	if err != nil {
		return fail(c, err)
	}
	for i := len(games) - 1; i >= 0; i-- {
		if games[i].Mode == models.ModeHuman {
			return c.JSON(fiber.Map{"id": games[i].Id, "code": games[i].Code})
		}
	}
	return c.SendStatus(fiber.StatusNotFound)
}

func (g *GameController) VerifyGame(c *fiber.Ctx) error {
	verifyGameDto := new(models.VerifyGameDto)
	if err := c.QueryParser(verifyGameDto); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	game, err := g.Engine.GameByCode(c.Context(), verifyGameDto.Code)
	if err != nil {
		return c.JSON(fiber.Map{"status": false})
	}
	return c.JSON(fiber.Map{"status": game.Status == models.StatusPending, "id": game.Id})
}

// CreateAgentGame seats one agent per requested strategy and hands the game
// to the runner.
func (g *GameController) CreateAgentGame(c *fiber.Ctx) error {
	dto := new(models.AgentGameDto)
	if err := c.BodyParser(dto); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	strategies := make([]agent.Strategy, 0, len(dto.Agents))
	for _, s := range dto.Agents {
		st, err := agent.ParseStrategy(s)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		strategies = append(strategies, st)
	}

	ctx := c.Context()
	game, err := g.Engine.CreateGame(ctx, dto.Name, len(strategies), models.ModeAgent)
	if err != nil {
		return fail(c, err)
	}
	profiles := make([]agent.Profile, 0, len(strategies))
	for i, st := range strategies {
		name := fmt.Sprintf("Agent %d (%s)", i+1, st)
		seat, _, err := g.Engine.Join(ctx, game.Id, models.OwnerAgent, fmt.Sprintf("agent-%d", i+1), name)
		if err != nil {
			return fail(c, err)
		}
		profiles = append(profiles, agent.Profile{SeatId: seat.Id, Name: name, Strategy: st})
	}
	if err := g.Runner.Start(game.Id, profiles...); err != nil {
		return fail(c, err)
	}
	state, err := g.Engine.State(ctx, game.Id)
	if err != nil {
		return fail(c, err)
	}
	g.broadcast(events.New(events.GameStarted, game.Id, state))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": game.Id, "code": game.Code, "agents": profiles})
}

func (g *GameController) State(c *fiber.Ctx) error {
	state, err := g.lookup(c)
	if state == nil {
		return err
	}
	return c.JSON(state)
}

func (g *GameController) History(c *fiber.Ctx) error {
	limit := defaultHistory
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = n
	}
	rows, err := g.Engine.History(c.Context(), c.Params("id"), limit)
	if errors.Is(err, engine.ErrInvalidState) {
		return c.SendStatus(fiber.StatusNotFound)
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(rows)
}

// Live answers from the local runner first, then the Redis mirror.
func (g *GameController) Live(c *fiber.Ctx) error {
	id := c.Params("id")
	if live, ok := g.Runner.Live(id); ok {
		return c.JSON(live)
	}
	if g.Mirror != nil {
		fields, err := g.Mirror.Live(id)
		if err != nil {
			logrus.WithField("game_id", id).WithError(err).Warn("live mirror read failed")
		} else if fields != nil {
			return c.JSON(runner.SnapshotFromFields(fields))
		}
	}
	return c.SendStatus(fiber.StatusNotFound)
}

// Log returns the runner log, or the mirrored lines when another process
// runs the game.
func (g *GameController) Log(c *fiber.Ctx) error {
	id := c.Params("id")
	if entries, ok := g.Runner.Log(id); ok {
		return c.JSON(entries)
	}
	if g.Mirror != nil {
		lines, err := g.Mirror.RecentLog(id, defaultHistory)
		if err != nil {
			return fail(c, err)
		}
		if len(lines) > 0 {
			return c.JSON(lines)
		}
	}
	return c.SendStatus(fiber.StatusNotFound)
}

func (g *GameController) Turn(c *fiber.Ctx) error {
	id := c.Params("id")
	if g.Mirror != nil {
		if seat, err := g.Mirror.Turn(id); err == nil && seat != "" {
			return c.JSON(fiber.Map{"seat_id": seat})
		}
	}
	state, err := g.lookup(c)
	if state == nil {
		return err
	}
	return c.JSON(fiber.Map{"seat_id": state.Game.NextPlayerId})
}

// StopGame ends a game without a winner and forgets its mirrored state.
func (g *GameController) StopGame(c *fiber.Ctx) error {
	id := c.Params("id")
	g.Runner.Stop(id)
	if err := g.Engine.Stop(c.Context(), id); err != nil {
		return fail(c, err)
	}
	if g.Mirror != nil {
		if err := g.Mirror.Clear(id); err != nil {
			logrus.WithField("game_id", id).WithError(err).Warn("mirror clear failed")
		}
	}
	g.broadcast(events.New(events.GameEnded, id, fiber.Map{"status": models.StatusStopped}))
	return c.SendStatus(fiber.StatusNoContent)
}

// StartAutoplay hands an existing running game to the runner.
func (g *GameController) StartAutoplay(c *fiber.Ctx) error {
	state, err := g.lookup(c)
	if state == nil {
		return err
	}
	if state.Game.Status != models.StatusRunning {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "game is " + string(state.Game.Status)})
	}
	if err := g.Runner.Start(state.Game.Id); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (g *GameController) StopAutoplay(c *fiber.Ctx) error {
	if !g.Runner.Stop(c.Params("id")) {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
