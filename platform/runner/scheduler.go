package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/agent"
	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/DedS3t/monopoly-arena/platform/events"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyRunning = errors.New("game already has a runner")
	ErrClosed         = errors.New("scheduler is shut down")
)

// TurnEngine is the part of *engine.Engine the runner drives.
type TurnEngine interface {
	State(ctx context.Context, gameID string) (*engine.GameState, error)
	Roll(ctx context.Context, gameID, seatID string) (*engine.TurnResult, error)
	EndTurn(ctx context.Context, gameID, seatID string) (string, error)
	UseJailCard(ctx context.Context, gameID, seatID string) error
	BuyProperty(ctx context.Context, gameID, seatID string) (*models.GameProperty, error)
	BuildHouse(ctx context.Context, gameID, seatID string, propertyID int) (int, error)
	Mortgage(ctx context.Context, gameID, seatID string, propertyID int) (int, error)
	Unmortgage(ctx context.Context, gameID, seatID string, propertyID int) (int, error)
	Complete(ctx context.Context, gameID, winnerSeatID string) error
}

// Mirror receives a copy of each game's log and live snapshot.
// *cache.GameMirror implements it.
type Mirror interface {
	AppendLog(gameID string, lines ...string) error
	SaveLive(gameID string, fields map[string]string) error
	SetTurn(gameID, seatID string) error
	Finish(gameID string) error
}

// TickFailure wraps whatever went wrong during one tick of one game.
type TickFailure struct {
	GameID string
	Cause  error
}

func (f *TickFailure) Error() string {
	return fmt.Sprintf("tick failed for game %s: %v", f.GameID, f.Cause)
}

func (f *TickFailure) Unwrap() error { return f.Cause }

type Config struct {
	Interval    time.Duration
	TickTimeout time.Duration
	RoundCap    int
	// MaxActions bounds the decisions asked for in one turn.
	MaxActions int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 10 * time.Second
	}
	if c.RoundCap <= 0 {
		c.RoundCap = 100
	}
	if c.MaxActions <= 0 {
		c.MaxActions = 6
	}
	return c
}

type Option func(*Scheduler)

func WithMirror(m Mirror) Option {
	return func(s *Scheduler) { s.mirror = m }
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Scheduler) { s.log = log }
}

// Scheduler owns one ticker goroutine per running game. Ticks of a game run
// one after another; different games tick independently.
type Scheduler struct {
	mu     sync.Mutex
	games  map[string]*gameRun
	closed bool
	wg     sync.WaitGroup

	engine  TurnEngine
	decider agent.DecisionSource
	events  events.Broadcaster
	mirror  Mirror
	cfg     Config
	log     *logrus.Entry
}

type gameRun struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	profiles map[string]agent.Profile

	mu   sync.Mutex
	log  []LogEntry
	live LiveSnapshot
}

func NewScheduler(eng TurnEngine, decider agent.DecisionSource, bus events.Broadcaster, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		games:   make(map[string]*gameRun),
		engine:  eng,
		decider: decider,
		events:  bus,
		cfg:     cfg.withDefaults(),
		log:     logrus.WithField("component", "runner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules ticks for a game. Seats without a profile play balanced.
func (s *Scheduler) Start(gameID string, profiles ...agent.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.games[gameID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, gameID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &gameRun{
		id:       gameID,
		cancel:   cancel,
		done:     make(chan struct{}),
		profiles: make(map[string]agent.Profile, len(profiles)),
		live:     LiveSnapshot{Status: models.StatusRunning},
	}
	for _, p := range profiles {
		run.profiles[p.SeatId] = p
	}
	s.games[gameID] = run
	s.wg.Add(1)
	go s.loop(ctx, run)
	s.log.WithFields(logrus.Fields{"game_id": gameID, "interval": s.cfg.Interval}).Info("runner started")
	return nil
}

// Stop cancels a game's ticker and waits for an in-flight tick to commit.
// It reports whether the game was running.
func (s *Scheduler) Stop(gameID string) bool {
	s.mu.Lock()
	run, ok := s.games[gameID]
	delete(s.games, gameID)
	s.mu.Unlock()
	if !ok {
		return false
	}
	run.cancel()
	<-run.done
	s.log.WithField("game_id", gameID).Info("runner stopped")
	return true
}

// Shutdown stops every game and refuses new ones.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	runs := make([]*gameRun, 0, len(s.games))
	for id, run := range s.games {
		runs = append(runs, run)
		delete(s.games, id)
	}
	s.mu.Unlock()
	for _, run := range runs {
		run.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) Running(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.games[gameID]
	return ok
}

func (s *Scheduler) Games() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) lookup(gameID string) (*gameRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.games[gameID]
	return run, ok
}

// Log returns a copy of a running game's log.
func (s *Scheduler) Log(gameID string) ([]LogEntry, bool) {
	run, ok := s.lookup(gameID)
	if !ok {
		return nil, false
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return append([]LogEntry(nil), run.log...), true
}

func (s *Scheduler) Live(gameID string) (LiveSnapshot, bool) {
	run, ok := s.lookup(gameID)
	if !ok {
		return LiveSnapshot{}, false
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.live, true
}

// remove drops a run that ended on its own.
func (s *Scheduler) remove(run *gameRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.games[run.id] == run {
		delete(s.games, run.id)
	}
}

func (s *Scheduler) loop(ctx context.Context, run *gameRun) {
	defer s.wg.Done()
	defer close(run.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// both cases may be ready at once
		if ctx.Err() != nil {
			return
		}
		if s.safeTick(run) {
			s.remove(run)
			run.cancel()
			return
		}
	}
}

// safeTick runs one tick and turns errors and panics into a game-error
// event. It reports whether the game is over.
func (s *Scheduler) safeTick(run *gameRun) (finished bool) {
	// the tick gets its own context so Stop never interrupts a commit
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.fail(run, &TickFailure{GameID: run.id, Cause: fmt.Errorf("panic: %v", r)})
			finished = false
		}
	}()

	finished, err := s.tick(ctx, run)
	if err != nil {
		s.fail(run, &TickFailure{GameID: run.id, Cause: err})
		return false
	}
	return finished
}

func (s *Scheduler) fail(run *gameRun, failure *TickFailure) {
	s.log.WithField("game_id", run.id).WithError(failure.Cause).Error("runner tick failed")
	s.record(run, 0, "", "tick failed: "+failure.Cause.Error())
	s.broadcast(events.New(events.GameError, run.id, map[string]string{"error": failure.Error()}))
}

func (s *Scheduler) tick(ctx context.Context, run *gameRun) (bool, error) {
	state, err := s.engine.State(ctx, run.id)
	if err != nil {
		return false, err
	}
	switch {
	case state.Game.Status.Terminal():
		return true, nil
	case state.Game.Status != models.StatusRunning:
		return false, nil
	}
	if winner := s.winner(state); winner != nil {
		return true, s.finish(ctx, run, state, winner)
	}

	holder := state.Holder()
	if holder == nil {
		return false, fmt.Errorf("%w: turn holder %q missing", engine.ErrInvalidState, state.Game.NextPlayerId)
	}
	round := state.Game.RoundNumber

	if !holder.Live() {
		if _, err := s.engine.EndTurn(ctx, run.id, holder.Id); err != nil {
			return false, err
		}
		return s.afterTurn(ctx, run, holder, nil, fmt.Sprintf("%s skipped (out of the game)", holder.Username))
	}

	var res *engine.TurnResult
	summary := fmt.Sprintf("%s resumed", holder.Username)
	if holder.RollsThisRound == 0 {
		if holder.InJail && holder.HasJailCard() {
			if err := s.engine.UseJailCard(ctx, run.id, holder.Id); err != nil {
				return false, err
			}
			s.record(run, round, holder.Id, holder.Username+" used a get out of jail free card")
		}
		res, err = s.engine.Roll(ctx, run.id, holder.Id)
		if err != nil {
			return false, err
		}
		summary = describe(holder, res)
		s.record(run, round, holder.Id, summary)
		if res.TurnEnded {
			return s.afterTurn(ctx, run, holder, res, summary)
		}
	}

	profile := run.profile(holder)
	for i := 0; i < s.cfg.MaxActions; i++ {
		state, err := s.engine.State(ctx, run.id)
		if err != nil {
			return false, err
		}
		d, err := s.decider.Decide(ctx, state, profile)
		if err != nil {
			s.record(run, round, holder.Id, "decision failed: "+err.Error())
			break
		}
		if d.Type == agent.ActionEndTurn {
			break
		}
		msg, err := s.apply(ctx, run.id, holder.Id, d)
		if errors.Is(err, engine.ErrTransientLockTimeout) {
			return false, err
		}
		if err != nil {
			s.record(run, round, holder.Id, fmt.Sprintf("%s rejected: %v", d.Type, err))
			break
		}
		summary = msg
		s.record(run, round, holder.Id, msg)
	}

	if _, err := s.engine.EndTurn(ctx, run.id, holder.Id); err != nil {
		return false, err
	}
	return s.afterTurn(ctx, run, holder, res, summary)
}

// afterTurn publishes the finished turn and checks for a winner.
func (s *Scheduler) afterTurn(ctx context.Context, run *gameRun, seat *models.Seat, res *engine.TurnResult, summary string) (bool, error) {
	state, err := s.engine.State(ctx, run.id)
	if err != nil {
		return false, err
	}
	s.setLive(run, snapshotOf(state, summary))
	if s.mirror != nil {
		if err := s.mirror.SetTurn(run.id, state.Game.NextPlayerId); err != nil {
			s.log.WithField("game_id", run.id).WithError(err).Warn("mirror turn failed")
		}
	}
	s.broadcast(events.New(events.TurnCompleted, run.id, map[string]interface{}{
		"seat_id":        seat.Id,
		"result":         res,
		"next_player_id": state.Game.NextPlayerId,
		"round_number":   state.Game.RoundNumber,
		"last_action":    summary,
	}))
	if state.Game.Status == models.StatusCompleted {
		if winner := state.Seat(state.Game.WinnerSeatId); winner != nil {
			return true, s.finish(ctx, run, state, winner)
		}
		return true, nil
	}
	if winner := s.winner(state); winner != nil {
		return true, s.finish(ctx, run, state, winner)
	}
	return false, nil
}

// winner returns the last seat standing, or the richest seat once the round
// cap is passed.
func (s *Scheduler) winner(state *engine.GameState) *models.Seat {
	live := state.LiveSeats()
	switch {
	case len(live) == 1:
		return &live[0]
	case len(live) == 0:
		return richest(state.Seats)
	case state.Game.RoundNumber > s.cfg.RoundCap:
		return richest(live)
	}
	return nil
}

func richest(seats []models.Seat) *models.Seat {
	var best *models.Seat
	for i := range seats {
		if best == nil || seats[i].Balance > best.Balance {
			best = &seats[i]
		}
	}
	return best
}

func (s *Scheduler) finish(ctx context.Context, run *gameRun, state *engine.GameState, winner *models.Seat) error {
	if state.Game.Status != models.StatusCompleted {
		if err := s.engine.Complete(ctx, run.id, winner.Id); err != nil {
			return err
		}
	}
	msg := fmt.Sprintf("%s wins with %d after %d rounds", winner.Username, winner.Balance, state.Game.RoundNumber)
	s.record(run, state.Game.RoundNumber, winner.Id, msg)

	live := snapshotOf(state, msg)
	live.Status = models.StatusCompleted
	live.CurrentTurn = ""
	s.setLive(run, live)
	if s.mirror != nil {
		if err := s.mirror.Finish(run.id); err != nil {
			s.log.WithField("game_id", run.id).WithError(err).Warn("mirror finish failed")
		}
	}
	s.broadcast(events.New(events.GameEnded, run.id, map[string]interface{}{
		"winner_seat_id": winner.Id,
		"winner":         winner.Username,
		"balance":        winner.Balance,
		"round_number":   state.Game.RoundNumber,
	}))
	s.log.WithFields(logrus.Fields{"game_id": run.id, "winner": winner.Id}).Info("game completed")
	return nil
}

// apply carries out one decision and describes it for the log.
func (s *Scheduler) apply(ctx context.Context, gameID, seatID string, d agent.Decision) (string, error) {
	pid := d.Data.PropertyId
	switch d.Type {
	case agent.ActionBuyProperty:
		gp, err := s.engine.BuyProperty(ctx, gameID, seatID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("bought property %d", gp.PropertyId), nil
	case agent.ActionPayRent:
		return "rent already settled on landing", nil
	case agent.ActionMortgage:
		amount, err := s.engine.Mortgage(ctx, gameID, seatID, pid)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("mortgaged property %d for %d", pid, amount), nil
	case agent.ActionUnmortgage:
		cost, err := s.engine.Unmortgage(ctx, gameID, seatID, pid)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("unmortgaged property %d for %d", pid, cost), nil
	case agent.ActionBuildHouse, agent.ActionBuildHotel:
		level, err := s.engine.BuildHouse(ctx, gameID, seatID, pid)
		if err != nil {
			return "", err
		}
		if level == engine.HotelLevel {
			return fmt.Sprintf("built a hotel on property %d", pid), nil
		}
		return fmt.Sprintf("built house %d on property %d", level, pid), nil
	case agent.ActionProposeTrade:
		return "trade proposal ignored, trading is not supported", nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", engine.ErrInvalidState, d.Type)
	}
}

func (run *gameRun) profile(seat *models.Seat) agent.Profile {
	if p, ok := run.profiles[seat.Id]; ok {
		return p
	}
	return agent.Profile{SeatId: seat.Id, Name: seat.Username, Strategy: agent.Balanced}
}

func (s *Scheduler) record(run *gameRun, round int, seatID, msg string) {
	entry := LogEntry{At: time.Now(), Round: round, SeatId: seatID, Message: msg}
	run.mu.Lock()
	run.log = append(run.log, entry)
	run.mu.Unlock()
	if s.mirror != nil {
		if err := s.mirror.AppendLog(run.id, entry.String()); err != nil {
			s.log.WithField("game_id", run.id).WithError(err).Warn("mirror log failed")
		}
	}
}

func (s *Scheduler) setLive(run *gameRun, live LiveSnapshot) {
	run.mu.Lock()
	run.live = live
	run.mu.Unlock()
	if s.mirror != nil {
		if err := s.mirror.SaveLive(run.id, live.Fields()); err != nil {
			s.log.WithField("game_id", run.id).WithError(err).Warn("mirror snapshot failed")
		}
	}
}

func (s *Scheduler) broadcast(e events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Broadcast(e); err != nil {
		s.log.WithFields(logrus.Fields{"game_id": e.GameID, "event": e.Name}).WithError(err).Warn("broadcast failed")
	}
}
