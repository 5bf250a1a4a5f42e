package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	GameStarted   = "game-started"
	TurnCompleted = "turn-completed"
	GameEnded     = "game-ended"
	GameError     = "game-error"
	ChangeTurn    = "change-turn"
	ErrorMessage  = "error-message"

	PlayerJoined    = "player-join"
	PlayerLeft      = "player-left"
	DiceRolled      = "dice-rolled"
	PropertyChanged = "property-changed"
	SeatChanged     = "seat-changed"
)

type Event struct {
	Name    string      `json:"name"`
	GameID  string      `json:"game_id"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

func New(name, gameID string, payload interface{}) Event {
	return Event{Name: name, GameID: gameID, Payload: payload, At: time.Now()}
}

// Broadcaster delivers an event to everyone watching a game.
type Broadcaster interface {
	Broadcast(e Event) error
}

// Fanout sends each event to every sink. A failing sink is logged and does
// not stop the others.
type Fanout struct {
	sinks []Broadcaster
	log   *logrus.Entry
}

func NewFanout(sinks ...Broadcaster) *Fanout {
	f := &Fanout{log: logrus.WithField("component", "events")}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Add(sink Broadcaster) {
	f.sinks = append(f.sinks, sink)
}

func (f *Fanout) Broadcast(e Event) error {
	var first error
	for _, s := range f.sinks {
		if err := s.Broadcast(e); err != nil {
			f.log.WithFields(logrus.Fields{"event": e.Name, "game_id": e.GameID}).WithError(err).Warn("broadcast failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Broadcast(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
