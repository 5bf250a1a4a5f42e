package cache

import (
	"errors"
	"fmt"

	"github.com/gomodule/redigo/redis"
)

const (
	maxLogLines = 500
	// finished games linger for a day so late readers still see them
	finishedTTL = 24 * 60 * 60
)

func logKey(gameID string) string  { return fmt.Sprintf("game.%s.log", gameID) }
func liveKey(gameID string) string { return fmt.Sprintf("game.%s.live", gameID) }
func turnKey(gameID string) string { return fmt.Sprintf("game.%s.turn", gameID) }

// GameMirror copies runner state into Redis so other processes can read a
// game's log, live snapshot and current turn holder.
type GameMirror struct {
	pool Pool
}

func NewGameMirror(pool Pool) *GameMirror {
	return &GameMirror{pool: pool}
}

func (m *GameMirror) AppendLog(gameID string, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	conn := m.pool.Get()
	defer conn.Close()
	key := logKey(gameID)
	if _, err := RPUSH(key, lines, conn); err != nil {
		return err
	}
	return LTRIM(key, -maxLogLines, -1, conn)
}

func (m *GameMirror) RecentLog(gameID string, n int) ([]string, error) {
	conn := m.pool.Get()
	defer conn.Close()
	if n <= 0 {
		return LRANGE(logKey(gameID), 0, -1, conn)
	}
	return LRANGE(logKey(gameID), -n, -1, conn)
}

func (m *GameMirror) SaveLive(gameID string, fields map[string]string) error {
	conn := m.pool.Get()
	defer conn.Close()
	return HSETALL(liveKey(gameID), fields, conn)
}

// Live returns the mirrored snapshot fields, or nil when none exist.
func (m *GameMirror) Live(gameID string) (map[string]string, error) {
	conn := m.pool.Get()
	defer conn.Close()
	fields, err := HGETALL(liveKey(gameID), conn)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (m *GameMirror) SetTurn(gameID, seatID string) error {
	conn := m.pool.Get()
	defer conn.Close()
	return Set(turnKey(gameID), seatID, conn)
}

// Turn returns the mirrored turn holder, or "" when unknown.
func (m *GameMirror) Turn(gameID string) (string, error) {
	conn := m.pool.Get()
	defer conn.Close()
	seat, err := Get(turnKey(gameID), conn)
	if errors.Is(err, redis.ErrNil) {
		return "", nil
	}
	return seat, err
}

// Finish drops the turn holder and lets the log and snapshot expire.
func (m *GameMirror) Finish(gameID string) error {
	conn := m.pool.Get()
	defer conn.Close()
	if err := Del(conn, turnKey(gameID)); err != nil {
		return err
	}
	if err := Expire(logKey(gameID), finishedTTL, conn); err != nil {
		return err
	}
	return Expire(liveKey(gameID), finishedTTL, conn)
}

// Clear removes everything mirrored for a game.
func (m *GameMirror) Clear(gameID string) error {
	conn := m.pool.Get()
	defer conn.Close()
	return Del(conn, logKey(gameID), liveKey(gameID), turnKey(gameID))
}
