package queries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
)

// GameStore is the PostgreSQL implementation of engine.Store. Every
// transaction is SERIALIZABLE and bounded by lock and statement timeouts.
type GameStore struct {
	db               *pg.DB
	lockTimeout      time.Duration
	statementTimeout time.Duration
}

func NewGameStore(db *pg.DB, lockTimeout, statementTimeout time.Duration) *GameStore {
	return &GameStore{db: db, lockTimeout: lockTimeout, statementTimeout: statementTimeout}
}

func (s *GameStore) RunInTransaction(ctx context.Context, fn func(tx engine.Tx) error) error {
	err := s.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		if _, err := tx.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
			return err
		}
		if s.lockTimeout > 0 {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())); err != nil {
				return err
			}
		}
		if s.statementTimeout > 0 {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", s.statementTimeout.Milliseconds())); err != nil {
				return err
			}
		}
		return fn(&pgTx{tx: tx})
	})
	return mapError(err)
}

type pgTx struct {
	tx *pg.Tx
}

func forUpdate(q *orm.Query, lock bool) *orm.Query {
	if lock {
		return q.For("UPDATE")
	}
	return q
}

func (t *pgTx) GetGame(ctx context.Context, gameID string, lock bool) (*models.Game, error) {
	game := &models.Game{Id: gameID}
	err := forUpdate(t.tx.ModelContext(ctx, game).WherePK(), lock).Select()
	if err != nil {
		return nil, notFound(err, "game", gameID)
	}
	return game, nil
}

func (t *pgTx) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	game := new(models.Game)
	err := t.tx.ModelContext(ctx, game).Where("code = ?", code).Select()
	if err != nil {
		return nil, notFound(err, "game with code", code)
	}
	return game, nil
}

func (t *pgTx) ListGames(ctx context.Context, status models.GameStatus) ([]*models.Game, error) {
	var games []*models.Game
	q := t.tx.ModelContext(ctx, &games).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Select(); err != nil {
		return nil, mapError(err)
	}
	return games, nil
}

func (t *pgTx) InsertGame(ctx context.Context, game *models.Game) error {
	_, err := t.tx.ModelContext(ctx, game).Insert()
	return mapError(err)
}

func (t *pgTx) UpdateGame(ctx context.Context, game *models.Game) error {
	_, err := t.tx.ModelContext(ctx, game).WherePK().Update()
	return mapError(err)
}

func (t *pgTx) GetSeats(ctx context.Context, gameID string, lock bool) ([]*models.Seat, error) {
	var seats []*models.Seat
	q := t.tx.ModelContext(ctx, &seats).Where("game_id = ?", gameID).Order("turn_order ASC")
	if err := forUpdate(q, lock).Select(); err != nil {
		return nil, mapError(err)
	}
	return seats, nil
}

func (t *pgTx) InsertSeat(ctx context.Context, seat *models.Seat) error {
	_, err := t.tx.ModelContext(ctx, seat).Insert()
	return mapError(err)
}

func (t *pgTx) UpdateSeat(ctx context.Context, seat *models.Seat) error {
	_, err := t.tx.ModelContext(ctx, seat).WherePK().Update()
	return mapError(err)
}

func (t *pgTx) GetGameProperties(ctx context.Context, gameID string) ([]*models.GameProperty, error) {
	var props []*models.GameProperty
	err := t.tx.ModelContext(ctx, &props).Where("game_id = ?", gameID).Order("property_id ASC").Select()
	if err != nil {
		return nil, mapError(err)
	}
	return props, nil
}

func (t *pgTx) LockGameProperty(ctx context.Context, gameID string, propertyID int) (*models.GameProperty, error) {
	gp := new(models.GameProperty)
	err := t.tx.ModelContext(ctx, gp).
		Where("game_id = ? AND property_id = ?", gameID, propertyID).
		For("UPDATE").
		Select()
	if errors.Is(err, pg.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return gp, nil
}

func (t *pgTx) SaveGameProperty(ctx context.Context, gp *models.GameProperty) error {
	_, err := t.tx.ModelContext(ctx, gp).
		OnConflict("(id) DO UPDATE").
		Set("owner_seat_id = EXCLUDED.owner_seat_id").
		Set("mortgaged = EXCLUDED.mortgaged").
		Set("level = EXCLUDED.level").
		Insert()
	return mapError(err)
}

func (t *pgTx) InsertHistory(ctx context.Context, h *models.PlayHistory) error {
	_, err := t.tx.ModelContext(ctx, h).Insert()
	return mapError(err)
}

func (t *pgTx) DeactivateHistory(ctx context.Context, gameID, seatID string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE play_history SET active = false WHERE id = (
		SELECT id FROM play_history
		WHERE game_id = ? AND seat_id = ? AND active
		ORDER BY created_at DESC LIMIT 1)`, gameID, seatID)
	return mapError(err)
}

func (t *pgTx) ListHistory(ctx context.Context, gameID string, limit int) ([]*models.PlayHistory, error) {
	var rows []*models.PlayHistory
	q := t.tx.ModelContext(ctx, &rows).Where("game_id = ?", gameID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Select(); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (t *pgTx) InsertTransfer(ctx context.Context, tr *models.Transfer) error {
	_, err := t.tx.ModelContext(ctx, tr).Insert()
	return mapError(err)
}
