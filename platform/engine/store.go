package engine

import (
	"context"

	"github.com/DedS3t/monopoly-arena/app/models"
)

// Store runs fn inside one serializable transaction. If fn returns an error
// nothing it wrote is kept.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the locked read/write surface the engine needs. Missing games are
// reported as ErrInvalidState; lock and statement timeouts as
// ErrTransientLockTimeout.
type Tx interface {
	GetGame(ctx context.Context, gameID string, forUpdate bool) (*models.Game, error)
	GetGameByCode(ctx context.Context, code string) (*models.Game, error)
	ListGames(ctx context.Context, status models.GameStatus) ([]*models.Game, error)
	InsertGame(ctx context.Context, game *models.Game) error
	UpdateGame(ctx context.Context, game *models.Game) error

	// GetSeats returns the game's seats ordered by turn order.
	GetSeats(ctx context.Context, gameID string, forUpdate bool) ([]*models.Seat, error)
	InsertSeat(ctx context.Context, seat *models.Seat) error
	UpdateSeat(ctx context.Context, seat *models.Seat) error

	GetGameProperties(ctx context.Context, gameID string) ([]*models.GameProperty, error)
	// LockGameProperty returns nil when no ownership row exists (bank owned).
	LockGameProperty(ctx context.Context, gameID string, propertyID int) (*models.GameProperty, error)
	SaveGameProperty(ctx context.Context, gp *models.GameProperty) error

	InsertHistory(ctx context.Context, h *models.PlayHistory) error
	// DeactivateHistory clears the seat's most recent active history row.
	DeactivateHistory(ctx context.Context, gameID, seatID string) error
	ListHistory(ctx context.Context, gameID string, limit int) ([]*models.PlayHistory, error)

	InsertTransfer(ctx context.Context, t *models.Transfer) error
}
