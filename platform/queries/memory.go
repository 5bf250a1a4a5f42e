package queries

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/engine"
)

// MemoryStore implements engine.Store in process. Transactions run one at a
// time; a transaction that cannot start within the lock timeout fails with
// ErrTransientLockTimeout. Writes land on a copy that replaces the live data
// only when fn succeeds.
type MemoryStore struct {
	sem         chan struct{}
	lockTimeout time.Duration

	mu   sync.RWMutex
	data *memData

	// Fault, when set, is called before every Tx method with the method
	// name. A non-nil return fails that call.
	Fault func(op string) error
}

type memData struct {
	games     map[string]models.Game
	seats     map[string]models.Seat
	props     map[string]models.GameProperty
	history   []models.PlayHistory
	transfers []models.Transfer
}

func newMemData() *memData {
	return &memData{
		games: make(map[string]models.Game),
		seats: make(map[string]models.Seat),
		props: make(map[string]models.GameProperty),
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		games:     make(map[string]models.Game, len(d.games)),
		seats:     make(map[string]models.Seat, len(d.seats)),
		props:     make(map[string]models.GameProperty, len(d.props)),
		history:   append([]models.PlayHistory(nil), d.history...),
		transfers: append([]models.Transfer(nil), d.transfers...),
	}
	for k, v := range d.games {
		c.games[k] = v
	}
	for k, v := range d.seats {
		c.seats[k] = v
	}
	for k, v := range d.props {
		c.props[k] = v
	}
	return c
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		sem:         make(chan struct{}, 1),
		lockTimeout: lockTimeout,
		data:        newMemData(),
	}
}

func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx engine.Tx) error) error {
	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case s.sem <- struct{}{}:
	case <-timeout:
		return fmt.Errorf("%w: waited %s for the store", engine.ErrTransientLockTimeout, s.lockTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", engine.ErrTransientLockTimeout, ctx.Err())
	}
	defer func() { <-s.sem }()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{store: s, data: work}); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

// Game returns a committed copy of a game.
func (s *MemoryStore) Game(id string) (models.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.data.games[id]
	return g, ok
}

// Seats returns the committed seats of a game in turn order.
func (s *MemoryStore) Seats(gameID string) []models.Seat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Seat
	for _, seat := range s.data.seats {
		if seat.GameId == gameID {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnOrder < out[j].TurnOrder })
	return out
}

// PutSeat overwrites a committed seat. It is meant for test setup.
func (s *MemoryStore) PutSeat(seat models.Seat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.seats[seat.Id] = seat
}

// PutProperty overwrites a committed ownership record. It is meant for test setup.
func (s *MemoryStore) PutProperty(gp models.GameProperty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gp.Id == "" {
		gp.Id = fmt.Sprintf("%s-%d", gp.GameId, gp.PropertyId)
	}
	for id, existing := range s.data.props {
		if existing.GameId == gp.GameId && existing.PropertyId == gp.PropertyId {
			delete(s.data.props, id)
		}
	}
	s.data.props[gp.Id] = gp
}

func (s *MemoryStore) Transfers(gameID string) []models.Transfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transfer
	for _, t := range s.data.transfers {
		if t.GameId == gameID {
			out = append(out, t)
		}
	}
	return out
}

// History returns a game's committed rows in insertion order.
func (s *MemoryStore) History(gameID string) []models.PlayHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PlayHistory
	for _, h := range s.data.history {
		if h.GameId == gameID {
			out = append(out, h)
		}
	}
	return out
}

type memTx struct {
	store *MemoryStore
	data  *memData
}

func (t *memTx) fault(op string) error {
	if t.store.Fault == nil {
		return nil
	}
	return t.store.Fault(op)
}

func (t *memTx) GetGame(ctx context.Context, gameID string, forUpdate bool) (*models.Game, error) {
	if err := t.fault("GetGame"); err != nil {
		return nil, err
	}
	g, ok := t.data.games[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: game %s not found", engine.ErrInvalidState, gameID)
	}
	return &g, nil
}

func (t *memTx) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	if err := t.fault("GetGameByCode"); err != nil {
		return nil, err
	}
	for _, g := range t.data.games {
		if g.Code == code {
			g := g
			return &g, nil
		}
	}
	return nil, fmt.Errorf("%w: game with code %s not found", engine.ErrInvalidState, code)
}

func (t *memTx) ListGames(ctx context.Context, status models.GameStatus) ([]*models.Game, error) {
	if err := t.fault("ListGames"); err != nil {
		return nil, err
	}
	var out []*models.Game
	for _, g := range t.data.games {
		if status == "" || g.Status == status {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) InsertGame(ctx context.Context, game *models.Game) error {
	if err := t.fault("InsertGame"); err != nil {
		return err
	}
	if _, ok := t.data.games[game.Id]; ok {
		return fmt.Errorf("game %s already exists", game.Id)
	}
	t.data.games[game.Id] = *game
	return nil
}

func (t *memTx) UpdateGame(ctx context.Context, game *models.Game) error {
	if err := t.fault("UpdateGame"); err != nil {
		return err
	}
	if _, ok := t.data.games[game.Id]; !ok {
		return fmt.Errorf("%w: game %s not found", engine.ErrInvalidState, game.Id)
	}
	t.data.games[game.Id] = *game
	return nil
}

func (t *memTx) GetSeats(ctx context.Context, gameID string, forUpdate bool) ([]*models.Seat, error) {
	if err := t.fault("GetSeats"); err != nil {
		return nil, err
	}
	var out []*models.Seat
	for _, s := range t.data.seats {
		if s.GameId == gameID {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnOrder < out[j].TurnOrder })
	return out, nil
}

func (t *memTx) InsertSeat(ctx context.Context, seat *models.Seat) error {
	if err := t.fault("InsertSeat"); err != nil {
		return err
	}
	t.data.seats[seat.Id] = *seat
	return nil
}

func (t *memTx) UpdateSeat(ctx context.Context, seat *models.Seat) error {
	if err := t.fault("UpdateSeat"); err != nil {
		return err
	}
	if _, ok := t.data.seats[seat.Id]; !ok {
		return fmt.Errorf("%w: seat %s not found", engine.ErrInvalidState, seat.Id)
	}
	t.data.seats[seat.Id] = *seat
	return nil
}

func (t *memTx) GetGameProperties(ctx context.Context, gameID string) ([]*models.GameProperty, error) {
	if err := t.fault("GetGameProperties"); err != nil {
		return nil, err
	}
	var out []*models.GameProperty
	for _, gp := range t.data.props {
		if gp.GameId == gameID {
			gp := gp
			out = append(out, &gp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyId < out[j].PropertyId })
	return out, nil
}

func (t *memTx) LockGameProperty(ctx context.Context, gameID string, propertyID int) (*models.GameProperty, error) {
	if err := t.fault("LockGameProperty"); err != nil {
		return nil, err
	}
	for _, gp := range t.data.props {
		if gp.GameId == gameID && gp.PropertyId == propertyID {
			gp := gp
			return &gp, nil
		}
	}
	return nil, nil
}

func (t *memTx) SaveGameProperty(ctx context.Context, gp *models.GameProperty) error {
	if err := t.fault("SaveGameProperty"); err != nil {
		return err
	}
	t.data.props[gp.Id] = *gp
	return nil
}

func (t *memTx) InsertHistory(ctx context.Context, h *models.PlayHistory) error {
	if err := t.fault("InsertHistory"); err != nil {
		return err
	}
	t.data.history = append(t.data.history, *h)
	return nil
}

func (t *memTx) DeactivateHistory(ctx context.Context, gameID, seatID string) error {
	if err := t.fault("DeactivateHistory"); err != nil {
		return err
	}
	for i := len(t.data.history) - 1; i >= 0; i-- {
		h := &t.data.history[i]
		if h.GameId == gameID && h.SeatId == seatID && h.Active {
			h.Active = false
			return nil
		}
	}
	return nil
}

func (t *memTx) ListHistory(ctx context.Context, gameID string, limit int) ([]*models.PlayHistory, error) {
	if err := t.fault("ListHistory"); err != nil {
		return nil, err
	}
	var out []*models.PlayHistory
	for i := len(t.data.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if h := t.data.history[i]; h.GameId == gameID {
			out = append(out, &h)
		}
	}
	return out, nil
}

func (t *memTx) InsertTransfer(ctx context.Context, tr *models.Transfer) error {
	if err := t.fault("InsertTransfer"); err != nil {
		return err
	}
	t.data.transfers = append(t.data.transfers, *tr)
	return nil
}
