package queries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/go-pg/pg/v10"
)

var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user already exists")

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
}

type PgUserStore struct {
	db *pg.DB
}

func NewUserStore(db *pg.DB) *PgUserStore {
	return &PgUserStore{db: db}
}

func (s *PgUserStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ModelContext(ctx, user).Insert()
	var pgErr pg.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return fmt.Errorf("%w: %s", ErrUserExists, user.Email)
	}
	return err
}

func (s *PgUserStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := s.db.ModelContext(ctx, user).Where("email = ?", strings.ToLower(email)).Select()
	if errors.Is(err, pg.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *PgUserStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{Id: id}
	err := s.db.ModelContext(ctx, user).WherePK().Select()
	if errors.Is(err, pg.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]models.User)}
}

func (s *MemoryUserStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: %s", ErrUserExists, user.Email)
		}
	}
	s.users[user.Id] = *user
	return nil
}

func (s *MemoryUserStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
