package dummydb

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/fomu/core/user"
)

// UserRepository is an in-memory user.Repository for tests and local hacking.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]user.User // by ID
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]user.User)}
}

func (repo *UserRepository) CheckUsernameUniqueness(_ context.Context, username, email string) error {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	for _, usr := range repo.users {
		if usr.Username == username || usr.Email == email {
			return user.ErrUserExists
		}
	}
	return nil
}

func (repo *UserRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	usr.ID = uuid.New().String()
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *UserRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	usr, ok := repo.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *UserRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	for _, usr := range repo.users {
		if usr.Username == username || usr.Email == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *UserRepository) SetLastLogin(_ context.Context, usr user.User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	u, ok := repo.users[usr.ID]
	if !ok {
		return user.ErrNotFound
	}
	u.LastLogin = usr.LastLogin
	repo.users[usr.ID] = u
	return nil
}
