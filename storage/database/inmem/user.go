package inmemdb

import (
	"context"

	"github.com/opiskelu/palaute/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) EnsureUsers(_ context.Context, users []user.User) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, u := range users {
		if u.ID == "" {
			continue
		}
		if _, ok := repo.db.users[u.ID]; ok {
			continue
		}
		u := u
		repo.db.users[u.ID] = &u
	}
	return nil
}
