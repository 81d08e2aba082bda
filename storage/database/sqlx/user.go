package sqlxrepos

import (
	"context"

	"github.com/friendsofgo/errors"
	"github.com/volatiletech/strmangle"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/user"
)

type userRepository struct {
	db core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DBExecutor) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) EnsureUsers(ctx context.Context, users []user.User) error {
	args := make([]interface{}, 0, len(users)*6)
	rows := 0
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		args = append(args, u.ID, u.Username, u.FirstName, u.LastName, u.Email, u.Language)
		rows++
	}
	if rows == 0 {
		return nil
	}

	// existing rows are owned by the person sync and must not be overwritten
	query := `
		INSERT INTO users (id, username, first_name, last_name, email, language)
		VALUES ` + strmangle.Placeholders(true, len(args), 1, 6) + `
		ON CONFLICT (id) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "ensuring users")
	}
	return nil
}
