package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"communityevents/internal/domain"
)

// userRepository reads the recipients of enrollment notifications. Users are owned by the
// identity provider; this service never writes them.
type userRepository struct {
	DB querier
}

func NewUserRepository(db *sql.DB) domain.UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, name, last_name, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrNotFound
	case err != nil:
		return nil, classifyError(fmt.Errorf("get user %s: %w", id, err))
	}
	return u, nil
}
