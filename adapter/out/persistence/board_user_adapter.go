package persistence

import (
	"context"
	"database/sql"
	"errors"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

// UserAdapter implements out.UserRepository using PostgreSQL.
type UserAdapter struct {
	db *sqlx.DB
}

// NewUserAdapter creates a new UserAdapter.
func NewUserAdapter(db *sqlx.DB) *UserAdapter {
	return &UserAdapter{db: db}
}

// GetByID returns one user.
func (a *UserAdapter) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	var name sql.NullString
	err := a.db.QueryRowxContext(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.DatabaseError("get user", err)
	}
	user.Name = name.String
	return &user, nil
}

// GetOrCreateByEmail upserts a user keyed by email. An existing user
// keeps their stored name unless a non-empty one is supplied.
func (a *UserAdapter) GetOrCreateByEmail(ctx context.Context, email, name string) (*domain.User, error) {
	var user domain.User
	var storedName sql.NullString
	err := a.db.QueryRowxContext(ctx, `
		INSERT INTO users (email, name, created_at, updated_at)
		VALUES (LOWER($1), NULLIF($2, ''), NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			updated_at = NOW()
		RETURNING id, email, name, created_at, updated_at`,
		email, name).
		Scan(&user.ID, &user.Email, &storedName, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, apperr.DatabaseError("get or create user", err)
	}
	user.Name = storedName.String
	return &user, nil
}

// Interface compliance
var _ out.UserRepository = (*UserAdapter)(nil)
