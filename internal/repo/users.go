package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/db"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
)

type userRow struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    Date   `db:"created_at"`
}

type UsersRepo struct {
	db *db.DB
}

func NewUsersRepo(db *db.DB) *UsersRepo {
	return &UsersRepo{db: db}
}

// Create returns internal.ErrEmailExists when the address is already taken,
// including when a concurrent registration wins the race.
func (r *UsersRepo) Create(ctx context.Context, email, passwordHash string) (*internal.Account, error) {
	now := time.Now().UTC()
	insert := r.db.Goqu().Insert("users").
		Cols("email", "password_hash", "created_at").
		Vals([]any{email, passwordHash, Date(now)})

	id, err := r.db.InsertReturningID(ctx, insert)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, internal.ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Int64("id", id).Msg("user created")

	return &internal.Account{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (*internal.Account, error) {
	query := r.db.Goqu().From("users").
		Select("id", "email", "password_hash", "created_at").
		Where(goqu.Ex{"email": email}).
		Limit(1)

	var row userRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if !found {
		return nil, internal.ErrAccountNotFound
	}
	return row.toDomain(), nil
}

func (r *userRow) toDomain() *internal.Account {
	return &internal.Account{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.Time(),
	}
}
