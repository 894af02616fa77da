package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/SiteKeeper/internal/models"
)

// ErrUserNotFound is returned when no user has the requested login.
var ErrUserNotFound = errors.New("user not found")

// PostgresAuthRepository stores user accounts in a PostgreSQL database.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a new PostgresAuthRepository with the given database connection.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// RegisterUser inserts a new user. It reports false without error when the
// login is already taken.
func (s *PostgresAuthRepository) RegisterUser(ctx context.Context, login string, passwordHash []byte) (bool, error) {
	res, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		login, passwordHash,
	)
	if err != nil {
		return false, fmt.Errorf("register user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register user: %w", err)
	}
	return n == 1, nil
}

// GetUser loads the account with the given login.
func (s *PostgresAuthRepository) GetUser(ctx context.Context, login string) (*models.User, error) {
	var u models.User
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	).Scan(&u.Login, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
