package store

import (
	"context"
	"database/sql"

	"blogapp/models"

	"github.com/pkg/errors"
)

// UserStore keeps usernames and bcrypt password hashes.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser hashes password and inserts a new user. A taken username
// yields ErrDuplicateUsername and leaves the existing row untouched.
func (s *UserStore) CreateUser(ctx context.Context, username, password string) (int64, error) {
	user := models.User{Username: username}
	if err := user.SetPassword(password); err != nil {
		return 0, errors.Wrap(err, "hash password")
	}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
			user.Username, user.PasswordHash).Scan(&user.ID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errors.Wrapf(ErrDuplicateUsername, "user %q", username)
		}
		return 0, errors.Wrap(err, "insert user")
	}

	return user.ID, nil
}

// Verify checks password against the stored hash for username and returns
// the user's id.
func (s *UserStore) Verify(ctx context.Context, username, password string) (int64, error) {
	user, err := s.getByUsername(ctx, username)
	if err != nil {
		return 0, err
	}

	if !user.CheckPassword(password) {
		return 0, errors.Wrapf(ErrInvalidCredentials, "user %q", username)
	}

	return user.ID, nil
}

func (s *UserStore) getByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`, username).
		Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrUserNotFound, "user %q", username)
		}
		return nil, errors.Wrap(err, "query user by username")
	}
	return &user, nil
}
