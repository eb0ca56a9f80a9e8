package store

import "github.com/pkg/errors"

var (
	ErrNotFound           = errors.New("store: post not found")
	ErrDuplicateUsername  = errors.New("store: username already exists")
	ErrUserNotFound       = errors.New("store: user not found")
	ErrInvalidCredentials = errors.New("store: invalid credentials")
)
