package controllers

import (
	"context"
	"net/http"

	"blogapp/models"
	"blogapp/session"

	"github.com/stretchr/testify/mock"
)

type mockPostStore struct {
	mock.Mock
}

func (m *mockPostStore) Create(ctx context.Context, title, body string) (int64, error) {
	args := m.Called(ctx, title, body)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPostStore) List(ctx context.Context) ([]models.Post, error) {
	args := m.Called(ctx)
	posts, _ := args.Get(0).([]models.Post)
	return posts, args.Error(1)
}

func (m *mockPostStore) Get(ctx context.Context, id int64) (models.Post, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *mockPostStore) Update(ctx context.Context, id int64, title, body string) (models.Post, error) {
	args := m.Called(ctx, id, title, body)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *mockPostStore) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockCredentialStore struct {
	mock.Mock
}

func (m *mockCredentialStore) CreateUser(ctx context.Context, username, password string) (int64, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCredentialStore) Verify(ctx context.Context, username, password string) (int64, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(int64), args.Error(1)
}

// fakeSessions authenticates every request as userID when userID is non-zero.
// Login and Logout are recorded through the embedded mock.
type fakeSessions struct {
	mock.Mock
	userID int64
}

func (f *fakeSessions) Login(ctx context.Context, w http.ResponseWriter, userID int64) error {
	args := f.Called(ctx, userID)
	return args.Error(0)
}

func (f *fakeSessions) Logout(w http.ResponseWriter, r *http.Request) error {
	args := f.Called()
	return args.Error(0)
}

func (f *fakeSessions) CurrentUser(r *http.Request) (int64, bool) {
	if id, ok := session.UserID(r.Context()); ok {
		return id, true
	}
	return f.userID, f.userID != 0
}

func (f *fakeSessions) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.userID == 0 {
			http.Redirect(w, r, session.LoginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithUser(r.Context(), f.userID)))
	})
}
