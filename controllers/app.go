package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"blogapp/middlewares"
	"blogapp/models"
	"blogapp/views"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type PostStore interface {
	Create(ctx context.Context, title, body string) (int64, error)
	List(ctx context.Context) ([]models.Post, error)
	Get(ctx context.Context, id int64) (models.Post, error)
	Update(ctx context.Context, id int64, title, body string) (models.Post, error)
	Delete(ctx context.Context, id int64) error
}

type CredentialStore interface {
	CreateUser(ctx context.Context, username, password string) (int64, error)
	Verify(ctx context.Context, username, password string) (int64, error)
}

type SessionManager interface {
	Login(ctx context.Context, w http.ResponseWriter, userID int64) error
	Logout(w http.ResponseWriter, r *http.Request) error
	CurrentUser(r *http.Request) (int64, bool)
	RequireAuthenticated(next http.Handler) http.Handler
}

// App carries the dependencies shared by every handler. It is built once at
// startup and holds no per-request state.
type App struct {
	Posts    PostStore
	Users    CredentialStore
	Sessions SessionManager
	Views    *views.Renderer
	Log      *logrus.Logger
}

// protect wraps h with the session guard.
func (a *App) protect(h http.HandlerFunc) http.Handler {
	return a.Sessions.RequireAuthenticated(h)
}

// methodNotAllowed answers a known path requested with the wrong method. It
// sits behind the guard on protected paths so anonymous clients go to login.
func (a *App) methodNotAllowed(allow ...string) http.HandlerFunc {
	allowed := strings.Join(allow, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allowed)
		a.renderError(w, r, http.StatusMethodNotAllowed, "Method not allowed.")
	}
}

func (a *App) render(w http.ResponseWriter, r *http.Request, status int, name string, page views.Page) {
	if err := a.Views.Render(w, status, name, page); err != nil {
		middlewares.HttpError(a.Log, w, r, "Failed to render page", http.StatusInternalServerError, err)
	}
}

func (a *App) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	_, authenticated := a.Sessions.CurrentUser(r)
	a.render(w, r, status, views.Error, views.Page{
		Authenticated: authenticated,
		Status:        status,
		Message:       message,
	})
}

func (a *App) serverError(w http.ResponseWriter, r *http.Request, message string, err error) {
	a.Log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error(message)
	a.renderError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}

// postID reads the {id} path variable. The route pattern only admits digits,
// so a parse failure means the number is out of range and cannot exist.
func postID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}
