package controllers

import (
	"net/http"

	"blogapp/store"
	"blogapp/validation"
	"blogapp/views"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SetupUserRoutes registers signup, login and logout. limit throttles the
// credential-accepting POST handlers.
func (a *App) SetupUserRoutes(r *mux.Router, limit func(http.Handler) http.Handler) {
	r.HandleFunc("/signup", a.SignupForm).Methods(http.MethodGet)
	r.Handle("/signup", limit(http.HandlerFunc(a.Signup))).Methods(http.MethodPost)
	r.HandleFunc("/login", a.LoginForm).Methods(http.MethodGet)
	r.Handle("/login", limit(http.HandlerFunc(a.Login))).Methods(http.MethodPost)
	r.Handle("/logout", a.protect(a.Logout)).Methods(http.MethodGet)
	r.Handle("/logout", a.protect(a.methodNotAllowed(http.MethodGet)))
}

func (a *App) SignupForm(w http.ResponseWriter, r *http.Request) {
	_, authenticated := a.Sessions.CurrentUser(r)
	a.render(w, r, http.StatusOK, views.Signup, views.Page{Authenticated: authenticated})
}

func (a *App) Signup(w http.ResponseWriter, r *http.Request) {
	form := validation.NewCredentialsForm(r.PostFormValue("username"), r.PostFormValue("password"))
	if errs := validationMessages(validation.ValidateCredentials(form)); errs != nil {
		a.render(w, r, http.StatusUnprocessableEntity, views.Signup, views.Page{Errors: errs, Username: form.Username})
		return
	}

	logCtx := a.Log.WithField("username", form.Username)

	id, err := a.Users.CreateUser(r.Context(), form.Username, form.Password)
	if errors.Is(err, store.ErrDuplicateUsername) {
		logCtx.Warn("signup rejected: username taken")
		a.render(w, r, http.StatusConflict, views.Signup, views.Page{
			Errors:   []string{"Username is already taken"},
			Username: form.Username,
		})
		return
	}
	if err != nil {
		a.serverError(w, r, "Failed to create user", err)
		return
	}

	logCtx.WithField("user_id", id).Info("user registered")
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (a *App) LoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.Sessions.CurrentUser(r); ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	a.render(w, r, http.StatusOK, views.Login, views.Page{})
}

// Login verifies the submitted credentials and starts a session. Unknown
// users and wrong passwords get the same response.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	form := validation.NewCredentialsForm(r.PostFormValue("username"), r.PostFormValue("password"))
	if errs := validationMessages(validation.ValidateCredentials(form)); errs != nil {
		a.render(w, r, http.StatusUnprocessableEntity, views.Login, views.Page{Errors: errs, Username: form.Username})
		return
	}

	logCtx := a.Log.WithField("username", form.Username)

	userID, err := a.Users.Verify(r.Context(), form.Username, form.Password)
	if errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrInvalidCredentials) {
		logCtx.WithError(err).Warn("login attempt failed")
		a.render(w, r, http.StatusUnauthorized, views.Login, views.Page{
			Errors:   []string{"Invalid username or password"},
			Username: form.Username,
		})
		return
	}
	if err != nil {
		a.serverError(w, r, "Failed to verify credentials", err)
		return
	}

	if err := a.Sessions.Login(r.Context(), w, userID); err != nil {
		a.serverError(w, r, "Failed to start session", err)
		return
	}

	logCtx.WithFields(logrus.Fields{"user_id": userID}).Info("user logged in")
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout ends the session. When it cannot be ended the user stays logged in
// and sees an error page instead of a false confirmation.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Logout(w, r); err != nil {
		a.serverError(w, r, "Failed to drop session", err)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// validationMessages extracts user-facing messages from a validation error.
func validationMessages(err error) []string {
	if err == nil {
		return nil
	}
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		return verr.Errors
	}
	return []string{err.Error()}
}
