package controllers

import (
	"net/http"

	"blogapp/models"
	"blogapp/store"
	"blogapp/validation"
	"blogapp/views"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

const idPattern = "{id:[0-9]+}"

func (a *App) SetupPostRoutes(r *mux.Router) {
	r.Handle("/", a.protect(a.Home)).Methods(http.MethodGet)
	r.Handle("/create", a.protect(a.NewPost)).Methods(http.MethodGet)
	r.Handle("/create", a.protect(a.CreatePost)).Methods(http.MethodPost)
	r.Handle("/"+idPattern+"/update", a.protect(a.EditPost)).Methods(http.MethodGet)
	r.Handle("/"+idPattern+"/update", a.protect(a.UpdatePost)).Methods(http.MethodPost)
	r.Handle("/"+idPattern+"/delete", a.protect(a.DeletePost)).Methods(http.MethodGet)

	// any other method on these paths: guard first, then 405
	r.Handle("/", a.protect(a.methodNotAllowed(http.MethodGet)))
	r.Handle("/create", a.protect(a.methodNotAllowed(http.MethodGet, http.MethodPost)))
	r.Handle("/"+idPattern+"/update", a.protect(a.methodNotAllowed(http.MethodGet, http.MethodPost)))
	r.Handle("/"+idPattern+"/delete", a.protect(a.methodNotAllowed(http.MethodGet)))
}

// Home lists every post.
func (a *App) Home(w http.ResponseWriter, r *http.Request) {
	posts, err := a.Posts.List(r.Context())
	if err != nil {
		a.serverError(w, r, "Failed to fetch posts", err)
		return
	}

	a.render(w, r, http.StatusOK, views.Index, views.Page{Authenticated: true, Posts: posts})
}

func (a *App) NewPost(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, http.StatusOK, views.Create, views.Page{Authenticated: true})
}

func (a *App) CreatePost(w http.ResponseWriter, r *http.Request) {
	form := validation.NewPostForm(r.PostFormValue("title"), r.PostFormValue("body"))
	if err := validation.ValidatePost(form); err != nil {
		a.formError(w, r, views.Create, models.Post{Title: form.Title, Body: form.Body}, err)
		return
	}

	id, err := a.Posts.Create(r.Context(), form.Title, form.Body)
	if err != nil {
		a.serverError(w, r, "Failed to create post", err)
		return
	}

	a.Log.WithField("post_id", id).Info("post created")
	http.Redirect(w, r, "/", http.StatusFound)
}

// EditPost renders the update form pre-filled with the stored post.
func (a *App) EditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		a.renderError(w, r, http.StatusNotFound, "Post not found.")
		return
	}

	post, err := a.Posts.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		a.renderError(w, r, http.StatusNotFound, "Post not found.")
		return
	}
	if err != nil {
		a.serverError(w, r, "Failed to fetch post", err)
		return
	}

	a.render(w, r, http.StatusOK, views.Update, views.Page{Authenticated: true, Post: post})
}

func (a *App) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		a.renderError(w, r, http.StatusNotFound, "Post not found.")
		return
	}

	form := validation.NewPostForm(r.PostFormValue("title"), r.PostFormValue("body"))
	if err := validation.ValidatePost(form); err != nil {
		a.formError(w, r, views.Update, models.Post{ID: id, Title: form.Title, Body: form.Body}, err)
		return
	}

	_, err := a.Posts.Update(r.Context(), id, form.Title, form.Body)
	if errors.Is(err, store.ErrNotFound) {
		a.renderError(w, r, http.StatusNotFound, "Post not found.")
		return
	}
	if err != nil {
		a.serverError(w, r, "Failed to update post", err)
		return
	}

	a.Log.WithField("post_id", id).Info("post updated")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		a.renderError(w, r, http.StatusNotFound, "Post not found.")
		return
	}

	err := a.Posts.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		a.renderError(w, r, http.StatusNotFound, "Post not found.")
		return
	}
	if err != nil {
		a.serverError(w, r, "Failed to delete post", err)
		return
	}

	a.Log.WithField("post_id", id).Info("post deleted")
	http.Redirect(w, r, "/", http.StatusFound)
}

// formError re-renders a post form with the validation messages.
func (a *App) formError(w http.ResponseWriter, r *http.Request, page string, post models.Post, err error) {
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		a.serverError(w, r, "Failed to validate post", err)
		return
	}
	a.render(w, r, http.StatusUnprocessableEntity, page, views.Page{
		Authenticated: true,
		Errors:        verr.Errors,
		Post:          post,
	})
}
