package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"blogapp/models"
)

//go:embed templates/*.html
var files embed.FS

// Pages rendered by the application.
const (
	Index  = "index"
	Create = "create"
	Update = "update"
	Signup = "signup"
	Login  = "login"
	Error  = "error"
)

// Page is the data every template receives.
type Page struct {
	Authenticated bool
	Errors        []string
	Posts         []models.Post
	Post          models.Post
	Username      string
	Status        int
	Message       string
}

// Renderer holds one parsed template set per page, each sharing the layout.
type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{Index, Create, Update, Signup, Login, Error} {
		t, err := template.ParseFS(files, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes the named page into a buffer first so that a template
// failure never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
