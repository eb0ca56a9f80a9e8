package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents custom validation errors.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation errors: " + strings.Join(e.Errors, ", ")
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// PostForm is the title/body pair submitted by the create and update forms.
type PostForm struct {
	Title string `validate:"required,max=50"`
	Body  string `validate:"required,max=300"`
}

// CredentialsForm is submitted by the signup and login forms.
type CredentialsForm struct {
	Username string `validate:"required,max=30"`
	Password string `validate:"required,max=72"`
}

// NewPostForm trims surrounding whitespace from the title and body.
func NewPostForm(title, body string) PostForm {
	return PostForm{Title: strings.TrimSpace(title), Body: strings.TrimSpace(body)}
}

// NewCredentialsForm trims the username; the password is taken as typed.
func NewCredentialsForm(username, password string) CredentialsForm {
	return CredentialsForm{Username: strings.TrimSpace(username), Password: password}
}

func ValidatePost(form PostForm) error {
	return check(form)
}

func ValidateCredentials(form CredentialsForm) error {
	if err := check(form); err != nil {
		return err
	}
	// bcrypt limit is in bytes, the max tag counts runes
	if len(form.Password) > 72 {
		return &ValidationError{Errors: []string{"Password must be at most 72 bytes"}}
	}
	return nil
}

func check(form interface{}) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var messages []string
	for _, fe := range fieldErrors {
		messages = append(messages, message(fe))
	}
	return &ValidationError{Errors: messages}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s: %s", fe.Field(), fe.Tag())
	}
}
