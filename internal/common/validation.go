package common

import (
	"errors"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

// CredentialsInput is the login form payload.
type CredentialsInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// SignupInput is the signup form payload.
type SignupInput struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"required,min=6"`
	DisplayName string `validate:"required,max=64"`
}

// PhoneInput is the phone number form payload.
type PhoneInput struct {
	PhoneNumber string `validate:"required,phone_e164"`
}

// CodeInput is the one-time-code form payload.
type CodeInput struct {
	Code string `validate:"required,numeric,len=6"`
}

// ValidationError carries the per-field messages produced by FormatValidationErrors.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "input validation failed"
}

var (
	validateOnce sync.Once
	validate     *validator.Validate

	// The stock e164 tag demands at least 8 digits; country codes alone are valid here.
	e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{0,14}$`)
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("phone_e164", func(fl validator.FieldLevel) bool {
			return e164Pattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate checks a form payload and returns a *ValidationError on failure.
func Validate(input interface{}) error {
	err := instance().Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return &ValidationError{Fields: FormatValidationErrors(verrs)}
	}
	return err
}

// ValidatePhoneNumber checks E.164 format: "+" then 1-15 digits, first digit non-zero.
func ValidatePhoneNumber(phoneNumber string) error {
	return Validate(PhoneInput{PhoneNumber: phoneNumber})
}

// ValidateCredentials checks a login form.
func ValidateCredentials(email, password string) error {
	return Validate(CredentialsInput{Email: email, Password: password})
}

// ValidateSignup checks a signup form.
func ValidateSignup(email, password, displayName string) error {
	return Validate(SignupInput{Email: email, Password: password, DisplayName: displayName})
}
