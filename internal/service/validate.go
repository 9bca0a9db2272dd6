package service

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/faucetdb/usher/internal/model"
)

// Usernames allow letters, digits and @/./+/-/_ characters.
var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

func accountRules(a *model.Account) error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Username, validation.Required, validation.Length(1, 150), validation.Match(usernamePattern)),
		validation.Field(&a.Email, validation.Length(0, 254), is.Email),
		validation.Field(&a.FirstName, validation.Length(0, 150)),
		validation.Field(&a.LastName, validation.Length(0, 150)),
	)
}

func newAccountRules(in *model.NewAccount) error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 150), validation.Match(usernamePattern)),
		validation.Field(&in.Email, validation.Length(0, 254), is.Email),
		validation.Field(&in.FirstName, validation.Length(0, 150)),
		validation.Field(&in.LastName, validation.Length(0, 150)),
		// bcrypt only reads the first 72 bytes.
		validation.Field(&in.Password, validation.Length(0, 72)),
	)
}

// asValidationError converts an ozzo-validation result into a
// *ValidationError. Internal rule errors pass through unchanged.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for name, ferr := range errs {
		fields[name] = ferr.Error()
	}
	return &ValidationError{Fields: fields}
}

func passwordRules(password string) error {
	if err := validation.Validate(password, validation.Required, validation.Length(1, 72)); err != nil {
		return &ValidationError{Fields: map[string]string{"password": err.Error()}}
	}
	return nil
}
