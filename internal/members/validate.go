package members

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()
	// lint checks fields whose bad values are reported but still saved.
	lint = newLinter()
)

func newLinter() *validator.Validate {
	v := validator.New()
	v.SetTagName("lint")
	return v
}

// Validate checks the save-time rules on a member and returns a
// *ValidationError listing every failed rule. Only a missing external id
// rejects a record.
func Validate(m *Member) error {
	err := validate.Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldErrorMessage(fe))
	}
	return &ValidationError{ExternalID: m.ExternalID, Messages: msgs, Err: err}
}

// Lint returns a message for every malformed field that does not block a save,
// such as an email or website the source page got wrong.
func Lint(m *Member) []string {
	var verrs validator.ValidationErrors
	if !errors.As(lint.Struct(m), &verrs) {
		return nil
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldErrorMessage(fe))
	}
	return msgs
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address, got '%v'", fe.Field(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got '%v'", fe.Field(), fe.Value())
	}
	return fmt.Sprintf("%s failed rule '%s'", fe.Field(), fe.Tag())
}
