package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// FUNCTIONAL DISCOVERY: IDs come from external identity providers ("auth0|abc",
// emails), so any printable character is accepted except whitespace
var userIDRegex = regexp.MustCompile(`^[^\s\p{Z}\p{C}]+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the custom "userid" tag registered
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
			return IsValidUserID(fl.Field().String())
		})
	})
	return validate
}

// Validate ensures the new session input meets all requirements
func (n *NewSession) Validate() error {
	if err := Validator().Struct(n); err != nil {
		return translate(err)
	}
	if n.ScheduledStartTime != nil && n.ScheduledStartTime.IsZero() {
		return fmt.Errorf("%w: scheduledStartTime is zero", ErrInvalidInput)
	}
	return nil
}

// Validate ensures the user reference carries a usable ID
func (u UserRef) Validate() error {
	if err := Validator().Struct(u); err != nil {
		return translate(err)
	}
	return nil
}

// translate maps validator field errors onto the package sentinel errors
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fe := verrs[0]
	ns := fe.StructNamespace()
	switch {
	case strings.Contains(ns, "Questions["):
		return ErrInvalidQuestion
	case fe.StructField() == "Name":
		return ErrInvalidSessionName
	case fe.StructField() == "Level":
		return ErrInvalidLevel
	case fe.StructField() == "DurationMinutes":
		return ErrInvalidDuration
	case fe.StructField() == "ID" && strings.HasPrefix(ns, "UserRef"):
		return ErrInvalidUserID
	}
	return fmt.Errorf("%w: %s failed %q", ErrInvalidInput, fe.Field(), fe.Tag())
}

// IsValidUserID checks if a user ID meets format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit prevents database issues
// and ensures reasonable display in UI components
func IsValidUserID(userID string) bool {
	if n := utf8.RuneCountInString(userID); n < 1 || n > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// ParseStatus converts a raw string into a known status
func ParseStatus(raw string) (SessionStatus, error) {
	s := SessionStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}
