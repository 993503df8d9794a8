package utils

import (
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
)

const MinPasswordLength = 8

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "12345678": {}, "123456789": {},
	"1234567890": {}, "qwerty123": {}, "qwertyuiop": {}, "iloveyou": {}, "admin123": {},
	"welcome1": {}, "letmein1": {}, "football": {}, "baseball": {}, "sunshine": {},
	"princess": {}, "11111111": {}, "00000000": {}, "abc12345": {}, "passw0rd": {},
	"trustno1": {}, "superman": {}, "starwars": {}, "whatever": {}, "computer": {},
}

// ValidatePassword applies the password rules to a candidate password.
// attributes are the user's own values (username, names, email) that the
// password must not contain.
func ValidatePassword(field, password string, attributes ...string) error {
	var result *multierror.Error
	if len([]rune(password)) < MinPasswordLength {
		result = multierror.Append(result, FieldError{Field: field, Message: "This password is too short. It must contain at least 8 characters."})
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		result = multierror.Append(result, FieldError{Field: field, Message: "This password is too common."})
	}
	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		result = multierror.Append(result, FieldError{Field: field, Message: "This password is entirely numeric."})
	}
	lower := strings.ToLower(password)
	for _, attr := range attributes {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if i := strings.Index(attr, "@"); i > 0 {
			attr = attr[:i]
		}
		if len(attr) >= 3 && strings.Contains(lower, attr) {
			result = multierror.Append(result, FieldError{Field: field, Message: "The password is too similar to your personal information."})
			break
		}
	}
	return result.ErrorOrNil()
}
