package provision

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the shortest SIP password accepted.
const MinPasswordLength = 12

// ErrWeakPassword is returned when a SIP password fails the local policy.
var ErrWeakPassword = errors.New("weak SIP password")

// ValidatePassword accepts a password iff it has at least MinPasswordLength
// runes and contains an upper-case letter, a lower-case letter, a digit and a
// symbol. A symbol is any rune that is not a letter, digit or whitespace.
func ValidatePassword(password string) error {
	var missing []string

	if utf8.RuneCountInString(password) < MinPasswordLength {
		missing = append(missing, fmt.Sprintf("at least %d characters", MinPasswordLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r), unicode.IsSpace(r):
		default:
			symbol = true
		}
	}

	if !upper {
		missing = append(missing, "an upper-case letter")
	}
	if !lower {
		missing = append(missing, "a lower-case letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !symbol {
		missing = append(missing, "a symbol")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: needs %s", ErrWeakPassword, strings.Join(missing, ", "))
	}
	return nil
}
